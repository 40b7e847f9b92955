package preview

import (
	"sync"

	"boxpeer/pkg/types"

	"github.com/google/uuid"
)

const blobScheme = "blob:boxpeer/"

// BlobHandle 指向一段已解锁的内容字节
// 由 Renderer 独占；被替换或视图销毁时必须 Revoke。
type BlobHandle struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (h BlobHandle) IsZero() bool { return h.ID == "" }

type blob struct {
	cid  types.CID
	mime string
	data []byte
}

// BlobStore 进程内的 blob 表
// 每个 CID 最多持有一个活跃 handle：为同一 CID 创建新 handle 会先释放旧的。
type BlobStore struct {
	mu      sync.Mutex
	handles map[string]blob
	byCID   map[types.CID]string
}

func NewBlobStore() *BlobStore {
	return &BlobStore{
		handles: make(map[string]blob),
		byCID:   make(map[types.CID]string),
	}
}

// Create 为 CID 创建 handle，返回新 handle 和被释放的旧 handle (可能为空)
func (s *BlobStore) Create(id types.CID, mime string, data []byte) (BlobHandle, BlobHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var revoked BlobHandle
	if prev, ok := s.byCID[id]; ok {
		delete(s.handles, prev)
		revoked = BlobHandle{ID: prev, URL: blobScheme + prev}
	}

	handleID := uuid.NewString()
	s.handles[handleID] = blob{cid: id, mime: mime, data: data}
	s.byCID[id] = handleID
	return BlobHandle{ID: handleID, URL: blobScheme + handleID}, revoked
}

// Revoke 释放 handle，重复释放无副作用
func (s *BlobStore) Revoke(h BlobHandle) {
	if h.IsZero() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.handles[h.ID]
	if !ok {
		return
	}
	delete(s.handles, h.ID)
	if s.byCID[b.cid] == h.ID {
		delete(s.byCID, b.cid)
	}
}

// RevokeCID 释放某个 CID 当前的 handle
func (s *BlobStore) RevokeCID(id types.CID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if handleID, ok := s.byCID[id]; ok {
		delete(s.handles, handleID)
		delete(s.byCID, id)
	}
}

// RevokeAll 视图销毁时调用
func (s *BlobStore) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles = make(map[string]blob)
	s.byCID = make(map[types.CID]string)
}

// Resolve 通过 handle 读取字节和 MIME
func (s *BlobStore) Resolve(h BlobHandle) ([]byte, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.handles[h.ID]
	if !ok {
		return nil, "", false
	}
	return b.data, b.mime, true
}

// Live 当前活跃的 handle 数
func (s *BlobStore) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}
