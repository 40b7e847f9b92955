// Package preview turns a content record plus an access decision into a
// renderable element, and keeps the per-CID preview cache.
package preview

import (
	"errors"
	"fmt"

	"boxpeer/pkg/access"
	"boxpeer/pkg/core"
)

// ErrNoContent 判定为 UNLOCKED 但没有提供内容字节
var ErrNoContent = errors.New("unlocked preview requires content bytes")

// Renderer 负责生成预览并管理 blob handle 的生命周期
type Renderer struct {
	blobs *BlobStore
}

func NewRenderer(blobs *BlobStore) *Renderer {
	return &Renderer{blobs: blobs}
}

// Blobs 暴露 blob 表 (用于 Resolve 和销毁时释放)
func (r *Renderer) Blobs() *BlobStore { return r.blobs }

// Render 生成预览
// GATED：布局相同，媒体被压制，不读取也不持有任何字节；data 被忽略。
// UNLOCKED：data 包装成新的 blob handle，同一 CID 的旧 handle 先被释放。
func (r *Renderer) Render(record core.ContentRecord, decision access.Decision, data []byte) (Element, error) {
	el := Element{
		CID:         record.CID,
		Title:       record.Title,
		Description: record.Description,
		Kind:        record.FileKind.Normalize(),
		Strategy:    StrategyFor(record.FileKind),
		MIME:        MIMEType(record.FileKind),
		Price:       record.ConsumerFee,
	}

	if !decision.Unlocked() {
		el.Gated = true
		r.blobs.RevokeCID(record.CID)
		return el, nil
	}

	if data == nil {
		return Element{}, fmt.Errorf("%w: %s", ErrNoContent, record.CID)
	}
	el.Handle, _ = r.blobs.Create(record.CID, el.MIME, data)
	return el, nil
}
