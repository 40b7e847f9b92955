package preview

import (
	"sort"
	"time"

	"boxpeer/pkg/core"
	"boxpeer/pkg/types"

	"github.com/patrickmn/go-cache"
)

// Entry 缓存的一条预览
type Entry struct {
	Element    Element
	Record     core.ContentRecord
	RenderedAt time.Time
}

// Cache 按 CID upsert 的预览缓存
// 由视图层持有 (每个 Session 一个)，不是全局单例。
// 同一 CID 最多一条：第二次 Put 覆盖第一次。
type Cache struct {
	items *cache.Cache
}

// NewCache ttl <= 0 表示条目在会话内永不过期
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		return &Cache{items: cache.New(cache.NoExpiration, 0)}
	}
	return &Cache{items: cache.New(ttl, 2*ttl)}
}

func (c *Cache) Put(id types.CID, el Element, record core.ContentRecord) {
	c.items.Set(id.String(), Entry{Element: el, Record: record, RenderedAt: time.Now()}, cache.DefaultExpiration)
}

func (c *Cache) Get(id types.CID) (Entry, bool) {
	v, ok := c.items.Get(id.String())
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

func (c *Cache) Len() int { return c.items.ItemCount() }

// Entries 按 CID 排序返回
func (c *Cache) Entries() []Entry {
	items := c.items.Items()
	out := make([]Entry, 0, len(items))
	for _, it := range items {
		out = append(out, it.Object.(Entry))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Element.CID < out[j].Element.CID })
	return out
}
