package roster

import (
	"context"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCacheSize = 64
	defaultCacheTTL  = time.Minute
)

// CachedFetcher 带过期时间的名单缓存
// 同一个群同一时刻最多只有一个拉取请求在进行，其余调用者等待并共享结果
type CachedFetcher struct {
	next  Fetcher
	cache *expirable.LRU[int64, []Entry]
	group singleflight.Group
}

// NewCachedFetcher 包装一个 Fetcher，size/ttl 非正数时使用默认值
func NewCachedFetcher(next Fetcher, size int, ttl time.Duration) *CachedFetcher {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedFetcher{
		next:  next,
		cache: expirable.NewLRU[int64, []Entry](size, nil, ttl),
	}
}

// FetchRoster 实现 Fetcher
func (c *CachedFetcher) FetchRoster(ctx context.Context, groupID int64) ([]Entry, error) {
	if entries, ok := c.cache.Get(groupID); ok {
		return entries, nil
	}

	v, err, shared := c.group.Do(strconv.FormatInt(groupID, 10), func() (interface{}, error) {
		// 等待期间可能已经被别的调用者填充
		if entries, ok := c.cache.Get(groupID); ok {
			return entries, nil
		}
		entries, err := c.next.FetchRoster(ctx, groupID)
		if err != nil {
			return nil, err
		}
		c.cache.Add(groupID, entries)
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		zap.L().Debug("复用进行中的群成员拉取", zap.Int64("group_id", groupID))
	}
	return v.([]Entry), nil
}

// Invalidate 使某个群的缓存失效，收到成员变动通知时调用
func (c *CachedFetcher) Invalidate(groupID int64) {
	if c.cache.Remove(groupID) {
		zap.L().Debug("群成员名单缓存已失效", zap.Int64("group_id", groupID))
	}
}
