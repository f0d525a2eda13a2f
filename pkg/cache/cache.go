package cache

import (
	"sync"
	"time"

	"github.com/lucabot/exchange/venues/types"
)

// Cache 通用缓存接口
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Delete(key K)
	Clear()
	Size() int
}

// InMemoryCache 内存缓存实现
type InMemoryCache[K comparable, V any] struct {
	items      map[K]*cacheItem[V]
	mu         sync.RWMutex
	defaultTTL time.Duration
}

// cacheItem 缓存项
type cacheItem[V any] struct {
	value     V
	expiresAt time.Time
}

// NewInMemoryCache 创建新的内存缓存
func NewInMemoryCache[K comparable, V any](defaultTTL time.Duration) *InMemoryCache[K, V] {
	cache := &InMemoryCache[K, V]{
		items:      make(map[K]*cacheItem[V]),
		defaultTTL: defaultTTL,
	}

	// 启动清理 goroutine
	go cache.startCleanup()

	return cache
}

// Get 获取缓存值
func (c *InMemoryCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists {
		var zero V
		return zero, false
	}

	// 检查是否过期
	if time.Now().After(item.expiresAt) {
		// 异步删除过期项
		go c.Delete(key)
		var zero V
		return zero, false
	}

	return item.value, true
}

// Set 设置缓存值
func (c *InMemoryCache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl == 0 {
		ttl = c.defaultTTL
	}

	c.items[key] = &cacheItem[V]{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
}

// Delete 删除缓存项
func (c *InMemoryCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Clear 清空缓存
func (c *InMemoryCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*cacheItem[V])
}

// Size 获取缓存大小
func (c *InMemoryCache[K, V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// startCleanup 启动清理 goroutine（定期清理过期项）
func (c *InMemoryCache[K, V]) startCleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.cleanup()
	}
}

// cleanup 清理过期项
func (c *InMemoryCache[K, V]) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, item := range c.items {
		if now.After(item.expiresAt) {
			delete(c.items, key)
		}
	}
}

// 账户与行情数据的默认缓存时长
const (
	AccountTTL = 15 * time.Second
	FundingTTL = 1 * time.Hour
)

// AccountCache 账户数据缓存（按交易所缓存余额与持仓，
// 交易操作成功后必须先失效再返回）
type AccountCache struct {
	balances  *InMemoryCache[string, *types.Balance]
	positions *InMemoryCache[string, []types.Position]
}

// NewAccountCache 创建账户数据缓存
func NewAccountCache() *AccountCache {
	return &AccountCache{
		balances:  NewInMemoryCache[string, *types.Balance](AccountTTL),
		positions: NewInMemoryCache[string, []types.Position](AccountTTL),
	}
}

// GetBalance 获取缓存余额
func (ac *AccountCache) GetBalance(venue string) (*types.Balance, bool) {
	return ac.balances.Get(venue)
}

// SetBalance 缓存余额
func (ac *AccountCache) SetBalance(venue string, bal *types.Balance) {
	ac.balances.Set(venue, bal, AccountTTL)
}

// GetPositions 获取缓存持仓
func (ac *AccountCache) GetPositions(venue string) ([]types.Position, bool) {
	return ac.positions.Get(venue)
}

// SetPositions 缓存持仓
func (ac *AccountCache) SetPositions(venue string, positions []types.Position) {
	ac.positions.Set(venue, positions, AccountTTL)
}

// Invalidate 失效某交易所的余额与持仓缓存
func (ac *AccountCache) Invalidate(venue string) {
	ac.balances.Delete(venue)
	ac.positions.Delete(venue)
}

// Clear 清空全部账户缓存
func (ac *AccountCache) Clear() {
	ac.balances.Clear()
	ac.positions.Clear()
}

// FundingCache 资金费率缓存（键为 venue:symbol）
type FundingCache struct {
	cache *InMemoryCache[string, float64]
}

// NewFundingCache 创建资金费率缓存
func NewFundingCache() *FundingCache {
	return &FundingCache{
		cache: NewInMemoryCache[string, float64](FundingTTL),
	}
}

// Get 获取缓存费率
func (fc *FundingCache) Get(venue, symbol string) (float64, bool) {
	return fc.cache.Get(venue + ":" + symbol)
}

// Set 缓存费率
func (fc *FundingCache) Set(venue, symbol string, rate float64) {
	fc.cache.Set(venue+":"+symbol, rate, FundingTTL)
}

// Clear 清空费率缓存
func (fc *FundingCache) Clear() {
	fc.cache.Clear()
}
