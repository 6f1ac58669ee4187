// Package concurrent 提供一个分片加锁的并发 Map。
// 文件缓存用它记录 校验和 -> 本地路径 的索引：写少读多，
// 分片读写锁比单把大锁在高并发取文件时表现好得多。
package concurrent

import "sync"

const defaultShardCount = 32

// Map 按 Key 哈希分片的并发安全 Map
type Map[K comparable, V any] struct {
	shards     []*shard[K, V]
	hashFunc   func(K) uint32
	shardCount uint32
}

// shard 每个分片一把读写锁和一个原生 map
type shard[K comparable, V any] struct {
	items map[K]V
	sync.RWMutex
}

// NewMap 创建并发 Map；hashFunc 把 Key 映射到分片
func NewMap[K comparable, V any](hashFunc func(K) uint32) *Map[K, V] {
	m := &Map[K, V]{
		shardCount: defaultShardCount,
		hashFunc:   hashFunc,
	}
	m.shards = make([]*shard[K, V], m.shardCount)
	for i := range m.shardCount {
		m.shards[i] = &shard[K, V]{items: make(map[K]V)}
	}
	return m
}

func (m *Map[K, V]) getShard(key K) *shard[K, V] {
	return m.shards[m.hashFunc(key)%m.shardCount]
}

// Set 写入键值对
func (m *Map[K, V]) Set(key K, value V) {
	s := m.getShard(key)
	s.Lock()
	defer s.Unlock()
	s.items[key] = value
}

// Get 读取键值对
func (m *Map[K, V]) Get(key K) (V, bool) {
	s := m.getShard(key)
	s.RLock()
	defer s.RUnlock()
	val, ok := s.items[key]
	return val, ok
}

// SetIfAbsent 不存在才写入；返回实际存储的值和是否新写入
func (m *Map[K, V]) SetIfAbsent(key K, value V) (V, bool) {
	s := m.getShard(key)
	s.Lock()
	defer s.Unlock()
	if old, ok := s.items[key]; ok {
		return old, false
	}
	s.items[key] = value
	return value, true
}

// Remove 删除键值对
func (m *Map[K, V]) Remove(key K) {
	s := m.getShard(key)
	s.Lock()
	defer s.Unlock()
	delete(s.items, key)
}

// Count 元素总数 (高并发下是近似值)
func (m *Map[K, V]) Count() int {
	count := 0
	for i := range m.shardCount {
		s := m.shards[i]
		s.RLock()
		count += len(s.items)
		s.RUnlock()
	}
	return count
}

// Keys 返回所有 Key (顺序不定)
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0)
	for i := range m.shardCount {
		s := m.shards[i]
		s.RLock()
		for k := range s.items {
			keys = append(keys, k)
		}
		s.RUnlock()
	}
	return keys
}
