package concurrent

import "hash/fnv"

// HashString 字符串的 FNV-1a 哈希，分布均匀，适合做分片函数
func HashString(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
