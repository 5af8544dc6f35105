package rediskey

import "fmt"

// Key namespaces shared by every process talking to the same redis.
const (
	RateLimitPrefix = "ratelimit"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildRateLimitBucket returns "ratelimit:{key}:{slot}" for one fixed window.
func BuildRateLimitBucket(key string, slot int64) string {
	return fmt.Sprintf("%s:%d", NamespaceKey(RateLimitPrefix, key), slot)
}
