package rediskey

import "fmt"

const (
	CatalogPrefix  = "rewards:catalog"
	SequencePrefix = "seq"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildActiveCatalogKey returns "rewards:catalog:active"
func BuildActiveCatalogKey() string {
	return NamespaceKey(CatalogPrefix, "active")
}

// BuildDailySequenceKey returns "seq:{prefix}:{scope}:{yymmdd}"
func BuildDailySequenceKey(prefix, scope, day string) string {
	return NamespaceKey(SequencePrefix, fmt.Sprintf("%s:%s:%s", prefix, scope, day))
}
