package rediskey

import "fmt"

// Key prefixes shared by every process that talks to the same redis.
const (
	SequencePrefix = "seq"
	EventsPrefix   = "escrow:events"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildSequenceKey returns "seq:{prefix}:{day}".
func BuildSequenceKey(prefix, day string) string {
	return NamespaceKey(SequencePrefix, NamespaceKey(prefix, day))
}

// EventChannel is the pub/sub channel relayed outbox events go to.
func EventChannel() string {
	return EventsPrefix
}
