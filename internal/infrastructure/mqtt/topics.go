package mqtt

import "strings"

// DefaultTopicPrefix is used when the configuration leaves topic_prefix empty.
const DefaultTopicPrefix = "gatehouse"

// Topics builds topic names under a prefix.
//
//	topics := mqtt.NewTopics("gatehouse")
//	topics.ResetLink() // "gatehouse/notify/reset-link"
type Topics struct {
	prefix string
}

// NewTopics returns builders for prefix, trimming any trailing slash.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic root.
func (t Topics) Prefix() string {
	return t.prefix
}

// SystemStatus is the retained online/offline status topic.
func (t Topics) SystemStatus() string {
	return t.prefix + "/system/status"
}

// ResetLink is where password-reset deliveries are published.
func (t Topics) ResetLink() string {
	return t.prefix + "/notify/reset-link"
}
