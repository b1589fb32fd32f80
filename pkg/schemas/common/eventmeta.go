package common

import "strings"

type EventMeta struct {
	EventType  string // e.g. "livechat.inquiry.v1"
	Exchange   string // e.g. "livechat.inquiries"
	RoutingKey string // e.g. "inquiry.#"
}

// Matches reports whether a concrete routing key falls under the meta's
// routing key pattern. Only a trailing "#" wildcard is supported.
func (m EventMeta) Matches(routingKey string) bool {
	if prefix, ok := strings.CutSuffix(m.RoutingKey, "#"); ok {
		return strings.HasPrefix(routingKey, prefix)
	}
	return m.RoutingKey == routingKey
}
