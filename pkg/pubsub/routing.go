package pubsub

import (
	"net/url"
	"strings"

	livechat "github.com/roboricindustries/raycon-livequeue/pkg/schemas/livechat/v1"
)

// keyEscaper percent-encodes the characters that carry meaning in a topic
// exchange binding key, so a department id is always exactly one word.
var keyEscaper = strings.NewReplacer("%", "%25", ".", "%2E", "*", "%2A", "#", "%23")

// RoutingKey maps a topic onto an AMQP routing key under prefix:
// "department/d1" -> "inquiry.department.d1", "public" -> "inquiry.public".
// Department ids are escaped: "department/a.b" -> "inquiry.department.a%2Eb".
func RoutingKey(prefix, topic string) string {
	if id, ok := livechat.DepartmentFromTopic(topic); ok {
		return joinKey(prefix, "department."+keyEscaper.Replace(id))
	}
	return joinKey(prefix, strings.ReplaceAll(topic, "/", "."))
}

// TopicFromRoutingKey is the inverse of RoutingKey.
func TopicFromRoutingKey(prefix, key string) (string, bool) {
	rest := key
	if prefix != "" {
		var ok bool
		rest, ok = strings.CutPrefix(key, prefix+".")
		if !ok {
			return "", false
		}
	}
	if word, ok := strings.CutPrefix(rest, "department."); ok && word != "" {
		if strings.Contains(word, ".") {
			return "", false
		}
		id, err := url.PathUnescape(word)
		if err != nil {
			return "", false
		}
		return livechat.DepartmentTopic(id), true
	}
	if rest == "" {
		return "", false
	}
	return rest, true
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
