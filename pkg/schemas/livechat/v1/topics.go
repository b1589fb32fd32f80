package livechat

import "strings"

// PublicTopic carries inquiries without a department.
const PublicTopic = "public"

const departmentTopicPrefix = "department/"

// DepartmentTopic is the topic of one department. AMQP transports escape
// the id so it stays a single routing key word.
func DepartmentTopic(departmentID string) string {
	return departmentTopicPrefix + departmentID
}

// DepartmentFromTopic returns the department id of a department topic.
func DepartmentFromTopic(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, departmentTopicPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
