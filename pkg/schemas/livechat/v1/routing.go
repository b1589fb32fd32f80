package livechat

type RoutingConfig struct {
	Method          string `json:"method,omitempty"` // "Manual_Selection","Auto_Selection",...
	AutoAssignAgent bool   `json:"autoAssignAgent"`
	ShowQueue       bool   `json:"showQueue,omitempty"`
	ShowQueueLink   bool   `json:"showQueueLink,omitempty"`
}

// AgentDepartment links an agent to a department it serves.
type AgentDepartment struct {
	ID                string `json:"_id,omitempty"`
	AgentID           string `json:"agentId"`
	DepartmentID      string `json:"departmentId"`
	DepartmentEnabled bool   `json:"departmentEnabled"`
	Username          string `json:"username,omitempty"`
	Count             int    `json:"count,omitempty"`
	Order             int    `json:"order,omitempty"`
}

type AgentStatus string

const (
	AgentAvailable    AgentStatus = "available"
	AgentNotAvailable AgentStatus = "not-available"
)

type Agent struct {
	ID             string      `json:"_id"`
	Username       string      `json:"username,omitempty"`
	StatusLivechat AgentStatus `json:"statusLivechat"`
}

func (a Agent) Available() bool { return a.StatusLivechat == AgentAvailable }
