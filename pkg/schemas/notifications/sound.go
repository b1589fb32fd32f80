package notifications

import "github.com/roboricindustries/raycon-livequeue/pkg/schemas/common"

const NotificationNewInquiry = "livechat.inquiry.new"

// SoundV1 asks an agent client to play a notification sound.
type SoundV1 struct {
	common.Core
	SoundID string  `json:"sound_id"`
	Volume  float64 `json:"volume"` // 0.0 - 1.0
}

const (
	EventType  = "notification.sound.v1"
	Exchange   = "notification.internal"
	RoutingKey = "agent.sound"
)

func SoundMeta() common.EventMeta {
	return common.EventMeta{
		EventType:  EventType,
		Exchange:   Exchange,
		RoutingKey: RoutingKey,
	}
}

func NewSound(agentID, soundID string, volume float64) SoundV1 {
	return SoundV1{
		Core: common.Core{
			NotificationCode: NotificationNewInquiry,
			RecipientRole:    common.Agent,
			RecipientID:      agentID,
		},
		SoundID: soundID,
		Volume:  volume,
	}
}
