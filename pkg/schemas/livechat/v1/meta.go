package livechat

import "github.com/roboricindustries/raycon-livequeue/pkg/schemas/common"

const (
	EventTypeInquiry = "livechat.inquiry.v1"
	Exchange         = "livechat.inquiries"
	RoutingPrefix    = "inquiry"
)

var InquiryMeta = common.EventMeta{
	EventType:  EventTypeInquiry,
	Exchange:   Exchange,
	RoutingKey: RoutingPrefix + ".#",
}
