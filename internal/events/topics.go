package events

const (
	TopicConnStatus    = "conn.status"
	TopicRadioDecoded  = "radio.decoded"
	TopicNodeInfo      = "node.info"
	TopicChannel       = "channel"
	TopicTextMessage   = "text.message"
	TopicMessageStatus = "message.status"
	TopicMQTTStatus    = "message.mqtt.status"
	TopicMessageUpdate = "message.updated"
	TopicConfigSection = "config.section"
	TopicModuleConfig  = "config.module"
	TopicMetadata      = "device.metadata"
	TopicAdminMessage  = "admin.message"
	TopicMQTTProxyIn   = "mqtt.proxy.in"
	TopicConfigReady   = "config.ready"
	TopicRawFrameIn    = "raw.frame.in"
	TopicRawFrameOut   = "raw.frame.out"
	TopicError         = "error"
)
