package domain

import dErrors "trustplane/pkg/domain-errors"

// MessageType classifies agent messages. Unregistered inbound types are
// logged and dropped by the communicator; a mixed-version agent fleet may
// legitimately emit types this build does not handle.
type MessageType string

const (
	MessageTypeHeartbeat           MessageType = "HEARTBEAT"
	MessageTypeRegistration        MessageType = "REGISTRATION"
	MessageTypeEvaluateTransaction MessageType = "EVALUATE_TRANSACTION"
	MessageTypeVerifyDocument      MessageType = "VERIFY_DOCUMENT"
	MessageTypeAnalyzeBehavior     MessageType = "ANALYZE_BEHAVIOR"
	MessageTypeFeedback            MessageType = "FEEDBACK"
	MessageTypeModelUpdate         MessageType = "MODEL_UPDATE"
	MessageTypeAlert               MessageType = "ALERT"
	MessageTypeConfigUpdate        MessageType = "CONFIG_UPDATE"
)

var validMessageTypes = map[MessageType]bool{
	MessageTypeHeartbeat:           true,
	MessageTypeRegistration:        true,
	MessageTypeEvaluateTransaction: true,
	MessageTypeVerifyDocument:      true,
	MessageTypeAnalyzeBehavior:     true,
	MessageTypeFeedback:            true,
	MessageTypeModelUpdate:         true,
	MessageTypeAlert:               true,
	MessageTypeConfigUpdate:        true,
}

// ParseMessageType constructs a MessageType from external input.
func ParseMessageType(s string) (MessageType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "message type cannot be empty")
	}
	t := MessageType(s)
	if !t.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unsupported message type: %s", s)
	}
	return t, nil
}

func (t MessageType) IsValid() bool  { return validMessageTypes[t] }
func (t MessageType) String() string { return string(t) }

// ChannelType names a transport channel implementation.
type ChannelType string

const (
	ChannelTypeDirect ChannelType = "DIRECT"
	ChannelTypeBroker ChannelType = "BROKER"
	ChannelTypeInproc ChannelType = "INPROC"
)

func (c ChannelType) String() string { return string(c) }

// MessageStatus reports delivery outcome on reply messages.
type MessageStatus string

const (
	MessageStatusDelivered MessageStatus = "DELIVERED"
	MessageStatusFailed    MessageStatus = "FAILED"
)
