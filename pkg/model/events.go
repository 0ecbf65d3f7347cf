package model

// Event names on the real-time channel.
const (
	EventJoin             = "join"
	EventMessageSend      = "message:send"
	EventMessageReceived  = "message:received"
	EventMessageRead      = "message:read"
	EventMessageNew       = "message:new"
	EventMessageAck       = "message:ack"
	EventMessageDelivered = "message:delivered"
	EventTyping           = "typing"
)

// InboundEvents are the backend events a connection forwards to handlers.
var InboundEvents = []string{
	EventMessageNew,
	EventMessageAck,
	EventMessageDelivered,
	EventMessageRead,
	EventTyping,
}

type JoinRequest struct {
	UserID  string `json:"userId"`
	OtherID string `json:"otherId"`
}

type SendRequest struct {
	TempID string `json:"tempId"`
	From   string `json:"from"`
	To     string `json:"to"`
	Text   string `json:"text"`
}

// Ack confirms a send: the temporary id is replaced by ID at server time TS.
type Ack struct {
	TempID string `json:"tempId"`
	ID     string `json:"id"`
	TS     int64  `json:"ts"`
}

// Receipt is both the outbound received/read confirmation and the inbound
// delivered/read notification. By is the acknowledging user.
type Receipt struct {
	ID string `json:"id"`
	By string `json:"by"`
}

type Typing struct {
	Room     string `json:"room"`
	From     string `json:"from"`
	IsTyping bool   `json:"isTyping"`
}
