package models

import "encoding/json"

type EventName string

// Client to server.
const (
	EventJoinRoom              EventName = "joinRoom"
	EventLeaveRoom             EventName = "leaveRoom"
	EventSendMessage           EventName = "sendMessage"
	EventMessageRead           EventName = "messageRead"
	EventMarkNotificationsSeen EventName = "markNotificationsSeen"
	EventAcceptRequest         EventName = "acceptRequest"
	EventRejectRequest         EventName = "rejectRequest"
)

// Server to client.
const (
	EventMessage                  EventName = "message"
	EventUserJoined               EventName = "userJoined"
	EventUserLeft                 EventName = "userLeft"
	EventOnlineUsers              EventName = "onlineUsers"
	EventMessageStatusUpdate      EventName = "messageStatusUpdate"
	EventNotificationMarkedAsRead EventName = "notificationMarkedAsRead"
	EventJoinRequestNotification  EventName = "joinRequestNotification"
	EventRequestPending           EventName = "requestPendingNotification"
	EventRequestAccepted          EventName = "requestAcceptedNotification"
	EventRequestRejected          EventName = "requestRejectedNotification"
	EventReactionUpdate           EventName = "reactionUpdate"
	EventError                    EventName = "error"
)

// Both directions.
const (
	EventDeleteMessage EventName = "deleteMessage"
	EventTyping        EventName = "typing"
)

// Envelope is the single frame shape on the push channel.
type Envelope struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(event EventName, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

type RoomPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type MessageRef struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
}

type TypingPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type OnlineUsersPayload struct {
	RoomID  string   `json:"roomId"`
	UserIDs []string `json:"userIds"`
}

type StatusUpdatePayload struct {
	RoomID    string        `json:"roomId"`
	MessageID string        `json:"messageId"`
	Status    MessageStatus `json:"status"`
}

type MessageReadPayload struct {
	RoomID     string   `json:"roomId"`
	MessageIDs []string `json:"messageIds"`
}

type NotificationIDsPayload struct {
	IDs []string `json:"ids"`
}

type RequestActionPayload struct {
	ClanID string `json:"clanId"`
	UserID string `json:"userId"`
}

type ReactionPayload struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
	MemberID  string `json:"memberId"`
	// Emoji "" means the member's reaction was removed.
	Emoji string `json:"emoji"`
}

// ErrorPayload reports a client event the server refused.
type ErrorPayload struct {
	Event   EventName `json:"event"`
	Message string    `json:"message"`
}
