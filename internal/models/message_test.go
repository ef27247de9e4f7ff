package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to MessageStatus
		ok       bool
	}{
		{StatusSent, StatusDelivered, true},
		{StatusDelivered, StatusRead, true},
		{StatusSent, StatusRead, true},
		{StatusRead, StatusDelivered, false},
		{StatusDelivered, StatusSent, false},
		{StatusDelivered, StatusDelivered, false},
		{StatusSent, MessageStatus("bogus"), false},
		{MessageStatus(""), StatusSent, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanAdvanceTo(tt.to), "%q -> %q", tt.from, tt.to)
	}
}

func TestDraftValidate(t *testing.T) {
	assert.Error(t, Draft{}.Validate())
	assert.NoError(t, Draft{VoiceURL: "https://media/x.ogg"}.Validate())
	assert.NoError(t, Draft{Text: "hi", ImageURL: "https://media/x.png"}.Validate())
}

func TestNewEnvelope(t *testing.T) {
	raw, err := NewEnvelope(EventTyping, TypingPayload{RoomID: "clan-42", UserID: "u1", Name: "Ann"})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, EventTyping, env.Event)

	var p TypingPayload
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, "Ann", p.Name)
}

func TestNotificationID(t *testing.T) {
	assert.Equal(t, "X:u1:clan_join_request", NotificationID("X", "u1", NotifyJoinRequest))
}
