package bridge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/session-gateway-go/internal/transport"
)

func TestDecodeEvent(t *testing.T) {
	t.Run("pairing code", func(t *testing.T) {
		evt, err := DecodeEvent([]byte(`{"type":"pairing_code","pairingCode":"2@abc"}`))
		require.NoError(t, err)
		assert.Equal(t, transport.EventPairingCode, evt.Type)
		assert.Equal(t, "2@abc", evt.PairingCode)
	})

	t.Run("connection open with account", func(t *testing.T) {
		evt, err := DecodeEvent([]byte(`{"type":"connection_open","account":{"id":"628123@s.whatsapp.net","name":"Alice"}}`))
		require.NoError(t, err)
		require.NotNil(t, evt.Account)
		assert.Equal(t, "Alice", evt.Account.Name)
	})

	t.Run("connection closed keeps reason", func(t *testing.T) {
		evt, err := DecodeEvent([]byte(`{"type":"connection_closed","reason":401}`))
		require.NoError(t, err)
		assert.Equal(t, transport.ReasonLoggedOut, evt.Reason)
	})

	t.Run("connection closed without reason is a lost connection", func(t *testing.T) {
		evt, err := DecodeEvent([]byte(`{"type":"connection_closed"}`))
		require.NoError(t, err)
		assert.Equal(t, transport.ReasonConnectionLost, evt.Reason)
	})

	t.Run("credentials update", func(t *testing.T) {
		evt, err := DecodeEvent([]byte(`{"type":"credentials_updated","credentials":{"registered":true,"data":{"k":"v"}}}`))
		require.NoError(t, err)
		require.NotNil(t, evt.Credentials)
		assert.True(t, evt.Credentials.Registered)
	})

	t.Run("rejects malformed events", func(t *testing.T) {
		for _, payload := range []string{
			`not json`,
			`{"type":"mystery"}`,
			`{"type":"pairing_code"}`,
			`{"type":"credentials_updated"}`,
		} {
			_, err := DecodeEvent([]byte(payload))
			assert.Error(t, err, payload)
		}
	})
}

func TestCommandEncoding(t *testing.T) {
	cmd := Command{
		ID:        "c1",
		Type:      CommandSend,
		SessionID: "tenant-1",
		Target:    "628123@s.whatsapp.net",
		Message:   &transport.Message{Text: "hi"},
		ReplyTo:   "bridge:reply:c1",
	}
	raw, err := json.Marshal(cmd)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id":"c1","type":"send","sessionId":"tenant-1",
		"target":"628123@s.whatsapp.net","message":{"text":"hi"},
		"replyTo":"bridge:reply:c1"
	}`, string(raw))
}
