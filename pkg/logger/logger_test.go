package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureLevelFiltersDebug(t *testing.T) {
	l := New()
	var buf bytes.Buffer
	l.SetOutput(&buf)

	l.Configure("info", "text")
	l.Debug("hidden %d", 1)
	assert.Empty(t, buf.String())

	l.Configure("debug", "")
	l.Debug("shown %d", 2)
	assert.Contains(t, buf.String(), "shown 2")
}

func TestConfigureJSONFormat(t *testing.T) {
	l := New()
	var buf bytes.Buffer
	l.SetOutput(&buf)
	l.Configure("", "json")

	l.WithField("room", "clan-42").Info("joined")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "joined", line["msg"])
	assert.Equal(t, "clan-42", line["room"])
}
