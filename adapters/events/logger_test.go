package events

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/layer-3/sigauth/log"
	"github.com/stretchr/testify/assert"
)

func TestLoggerAdapter(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewLoggerAdapter(log.NewWithWriter(&buf, "trace")).
		With(watermill.LogFields{"topic": TopicRevoked})

	adapter.Info("published", watermill.LogFields{"seq": 7})
	assert.Contains(t, buf.String(), `"topic":"sigauth.revoked"`)
	assert.Contains(t, buf.String(), `"seq":7`)
	assert.Contains(t, buf.String(), `"message":"published"`)

	buf.Reset()
	adapter.Error("publish failed", errors.New("redis down"), nil)
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), `"error":"redis down"`)

	buf.Reset()
	NewLoggerAdapter(log.NewWithWriter(&buf, "info")).Debug("hidden", nil)
	assert.Empty(t, buf.String())
}
