package ports

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogAudit(t *testing.T) {
	t.Run("nil logger is a no-op", func(t *testing.T) {
		assert.NotPanics(t, func() {
			LogAudit(context.Background(), nil, "assessment finished", "request_id", "abc")
		})
	})

	t.Run("emits the action with its attributes", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))

		LogAudit(context.Background(), logger, "assessment cancelled", "request_id", "abc")

		out := buf.String()
		assert.Contains(t, out, "assessment cancelled")
		assert.Contains(t, out, "request_id=abc")
	})
}
