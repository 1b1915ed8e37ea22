package message_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/NamiraNet/handoff/internal/message"
	"github.com/stretchr/testify/assert"
)

func TestGenerate(t *testing.T) {
	seen := make(map[string]struct{})
	for range 100 {
		m := message.Generate()
		assert.NotEmpty(t, m.Key)
		assert.Empty(t, m.CipherText)

		n := len(strings.Fields(m.PlainText))
		assert.GreaterOrEqual(t, n, 3)
		assert.LessOrEqual(t, n, 8)

		_, dup := seen[m.Key]
		assert.False(t, dup, "duplicate key %s", m.Key)
		seen[m.Key] = struct{}{}
	}
}

func TestWithCipherText(t *testing.T) {
	m := message.New("plain")
	c := m.WithCipherText("cipher")
	assert.Equal(t, m.Key, c.Key)
	assert.Equal(t, "plain", c.PlainText)
	assert.Equal(t, "cipher", c.CipherText)
	assert.Empty(t, m.CipherText)
}

func TestTimed(t *testing.T) {
	queued := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m := message.New("plain")
	item := message.NewTimed(m, queued)
	assert.False(t, item.Processed())

	done := item.Done(m.WithCipherText("x"), queued.Add(1500*time.Millisecond))
	assert.True(t, done.Processed())
	assert.Equal(t, 1500*time.Millisecond, done.Elapsed)
	assert.Equal(t, "x", done.Value.CipherText)
	assert.Equal(t, queued, done.EnqueuedAt)
	assert.False(t, item.Processed())

	failed := item.Failed(errors.New("nope"), queued.Add(time.Second))
	assert.True(t, failed.Processed())
	assert.Equal(t, "nope", failed.Err)
	assert.Equal(t, time.Second, failed.Elapsed)

	// a coarse clock can report zero elapsed time
	instant := item.Done(m, queued)
	assert.True(t, instant.Processed())
	assert.Zero(t, instant.Elapsed)
}
