package message

import (
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
)

var words = []string{
	"amber", "breeze", "canyon", "delta", "ember", "fjord", "glacier", "harbor",
	"island", "jungle", "kettle", "lantern", "meadow", "nebula", "orchid", "pebble",
	"quartz", "river", "summit", "timber", "umbra", "valley", "willow", "zephyr",
}

const (
	minWords = 3
	maxWords = 8
)

type Message struct {
	Key        string `json:"key"`
	PlainText  string `json:"plain_text"`
	CipherText string `json:"cipher_text,omitempty"`
}

// New wraps text into a message with a fresh key.
func New(text string) Message {
	return Message{
		Key:       uuid.NewString(),
		PlainText: text,
	}
}

// Generate returns a message with a random sentence as its plain text.
func Generate() Message {
	n := minWords + rand.IntN(maxWords-minWords+1)
	picked := make([]string, n)
	for i := range picked {
		picked[i] = words[rand.IntN(len(words))]
	}
	return New(strings.Join(picked, " "))
}

// WithCipherText returns a copy that carries the encrypted text.
func (m Message) WithCipherText(cipherText string) Message {
	m.CipherText = cipherText
	return m
}

// Timed carries a value together with the moment it was queued and, once
// processed, how long it took from queueing to the end of processing.
type Timed[T any] struct {
	Value      T             `json:"value"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
	Elapsed    time.Duration `json:"elapsed"`
	Completed  bool          `json:"completed"`
	Err        string        `json:"error,omitempty"`
}

func NewTimed[T any](v T, enqueuedAt time.Time) Timed[T] {
	return Timed[T]{Value: v, EnqueuedAt: enqueuedAt}
}

// Done returns the processed copy of t holding v.
func (t Timed[T]) Done(v T, now time.Time) Timed[T] {
	t.Value = v
	t.Elapsed = now.Sub(t.EnqueuedAt)
	t.Completed = true
	return t
}

// Failed returns the processed copy of t with err recorded.
func (t Timed[T]) Failed(err error, now time.Time) Timed[T] {
	t.Elapsed = now.Sub(t.EnqueuedAt)
	t.Completed = true
	t.Err = err.Error()
	return t
}

func (t Timed[T]) Processed() bool {
	return t.Completed
}
