package board

import (
	"errors"
	"fmt"
	"slices"

	"github.com/NamiraNet/handoff/internal/message"
)

var ErrUnknownMessage = errors.New("unknown message")

type Item = message.Timed[message.Message]

type ChangeKind int

const (
	Inserted ChangeKind = iota
	Changed
)

func (k ChangeKind) String() string {
	if k == Inserted {
		return "inserted"
	}
	return "changed"
}

type Status string

const (
	StatusQueued    Status = "queued"
	StatusEncrypted Status = "encrypted"
	StatusFailed    Status = "failed"
)

func StatusOf(item Item) Status {
	switch {
	case item.Err != "":
		return StatusFailed
	case item.Processed():
		return StatusEncrypted
	default:
		return StatusQueued
	}
}

// Listener is told about every insert and update, with the row index.
type Listener func(index int, kind ChangeKind, item Item)

// Board is the ordered list of messages shown to the user. It is owned by the
// foreground goroutine and is not safe for concurrent use; background work
// must post its updates through the looper.
type Board struct {
	items     []Item
	index     map[string]int
	listeners []Listener
}

func New() *Board {
	return &Board{index: make(map[string]int)}
}

func (b *Board) Subscribe(l Listener) {
	b.listeners = append(b.listeners, l)
}

func (b *Board) Insert(item Item) {
	b.items = append(b.items, item)
	i := len(b.items) - 1
	b.index[item.Value.Key] = i
	b.notify(i, Inserted, item)
}

// Update replaces the row with the same key. A key that was never inserted is
// a bug in the caller and is reported as ErrUnknownMessage.
func (b *Board) Update(item Item) error {
	i, ok := b.index[item.Value.Key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMessage, item.Value.Key)
	}
	b.items[i] = item
	b.notify(i, Changed, item)
	return nil
}

func (b *Board) Get(key string) (Item, bool) {
	i, ok := b.index[key]
	if !ok {
		return Item{}, false
	}
	return b.items[i], true
}

// Items returns a copy of the rows in insertion order.
func (b *Board) Items() []Item {
	return slices.Clone(b.items)
}

func (b *Board) Len() int {
	return len(b.items)
}

// Pending counts rows still waiting for the worker.
func (b *Board) Pending() int {
	n := 0
	for _, item := range b.items {
		if !item.Processed() {
			n++
		}
	}
	return n
}

func (b *Board) notify(i int, kind ChangeKind, item Item) {
	for _, l := range b.listeners {
		l(i, kind, item)
	}
}
