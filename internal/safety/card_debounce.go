// internal/safety/card_debounce.go
package safety

import (
	"sync"
	"time"
)

// DefaultDebounceWindow suppresses repeated taps of the same card
const DefaultDebounceWindow = 3 * time.Second

// CardDebounce remembers the last card seen. Only one slot exists: a
// different card always replaces it.
type CardDebounce struct {
	mu     sync.Mutex
	window time.Duration
	cardID string
	seenAt time.Time
	now    func() time.Time
}

// NewCardDebounce creates a debounce slot. A non-positive window uses the default.
func NewCardDebounce(window time.Duration) *CardDebounce {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &CardDebounce{window: window, now: time.Now}
}

// Accept reports whether the tap should proceed. A repeat of the last card
// inside the window is rejected and leaves the slot untouched.
func (d *CardDebounce) Accept(cardID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if cardID == d.cardID && !d.seenAt.IsZero() && now.Sub(d.seenAt) < d.window {
		return false
	}
	d.cardID = cardID
	d.seenAt = now
	return true
}
