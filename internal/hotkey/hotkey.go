// Package hotkey models push-to-talk events. The daemon feeds them from the
// control socket; any global-shortcut tool can drive it via `flowstate record`.
package hotkey

import (
	"fmt"
	"strings"
	"time"
)

// Kind is what happened to the key.
type Kind int

const (
	Press Kind = iota
	Release
	Toggle
)

func (k Kind) String() string {
	switch k {
	case Press:
		return "press"
	case Release:
		return "release"
	case Toggle:
		return "toggle"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind accepts press, release, toggle (any case). "down" and "up" are
// aliases for press and release.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "press", "down":
		return Press, nil
	case "release", "up":
		return Release, nil
	case "toggle":
		return Toggle, nil
	default:
		return 0, fmt.Errorf("unknown hotkey event %q (want press, release or toggle)", s)
	}
}

// Event is one hotkey transition. App is the frontmost app at the time, when
// the sender knows it. When Done is set the handler sends exactly one value on
// it: the error from applying the event, or nil.
type Event struct {
	Kind Kind
	App  string
	At   time.Time
	Done chan<- error
}

// Reply reports the outcome to a waiting sender. Done must be buffered.
func (e Event) Reply(err error) {
	if e.Done == nil {
		return
	}
	select {
	case e.Done <- err:
	default:
	}
}

// Channel is a buffered event source. Send never blocks; when the buffer is
// full the event is dropped and false returned.
type Channel struct {
	ch chan Event
}

func NewChannel(size int) *Channel {
	if size <= 0 {
		size = 8
	}
	return &Channel{ch: make(chan Event, size)}
}

func (c *Channel) Send(ev Event) bool {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case c.ch <- ev:
		return true
	default:
		return false
	}
}

// Events is the receive side.
func (c *Channel) Events() <-chan Event { return c.ch }
