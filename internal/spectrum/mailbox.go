package spectrum

// Mailbox is a capacity-1 channel that keeps only the newest value. Put never
// blocks, so the capture producer can publish at buffer cadence no matter how
// slowly the reader polls.
type Mailbox[T any] struct {
	ch chan T
}

// NewMailbox returns an empty mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{ch: make(chan T, 1)}
}

// Put replaces any unread value with v.
func (m *Mailbox[T]) Put(v T) {
	for {
		select {
		case m.ch <- v:
			return
		default:
		}
		select {
		case <-m.ch:
		default:
		}
	}
}

// C is the receive side for select loops.
func (m *Mailbox[T]) C() <-chan T { return m.ch }

// Take returns the pending value without blocking.
func (m *Mailbox[T]) Take() (T, bool) {
	select {
	case v := <-m.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Bars spreads the smoothed bands over width bars and softens neighbours with
// a [0.25, 0.5, 0.25] kernel. Values stay in [0,1].
func Bars(f Frame, width int) []float64 {
	if width <= 0 {
		return nil
	}
	raw := make([]float64, width)
	for i := range raw {
		raw[i] = f.Smoothed[i*Bands/width]
	}
	out := make([]float64, width)
	for i := range raw {
		left, right := raw[i], raw[i]
		if i > 0 {
			left = raw[i-1]
		}
		if i < width-1 {
			right = raw[i+1]
		}
		out[i] = 0.25*left + 0.5*raw[i] + 0.25*right
	}
	return out
}
