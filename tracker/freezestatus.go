package tracker

import (
	"sync/atomic"
)

type (
	// ProgressSink receives the progress of a freeze: values in [0, 100]
	// while rendering, then one negative value when the freeze is over. It is
	// called from the freeze goroutine.
	ProgressSink interface {
		SetProgress(progress int)
	}

	// ProgressFunc adapts a function to a ProgressSink.
	ProgressFunc func(progress int)

	// FreezeStatus is the progress of one freeze as shared state: the latest
	// progress value and a way to cancel. Observers either poll Progress or
	// receive from Updates, which holds only the latest unread value, so a
	// slow observer skips values instead of blocking the render.
	FreezeStatus struct {
		progress atomic.Int64
		updates  chan int
		cancel   func()
	}
)

func (f ProgressFunc) SetProgress(progress int) { f(progress) }

func NewFreezeStatus(cancel func()) *FreezeStatus {
	return &FreezeStatus{updates: make(chan int, 1), cancel: cancel}
}

// SetProgress publishes a new progress value. Never blocks.
func (s *FreezeStatus) SetProgress(progress int) {
	s.progress.Store(int64(progress))
	for {
		select {
		case s.updates <- progress:
			return
		default:
		}
		select {
		case <-s.updates: // drop the stale value
		default:
		}
	}
}

// Progress returns the latest published progress.
func (s *FreezeStatus) Progress() int {
	return int(s.progress.Load())
}

// Done reports if the freeze is over, successfully or not.
func (s *FreezeStatus) Done() bool {
	return s.Progress() < 0
}

// Updates returns a channel carrying the latest unread progress value.
func (s *FreezeStatus) Updates() <-chan int {
	return s.updates
}

// Cancel asks the freeze to stop at the next buffer.
func (s *FreezeStatus) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}
