package tracker

import (
	"sync"
	"time"

	"github.com/vsariola/sequin"
)

type (
	// Broker is the centralized message broker of the engine. At the moment,
	// it carries messages from the engine (transport, freezer) to whoever is
	// presenting the engine to the user, through the ToGUI channel.
	// Additionally, the broker has a sync.Pool for *sequin.AudioBuffers, from
	// which the recorder can borrow buffers without allocating new memory
	// every time.
	//
	// For closing goroutines, the broker has two channels for each goroutine:
	// CloseXXX and FinishedXXX. The CloseXXX channel has a capacity of 1, so
	// you can always send a empty message (struct{}{}) to it without blocking.
	// If the channel is already full, that means someone else has already
	// requested its closure and the goroutine is already closing, so dropping
	// the message is fine. Then, FinishedXXX is used to signal that a goroutine
	// has succesfully closed and cleaned up. Nothing is ever sent to the
	// channel, it is only closed. You can wait until the goroutines is done
	// closing with "<- FinishedXXX", which for avoiding deadlocks can be
	// combined with a timeout:
	//    select {
	//      case <-FinishedXXX:
	//      case <-time.After(3 * time.Second):
	//    }
	Broker struct {
		ToGUI chan any

		CloseGUI    chan struct{}
		FinishedGUI chan struct{}

		bufferPool sync.Pool
	}

	// PositionMsg tells the tick the transport is at. Only sent while
	// timeline updates are enabled.
	PositionMsg struct {
		Tick int
	}

	// ProgressMsg is sent for every progress update of a freeze. Progress is
	// in [0, 100] while rendering and negative once the freeze is over.
	ProgressMsg struct {
		Pattern  *sequin.Pattern
		Progress int
	}

	// IsPlayingMsg is sent when the transport starts or stops.
	IsPlayingMsg struct {
		bool
	}
)

func NewBroker() *Broker {
	return &Broker{
		ToGUI:       make(chan any, 1024),
		CloseGUI:    make(chan struct{}, 1),
		FinishedGUI: make(chan struct{}),
		bufferPool:  sync.Pool{New: func() interface{} { return &sequin.AudioBuffer{} }},
	}
}

// GetAudioBuffer returns an audio buffer from the buffer pool. The buffer is
// guaranteed to be empty. After using the buffer, it should be returned to the
// pool with PutAudioBuffer.
func (b *Broker) GetAudioBuffer() *sequin.AudioBuffer {
	return b.bufferPool.Get().(*sequin.AudioBuffer)
}

// PutAudioBuffer returns an audio buffer to the buffer pool. If the buffer is
// not empty, its length is resetted (but capacity kept) before returning it to
// the pool.
func (b *Broker) PutAudioBuffer(buf *sequin.AudioBuffer) {
	if len(*buf) > 0 {
		*buf = (*buf)[:0]
	}
	b.bufferPool.Put(buf)
}

// Playing tells if the message reports the transport as playing.
func (m IsPlayingMsg) Playing() bool { return m.bool }

// TrySend is a helper function to send a value to a channel if it is not full.
// It is guaranteed to be non-blocking. Return true if the value was sent, false
// otherwise.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// TimeoutReceive is a helper function to block until a value is received from a
// channel, or timing out after t. ok will be false if the timeout occurred or
// if the channel is closed.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}

// send is TrySend that tolerates a nil broker.
func (b *Broker) send(msg any) bool {
	if b == nil {
		return false
	}
	return TrySend(b.ToGUI, msg)
}
