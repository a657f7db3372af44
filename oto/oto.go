// Package oto plays audio on the sound card with the oto library.
package oto

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/vsariola/sequin"
)

type (
	// Device is a live sequin.AudioDevice. Start creates a new oto player
	// pulling audio from the source; Stop closes it.
	Device struct {
		context    *oto.Context
		bufferSize int

		mu     sync.Mutex
		player *oto.Player
		reader *sourceReader
	}

	sourceReader struct {
		source sequin.AudioSource
		buf    sequin.AudioBuffer
		err    atomic.Pointer[error] // set on the player goroutine
	}
)

// oto allows one context per process
var (
	contextOnce sync.Once
	context     *oto.Context
	contextErr  error
)

// NewDevice opens the sound card at sampleRate and returns a device that
// pulls bufferSize frames from its source at a time.
func NewDevice(sampleRate, bufferSize int) (*Device, error) {
	contextOnce.Do(func() {
		var ready chan struct{}
		context, ready, contextErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 2,
			Format:       oto.FormatFloat32LE,
			BufferSize:   time.Duration(bufferSize) * time.Second / time.Duration(sampleRate) * 4,
		})
		if contextErr == nil {
			<-ready
		}
	})
	if contextErr != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", contextErr)
	}
	return &Device{context: context, bufferSize: bufferSize}, nil
}

func (d *Device) Start(source sequin.AudioSource) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player != nil {
		if err := d.player.Close(); err != nil {
			return fmt.Errorf("cannot close oto player: %w", err)
		}
	}
	d.reader = &sourceReader{source: source, buf: make(sequin.AudioBuffer, d.bufferSize)}
	d.player = d.context.NewPlayer(d.reader)
	d.player.SetBufferSize(d.bufferSize * 8)
	d.player.Play()
	return nil
}

func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return nil
	}
	d.player.Pause()
	err := d.player.Close()
	d.player = nil
	if err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	if errp := d.reader.err.Load(); errp != nil {
		return fmt.Errorf("audio source failed: %w", *errp)
	}
	return nil
}

// Close disposes of resources
func (d *Device) Close() error {
	return d.Stop()
}

// Read fills p with whole frames rendered by the source.
func (r *sourceReader) Read(p []byte) (int, error) {
	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	if cap(r.buf) < frames {
		r.buf = make(sequin.AudioBuffer, frames)
	}
	r.buf = r.buf[:frames]
	if err := r.source(r.buf); err != nil {
		r.err.Store(&err)
		return 0, err
	}
	return len(FloatBufferTo32BitLE(r.buf, p[:0])), nil
}
