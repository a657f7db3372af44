package tracker

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vsariola/sequin"
)

// Recorder is an offline AudioDevice: instead of playing the audio, it pulls
// one buffer at a time when asked to, and accumulates the frames. Used as the
// audio device while freezing a pattern.
type Recorder struct {
	mu         sync.Mutex
	source     sequin.AudioSource
	frames     sequin.AudioBuffer
	sampleRate int
	bufferSize int
	broker     *Broker
}

var ErrRecorderStopped = errors.New("recorder is not started")

func NewRecorder(sampleRate, bufferSize int, broker *Broker) (*Recorder, error) {
	if sampleRate <= 0 || bufferSize <= 0 {
		return nil, fmt.Errorf("invalid recorder settings: sample rate %d, buffer size %d", sampleRate, bufferSize)
	}
	return &Recorder{sampleRate: sampleRate, bufferSize: bufferSize, broker: broker}, nil
}

func (r *Recorder) Start(source sequin.AudioSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.source = source
	return nil
}

func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.source = nil
	return nil
}

func (r *Recorder) Close() error {
	return r.Stop()
}

// ProcessNextBuffer pulls one buffer from the source and appends it to the
// recording.
func (r *Recorder) ProcessNextBuffer() error {
	r.mu.Lock()
	source := r.source
	r.mu.Unlock()
	if source == nil {
		return ErrRecorderStopped
	}
	var buf *sequin.AudioBuffer
	if r.broker != nil {
		buf = r.broker.GetAudioBuffer()
		defer r.broker.PutAudioBuffer(buf)
	} else {
		buf = &sequin.AudioBuffer{}
	}
	if cap(*buf) < r.bufferSize {
		*buf = make(sequin.AudioBuffer, r.bufferSize)
	}
	*buf = (*buf)[:r.bufferSize]
	if err := source(*buf); err != nil {
		return fmt.Errorf("rendering buffer failed: %w", err)
	}
	r.mu.Lock()
	r.frames = append(r.frames, *buf...)
	r.mu.Unlock()
	return nil
}

// Frames returns the number of frames recorded so far.
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// SampleBuffer returns the recording as an immutable buffer.
func (r *Recorder) SampleBuffer() *sequin.SampleBuffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sequin.NewSampleBuffer(r.frames, r.sampleRate)
}
