package tracker

import (
	"fmt"
	"sync"

	"github.com/vsariola/sequin"
)

// Engine wires together the parts needed to play and freeze patterns: the
// mixer with its lock and audio device, the transport, the freezer and the
// broker that reports to the GUI.
type Engine struct {
	Broker    *Broker
	Mixer     *Mixer
	Transport *Transport
	Freezer   *Freezer

	config Config

	mu      sync.Mutex
	current *sequin.Pattern
}

// NewEngine creates an engine rendering with a synth from synther. No live
// audio device is opened; use Mixer.Open for that.
func NewEngine(cfg Config, synther sequin.Synther, broker *Broker) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	synth, err := synther.Synth(cfg.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("synther.Synth: %w", err)
	}
	if broker == nil {
		broker = NewBroker()
	}
	mixer := NewMixer()
	transport := NewTransport(mixer, synth, cfg.SampleRate, cfg.BPM, broker)
	mixer.SetProcessor(transport)
	return &Engine{
		Broker:    broker,
		Mixer:     mixer,
		Transport: transport,
		Freezer:   NewFreezer(mixer, transport, cfg.SampleRate, cfg.BufferSize, broker),
		config:    cfg,
	}, nil
}

func (e *Engine) Config() Config { return e.config }

// NewPattern creates a pattern on the track, guarded by the mixer lock.
func (e *Engine) NewPattern(track *sequin.Track) *sequin.Pattern {
	return sequin.NewPattern(track, e.Mixer)
}

// LoadPattern creates a pattern on the track from a record.
func (e *Engine) LoadPattern(track *sequin.Track, rec sequin.PatternRecord) *sequin.Pattern {
	p := e.NewPattern(track)
	p.LoadState(rec)
	return p
}

func (e *Engine) CurrentPattern() *sequin.Pattern {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// SetCurrentPattern sets the pattern being edited; nil for none.
func (e *Engine) SetCurrentPattern(p *sequin.Pattern) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = p
}

// ReleasePattern is called when the pattern is removed from its track: it is
// no longer current, playback of it stops and a freeze of it is aborted and
// waited for.
func (e *Engine) ReleasePattern(p *sequin.Pattern) {
	e.mu.Lock()
	if e.current == p {
		e.current = nil
	}
	e.mu.Unlock()
	e.Freezer.Join(p)
	if e.Transport.Pattern() == p {
		e.Transport.Stop()
	}
}

// Freeze freezes the pattern; see Freezer.Freeze.
func (e *Engine) Freeze(p *sequin.Pattern, confirm Confirm, sinks ...ProgressSink) (*FreezeJob, error) {
	return e.Freezer.Freeze(p, confirm, sinks...)
}

// Close waits for a running freeze, stops the transport and closes the live
// audio device.
func (e *Engine) Close() error {
	e.Freezer.Wait()
	e.Transport.Stop()
	return e.Mixer.Close()
}
