package tracker

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vsariola/sequin"
)

type (
	// Freezer renders patterns offline into sample buffers. It swaps the
	// mixer's live device for a Recorder, plays the pattern with the
	// transport and pulls buffers through the recorder as fast as it can,
	// until the pattern and the release tails of its notes are over. One
	// freeze runs at a time.
	Freezer struct {
		mixer      *Mixer
		transport  *Transport
		broker     *Broker
		sampleRate int
		bufferSize int

		mu  sync.Mutex
		job *FreezeJob
	}

	// FreezeJob is one freeze in progress or finished.
	FreezeJob struct {
		pattern *sequin.Pattern
		gen     uint64
		status  *FreezeStatus
		state   atomic.Int32
		result  FreezeState
		done    chan struct{}
		err     error
	}

	FreezeState int32

	// Confirm asks the user a yes/no question; true means yes.
	Confirm func(title, message string) bool
)

const (
	FreezeIdle FreezeState = iota
	FreezeRendering
	FreezeCompleted
	FreezeAborted
)

func (s FreezeState) String() string {
	switch s {
	case FreezeIdle:
		return "idle"
	case FreezeRendering:
		return "rendering"
	case FreezeCompleted:
		return "completed"
	case FreezeAborted:
		return "aborted"
	}
	return "unknown"
}

func NewFreezer(mixer *Mixer, transport *Transport, sampleRate, bufferSize int, broker *Broker) *Freezer {
	return &Freezer{
		mixer:      mixer,
		transport:  transport,
		broker:     broker,
		sampleRate: sampleRate,
		bufferSize: bufferSize,
	}
}

// Freeze starts rendering the pattern in a new goroutine and returns the job.
// A freeze still running is waited for first. Patterns not guarded by the
// mixer lock are refused, and so is freezing while the transport plays;
// freezing a muted pattern, or a pattern on a muted track, needs a yes from
// confirm. A previous frozen buffer of the pattern is dropped. If the
// recorder cannot be installed as the audio device, the freeze does not start
// and the live device stays as it was. If the pattern changes structurally
// while rendering, the result is thrown away and the job ends as aborted.
//
// The sinks are called from the freeze goroutine for every progress update,
// ending with a negative value.
func (f *Freezer) Freeze(p *sequin.Pattern, confirm Confirm, sinks ...ProgressSink) (*FreezeJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.job != nil {
		<-f.job.done
	}
	if p.Locker() != f.mixer {
		err := errForeignLock()
		f.broker.sendAlert("FreezeRefused", UserMessage(err), Warning)
		return nil, err
	}
	if f.transport.Playing() {
		err := errPlaying()
		f.broker.sendAlert("FreezeRefused", UserMessage(err), Warning)
		return nil, err
	}
	if p.Muted() || (p.Track() != nil && p.Track().Muted) {
		if confirm == nil || !confirm("Pattern muted", "The track this pattern belongs to or the pattern itself is currently muted therefore freezing makes no sense! Do you still want to continue?") {
			return nil, errDeclined()
		}
	}
	p.Unfreeze()
	rec, err := NewRecorder(f.sampleRate, f.bufferSize, f.broker)
	if err != nil {
		err = errDevice(err, "could not create recorder")
		f.broker.sendAlert("FreezeFailed", UserMessage(err), Error)
		return nil, err
	}
	restore, err := f.mixer.SetAudioDevice(rec)
	if err != nil {
		f.broker.sendAlert("FreezeFailed", UserMessage(err), Error)
		return nil, err
	}
	p.ResetFreezeAbort()
	job := &FreezeJob{
		pattern: p,
		gen:     p.Generation(),
		status:  NewFreezeStatus(p.AbortFreeze),
		done:    make(chan struct{}),
	}
	job.state.Store(int32(FreezeRendering))
	f.job = job
	go f.render(job, rec, restore, sinks)
	return job, nil
}

func (f *Freezer) render(job *FreezeJob, rec *Recorder, restore func() error, sinks []ProgressSink) {
	p := job.pattern
	last := -1
	publish := func(progress int) {
		if progress >= 0 {
			progress = min(progress, 100)
			if progress <= last {
				return
			}
			last = progress
		}
		job.status.SetProgress(progress)
		for _, s := range sinks {
			s.SetProgress(progress)
		}
		f.broker.send(ProgressMsg{Pattern: p, Progress: progress})
	}
	state := FreezeCompleted
	defer func() {
		if err := restore(); err != nil {
			f.broker.sendAlert("FreezeRestore", fmt.Sprintf("Could not restore the audio device: %v", err), Error)
			job.err = err
		}
		publish(-1)
		job.result = state
		job.state.Store(int32(state))
		close(job.done)
	}()
	f.transport.SetTimelineUpdates(false)
	renderErr := f.transport.PlayPattern(p, false)
	length := max(p.Length(), 1)
	publish(0)
	for renderErr == nil && f.transport.Pos() < length && !p.FreezeAborted() {
		if renderErr = rec.ProcessNextBuffer(); renderErr != nil {
			break
		}
		publish(f.transport.Pos() * 100 / length)
	}
	if renderErr == nil && !p.FreezeAborted() {
		publish(100)
		for f.mixer.HasPlayHandles() && !p.FreezeAborted() {
			if renderErr = rec.ProcessNextBuffer(); renderErr != nil {
				break
			}
		}
	}
	f.transport.Stop()
	f.transport.SetTimelineUpdates(true)
	switch {
	case renderErr != nil:
		job.err = renderErr
		f.broker.sendAlert("FreezeFailed", fmt.Sprintf("Freezing failed: %v", renderErr), Error)
		state = FreezeAborted
	case p.FreezeAborted():
		state = FreezeAborted
	case !p.SetFrozenIfUnchanged(rec.SampleBuffer(), job.gen):
		f.broker.sendAlert("FreezeStale", "The pattern changed while freezing; the frozen audio was discarded.", Warning)
		state = FreezeAborted
	}
}

// State returns the state of the latest freeze; FreezeIdle if there is none
// or its result has been consumed with Wait.
func (f *Freezer) State() FreezeState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.job == nil {
		return FreezeIdle
	}
	return f.job.State()
}

// Join aborts a freeze of p, if one is running, and waits for it to finish.
func (f *Freezer) Join(p *sequin.Pattern) {
	f.mu.Lock()
	job := f.job
	f.mu.Unlock()
	if job == nil || job.pattern != p {
		return
	}
	job.Abort()
	job.Wait()
}

// Wait waits for all freezes to finish.
func (f *Freezer) Wait() {
	f.mu.Lock()
	job := f.job
	f.mu.Unlock()
	if job != nil {
		<-job.done
	}
}

// Wait blocks until the freeze is over and returns FreezeCompleted or
// FreezeAborted. Afterwards the job reports FreezeIdle.
func (j *FreezeJob) Wait() FreezeState {
	<-j.done
	j.state.Store(int32(FreezeIdle))
	return j.result
}

// State returns the current state without consuming it.
func (j *FreezeJob) State() FreezeState {
	return FreezeState(j.state.Load())
}

// Abort asks the freeze to stop at the next buffer. No buffer is installed on
// the pattern.
func (j *FreezeJob) Abort() {
	j.pattern.AbortFreeze()
}

func (j *FreezeJob) Status() *FreezeStatus { return j.status }

func (j *FreezeJob) Pattern() *sequin.Pattern { return j.pattern }

// Done is closed when the freeze is over.
func (j *FreezeJob) Done() <-chan struct{} { return j.done }

// Err returns the error that ended the freeze, if any. Only valid after Done
// is closed.
func (j *FreezeJob) Err() error {
	<-j.done
	return j.err
}
