package tracker

import (
	"fmt"
	"math"
	"sync"

	"github.com/vsariola/sequin"
	"github.com/vsariola/sequin/vm"
)

type (
	// Transport plays one pattern through a synth. Its state is guarded by
	// the mixer lock: the control methods take the lock, while Process and
	// HasPlayHandles are called by the mixer with the lock already held.
	Transport struct {
		lock    sync.Locker
		synth   sequin.Synth
		broker  *Broker
		pattern *sequin.Pattern

		playing  bool
		loop     bool
		finished bool // non-looping playback went past the end of the pattern

		frame         int // frames played since the start of the pattern
		next          int // next tick whose events have not been handled
		framesPerTick float64

		timelineUpdates bool
		voices          [vm.MaxVoices]voice
	}

	voice struct {
		sustain           bool
		releaseAt         int
		samplesSinceEvent int
	}
)

// TicksPerBeat: a tact is four beats.
const TicksPerBeat = sequin.TicksPerTact / 4

// NewTransport creates a stopped transport. lock should be the mixer lock.
func NewTransport(lock sync.Locker, synth sequin.Synth, sampleRate int, bpm int, broker *Broker) *Transport {
	return &Transport{
		lock:            lock,
		synth:           synth,
		broker:          broker,
		framesPerTick:   float64(sampleRate) * 60 / float64(bpm*TicksPerBeat),
		timelineUpdates: true,
	}
}

// PlayPattern starts playing the pattern from tick 0. If loop is false,
// playing continues past the end of the pattern without triggering new
// notes, until Stop is called. A frozen pattern plays its frozen buffer
// instead of the synth.
//
// The pattern must be guarded by the same lock as the transport.
func (t *Transport) PlayPattern(p *sequin.Pattern, loop bool) error {
	if p != nil && p.Locker() != t.lock {
		return errForeignLock()
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	t.releaseAll()
	t.pattern = p
	t.loop = loop
	t.playing = p != nil
	t.finished = false
	t.frame = 0
	t.next = 0
	t.broker.send(IsPlayingMsg{bool: t.playing})
	return nil
}

// Stop stops playing and releases all sustained voices.
func (t *Transport) Stop() {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.releaseAll()
	if t.playing {
		t.playing = false
		t.broker.send(IsPlayingMsg{bool: false})
	}
}

func (t *Transport) Playing() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.playing
}

// Pattern returns the pattern being played, or nil.
func (t *Transport) Pattern() *sequin.Pattern {
	t.lock.Lock()
	defer t.lock.Unlock()
	if !t.playing {
		return nil
	}
	return t.pattern
}

// Finished reports if non-looping playback has gone past the end of the
// pattern, or past the end of its frozen buffer.
func (t *Transport) Finished() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.playing && t.finished
}

// Pos returns the current position in ticks from the start of the pattern.
func (t *Transport) Pos() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return int(float64(t.frame) / t.framesPerTick)
}

// SetTimelineUpdates enables or disables sending PositionMsgs.
func (t *Transport) SetTimelineUpdates(enabled bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.timelineUpdates = enabled
}

// HasPlayHandles reports if the synth still has sounding voices. Called with
// the lock held.
func (t *Transport) HasPlayHandles() bool {
	return t.synth != nil && t.synth.ActiveVoices() > 0
}

// Process renders the buffer, triggering and releasing notes on the tick
// boundaries. Called with the lock held.
func (t *Transport) Process(buffer sequin.AudioBuffer) error {
	if t.playing && !t.finished {
		if frozen := t.pattern.Frozen(); frozen != nil {
			t.playFrozen(buffer, frozen)
			if t.timelineUpdates {
				t.broker.send(PositionMsg{Tick: int(float64(t.frame) / t.framesPerTick)})
			}
			return nil
		}
	}
	for len(buffer) > 0 {
		if t.playing && !t.finished {
			for !t.finished && t.frame >= t.tickFrame(t.next) {
				t.processTick()
			}
		}
		n := len(buffer)
		if t.playing && !t.finished {
			n = min(n, t.tickFrame(t.next)-t.frame)
		}
		if t.synth != nil {
			if err := t.synth.Render(buffer[:n]); err != nil {
				t.synth = nil
				t.broker.sendAlert("TransportCrash", fmt.Sprintf("synth.Render: %v", err), Error)
				return fmt.Errorf("synth.Render: %w", err)
			}
		} else {
			buffer[:n].Fill([2]float32{})
		}
		buffer = buffer[n:]
		t.frame += n
		for i := range t.voices {
			t.voices[i].samplesSinceEvent += n
		}
	}
	if t.playing && t.timelineUpdates {
		t.broker.send(PositionMsg{Tick: int(float64(t.frame) / t.framesPerTick)})
	}
	return nil
}

// playFrozen copies the frozen buffer to the output. Looping playback wraps at
// the pattern end; otherwise playback finishes at the end of the buffer,
// release tail included.
func (t *Transport) playFrozen(buffer sequin.AudioBuffer, frozen *sequin.SampleBuffer) {
	end := frozen.Len()
	if t.loop {
		end = min(end, t.tickFrame(t.pattern.LengthLocked()))
	}
	for len(buffer) > 0 {
		if t.frame >= end {
			if !t.loop || end == 0 {
				buffer.Fill([2]float32{})
				t.frame += len(buffer)
				t.finished = true
				return
			}
			t.frame = 0
		}
		n := frozen.CopyFrames(buffer[:min(len(buffer), end-t.frame)], t.frame)
		buffer = buffer[n:]
		t.frame += n
	}
}

func (t *Transport) tickFrame(tick int) int {
	return int(math.Ceil(float64(tick) * t.framesPerTick))
}

// processTick handles the events of tick t.next and advances it.
func (t *Transport) processTick() {
	tick := t.next
	if tick >= t.pattern.LengthLocked() {
		t.releaseAll()
		if !t.loop {
			t.finished = true
			return
		}
		t.frame, t.next, tick = 0, 0, 0
	}
	t.next++
	for i := range t.voices {
		if v := &t.voices[i]; v.sustain && v.releaseAt <= tick {
			t.release(i)
		}
	}
	if t.pattern.MutedLocked() || (t.pattern.Track() != nil && t.pattern.Track().Muted) {
		return
	}
	for _, n := range t.pattern.NotesLocked().StartingAt(tick) {
		switch n.State {
		case sequin.StepHeld:
			t.trigger(n, tick+n.Duration)
		case sequin.StepActive:
			t.trigger(n, tick+sequin.StepTicks)
		}
	}
}

func (t *Transport) trigger(n *sequin.Note, releaseAt int) {
	if t.synth == nil {
		return
	}
	var age int = 0
	oldestReleased := false
	oldestVoice := 0
	for i := range t.voices {
		// prefer voices that have been released; among equals, the older
		if (!t.voices[i].sustain && !oldestReleased) ||
			(!t.voices[i].sustain == oldestReleased && t.voices[i].samplesSinceEvent >= age) {
			oldestVoice = i
			oldestReleased = !t.voices[i].sustain
			age = t.voices[i].samplesSinceEvent
		}
	}
	volume := n.Volume
	if n.State == sequin.StepActive && volume == 0 {
		volume = sequin.DefaultVolume // slots are created without a volume
	}
	velocity := byte(clampInt(volume*127/sequin.MaxVolume, 0, 127))
	key := byte(clampInt(n.Key, 0, 127))
	t.voices[oldestVoice] = voice{sustain: true, releaseAt: releaseAt}
	t.synth.Trigger(oldestVoice, key, velocity)
}

func (t *Transport) release(i int) {
	t.voices[i].sustain = false
	t.voices[i].samplesSinceEvent = 0
	if t.synth != nil {
		t.synth.Release(i)
	}
}

func (t *Transport) releaseAll() {
	for i := range t.voices {
		if t.voices[i].sustain {
			t.release(i)
		}
	}
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
