package tracker_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/vsariola/sequin"
	"github.com/vsariola/sequin/tracker"
	"github.com/vsariola/sequin/vm"
)

type fakeDevice struct {
	mu       sync.Mutex
	starts   int
	stops    int
	closes   int
	startErr error
	stopErr  error
	source   sequin.AudioSource
}

func (d *fakeDevice) Start(source sequin.AudioSource) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.starts++
	d.source = source
	return nil
}

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopErr != nil {
		return d.stopErr
	}
	d.stops++
	d.source = nil
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	return nil
}

func (d *fakeDevice) counts() (starts, stops int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts, d.stops
}

type progressLog struct {
	mu     sync.Mutex
	values []int
}

func (l *progressLog) SetProgress(v int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.values = append(l.values, v)
}

func (l *progressLog) get() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.values...)
}

func newTestEngine(t *testing.T) (*tracker.Engine, *fakeDevice) {
	t.Helper()
	cfg := tracker.Config{SampleRate: 8000, BufferSize: 64, BPM: 120}
	e, err := tracker.NewEngine(cfg, vm.GoSynther{}, nil)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	live := &fakeDevice{}
	if err := e.Mixer.Open(live); err != nil {
		t.Fatalf("Mixer.Open failed: %v", err)
	}
	return e, live
}

func checkProgress(t *testing.T, values []int, wantFull bool) {
	t.Helper()
	if len(values) < 2 {
		t.Fatalf("expected at least two progress values, got %v", values)
	}
	if values[len(values)-1] >= 0 {
		t.Fatalf("last progress value should be negative, got %v", values)
	}
	prev := -1
	for _, v := range values[:len(values)-1] {
		if v < prev || v > 100 || v < 0 {
			t.Fatalf("progress not monotonic in [0, 100]: %v", values)
		}
		prev = v
	}
	if full := prev == 100; full != wantFull {
		t.Fatalf("expected reaching 100 to be %v, got values %v", wantFull, values)
	}
}

func TestFreezeEmptyPattern(t *testing.T) {
	e, live := newTestEngine(t)
	p := e.NewPattern(&sequin.Track{Name: "drums"})
	log := &progressLog{}
	job, err := e.Freeze(p, nil, log)
	if err != nil {
		t.Fatalf("Freeze failed: %v", err)
	}
	if state := job.Wait(); state != tracker.FreezeCompleted {
		t.Fatalf("expected completed freeze, got %v", state)
	}
	frozen := p.Frozen()
	if frozen == nil {
		t.Fatalf("expected a frozen buffer")
	}
	// 64 ticks at 250 frames per tick
	if frozen.Len() < 16000 {
		t.Fatalf("frozen buffer too short: %d frames", frozen.Len())
	}
	if frozen.Peak() != 0 {
		t.Fatalf("frozen empty pattern should be silent, peak %v", frozen.Peak())
	}
	checkProgress(t, log.get(), true)
	if !job.Status().Done() {
		t.Fatalf("status should report done")
	}
	if starts, stops := live.counts(); starts != 2 || stops != 1 {
		t.Fatalf("live device should be stopped once and restarted once, got %d starts, %d stops", starts, stops)
	}
	if e.Mixer.AudioDevice() != live {
		t.Fatalf("live device not restored")
	}
	if e.Freezer.State() != tracker.FreezeIdle {
		t.Fatalf("consumed job should leave the freezer idle, got %v", e.Freezer.State())
	}
}

func TestFreezeRendersNotes(t *testing.T) {
	e, _ := newTestEngine(t)
	p := e.NewPattern(nil)
	p.ToggleStepActive(0)
	p.AddNote(sequin.NewNote(32, 16, 57, 80), 0)
	job, err := e.Freeze(p, nil)
	if err != nil {
		t.Fatalf("Freeze failed: %v", err)
	}
	if state := job.Wait(); state != tracker.FreezeCompleted {
		t.Fatalf("expected completed freeze, got %v", state)
	}
	frozen := p.Frozen()
	if frozen == nil || frozen.Peak() == 0 {
		t.Fatalf("expected an audible frozen buffer")
	}
	if frozen.SampleRate() != 8000 {
		t.Fatalf("expected sample rate 8000, got %d", frozen.SampleRate())
	}
	if e.Transport.Playing() {
		t.Fatalf("transport should be stopped after freezing")
	}
}

func TestFreezeAbortAtHalfway(t *testing.T) {
	e, live := newTestEngine(t)
	p := e.NewPattern(nil)
	p.AddNote(sequin.NewNote(0, 128, 60, 100), 0)
	log := &progressLog{}
	abortAtHalf := tracker.ProgressFunc(func(v int) {
		if v >= 50 {
			p.AbortFreeze()
		}
	})
	job, err := e.Freeze(p, nil, log, abortAtHalf)
	if err != nil {
		t.Fatalf("Freeze failed: %v", err)
	}
	if state := job.Wait(); state != tracker.FreezeAborted {
		t.Fatalf("expected aborted freeze, got %v", state)
	}
	if p.Frozen() != nil {
		t.Fatalf("aborted freeze should not install a buffer")
	}
	checkProgress(t, log.get(), false)
	if starts, stops := live.counts(); starts != 2 || stops != 1 {
		t.Fatalf("live device should be restored exactly once, got %d starts, %d stops", starts, stops)
	}
	if job.Err() != nil {
		t.Fatalf("abort is not an error, got %v", job.Err())
	}
}

func TestFreezeDiscardedWhenPatternChanges(t *testing.T) {
	e, live := newTestEngine(t)
	p := e.NewPattern(nil)
	p.AddNote(sequin.NewNote(0, 128, 60, 100), 0)
	other := sequin.NewPattern(nil, nil)
	other.AddNote(sequin.NewNote(16, 8, 64, 100), 0)
	rec := other.SaveState(false)
	var once sync.Once
	loadAtHalf := tracker.ProgressFunc(func(v int) {
		if v >= 50 {
			once.Do(func() { p.LoadState(rec) })
		}
	})
	job, err := e.Freeze(p, nil, loadAtHalf)
	if err != nil {
		t.Fatalf("Freeze failed: %v", err)
	}
	if state := job.Wait(); state != tracker.FreezeAborted {
		t.Fatalf("expected aborted freeze, got %v", state)
	}
	if p.Frozen() != nil {
		t.Fatalf("audio of the replaced notes should not be installed")
	}
	if p.Length() != 64 {
		t.Fatalf("expected the loaded notes to stay, got length %d", p.Length())
	}
	if starts, stops := live.counts(); starts != 2 || stops != 1 {
		t.Fatalf("live device should be restored exactly once, got %d starts, %d stops", starts, stops)
	}
}

func TestFreezeRefusesPatternWithOwnLock(t *testing.T) {
	e, live := newTestEngine(t)
	p := sequin.NewPattern(nil, nil)
	if _, err := e.Freeze(p, nil); tracker.ErrorKind(err) != tracker.KindForeignLock {
		t.Fatalf("expected KindForeignLock, got %v", err)
	}
	if err := e.Transport.PlayPattern(p, false); tracker.ErrorKind(err) != tracker.KindForeignLock {
		t.Fatalf("expected KindForeignLock from PlayPattern, got %v", err)
	}
	if e.Transport.Playing() {
		t.Fatalf("transport should not play a foreign pattern")
	}
	if _, stops := live.counts(); stops != 0 {
		t.Fatalf("refused freeze should not touch the live device")
	}
}

func TestFreezeRecorderFailureAlerts(t *testing.T) {
	broker := tracker.NewBroker()
	mixer := tracker.NewMixer()
	synth, err := vm.GoSynther{}.Synth(8000)
	if err != nil {
		t.Fatalf("Synth failed: %v", err)
	}
	transport := tracker.NewTransport(mixer, synth, 8000, 120, broker)
	mixer.SetProcessor(transport)
	f := tracker.NewFreezer(mixer, transport, 8000, 0, broker)
	if _, err := f.Freeze(sequin.NewPattern(nil, mixer), nil); tracker.ErrorKind(err) != tracker.KindDevice {
		t.Fatalf("expected KindDevice, got %v", err)
	}
	var alerted bool
	for len(broker.ToGUI) > 0 {
		if a, ok := (<-broker.ToGUI).(tracker.Alert); ok && a.Priority == tracker.Error {
			alerted = true
		}
	}
	if !alerted {
		t.Fatalf("recorder failure should send an error alert")
	}
}

func TestFreezeRefusedWhilePlaying(t *testing.T) {
	e, live := newTestEngine(t)
	p := e.NewPattern(nil)
	e.Transport.PlayPattern(p, true)
	_, err := e.Freeze(p, nil)
	if tracker.ErrorKind(err) != tracker.KindPlaying {
		t.Fatalf("expected KindPlaying, got %v", err)
	}
	if tracker.UserMessage(err) == "" {
		t.Fatalf("refusal should have a user message")
	}
	if _, stops := live.counts(); stops != 0 {
		t.Fatalf("refused freeze should not touch the live device")
	}
	var alerted bool
	for len(e.Broker.ToGUI) > 0 {
		if a, ok := (<-e.Broker.ToGUI).(tracker.Alert); ok && a.Priority == tracker.Warning {
			alerted = true
		}
	}
	if !alerted {
		t.Fatalf("refusal should send a warning alert")
	}
}

func TestFreezeMutedNeedsConfirmation(t *testing.T) {
	e, live := newTestEngine(t)
	track := &sequin.Track{Name: "muted", Muted: true}
	p := e.NewPattern(track)
	var asked int
	_, err := e.Freeze(p, func(title, message string) bool {
		asked++
		return false
	})
	if tracker.ErrorKind(err) != tracker.KindDeclined {
		t.Fatalf("expected KindDeclined, got %v", err)
	}
	if asked != 1 {
		t.Fatalf("expected one question, got %d", asked)
	}
	if _, stops := live.counts(); stops != 0 {
		t.Fatalf("declined freeze should not touch the live device")
	}
	job, err := e.Freeze(p, func(title, message string) bool { return true })
	if err != nil {
		t.Fatalf("confirmed freeze failed: %v", err)
	}
	if state := job.Wait(); state != tracker.FreezeCompleted {
		t.Fatalf("expected completed freeze, got %v", state)
	}
}

func TestFreezeDeviceFailureKeepsLiveDevice(t *testing.T) {
	e, live := newTestEngine(t)
	live.stopErr = errors.New("device stuck")
	p := e.NewPattern(nil)
	_, err := e.Freeze(p, nil)
	if tracker.ErrorKind(err) != tracker.KindDevice {
		t.Fatalf("expected KindDevice, got %v", err)
	}
	if e.Mixer.AudioDevice() != live {
		t.Fatalf("live device should stay active")
	}
	if e.Transport.Playing() || p.Frozen() != nil {
		t.Fatalf("failed freeze should not start")
	}
}

func TestRefreezeReplacesBuffer(t *testing.T) {
	e, _ := newTestEngine(t)
	p := e.NewPattern(nil)
	job, _ := e.Freeze(p, nil)
	job.Wait()
	first := p.Frozen()
	job, err := e.Freeze(p, nil)
	if err != nil {
		t.Fatalf("second Freeze failed: %v", err)
	}
	job.Wait()
	if p.Frozen() == nil || p.Frozen() == first {
		t.Fatalf("refreezing should install a new buffer")
	}
}

func TestReleasePattern(t *testing.T) {
	e, _ := newTestEngine(t)
	p := e.NewPattern(nil)
	e.SetCurrentPattern(p)
	e.Transport.PlayPattern(p, true)
	e.ReleasePattern(p)
	if e.CurrentPattern() != nil {
		t.Fatalf("released pattern should not be current")
	}
	if e.Transport.Playing() {
		t.Fatalf("playback of the released pattern should stop")
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestFreezeStatusLastValueWins(t *testing.T) {
	var cancelled bool
	s := tracker.NewFreezeStatus(func() { cancelled = true })
	for i := 0; i <= 100; i++ {
		s.SetProgress(i)
	}
	if v := <-s.Updates(); v != 100 {
		t.Fatalf("expected latest value 100, got %d", v)
	}
	select {
	case v := <-s.Updates():
		t.Fatalf("expected no more values, got %d", v)
	default:
	}
	s.SetProgress(-1)
	if !s.Done() || s.Progress() != -1 {
		t.Fatalf("expected done status")
	}
	s.Cancel()
	if !cancelled {
		t.Fatalf("Cancel should call the cancel function")
	}
}
