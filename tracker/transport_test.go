package tracker_test

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vsariola/sequin"
	"github.com/vsariola/sequin/tracker"
)

type event struct {
	frame    int
	on       bool
	voice    int
	note     byte
	velocity byte
}

// recordingSynth logs the events it gets. Triggered voices stay active until
// released, and then for tail more Render calls.
type recordingSynth struct {
	frame  int
	events []event
	tails  map[int]int
	tail   int
}

func (s *recordingSynth) Render(buf sequin.AudioBuffer) error {
	buf.Fill([2]float32{})
	s.frame += len(buf)
	for v, n := range s.tails {
		if n < 0 {
			continue
		}
		if n <= 1 {
			delete(s.tails, v)
		} else {
			s.tails[v] = n - 1
		}
	}
	return nil
}

func (s *recordingSynth) Trigger(voice int, note, velocity byte) {
	s.events = append(s.events, event{frame: s.frame, on: true, voice: voice, note: note, velocity: velocity})
	s.tails[voice] = -1
}

func (s *recordingSynth) Release(voice int) {
	s.events = append(s.events, event{frame: s.frame, voice: voice})
	s.tails[voice] = s.tail
}

func (s *recordingSynth) ActiveVoices() int { return len(s.tails) }

func newTestTransport(synth sequin.Synth) (*tracker.Transport, *tracker.Mixer) {
	mixer := tracker.NewMixer()
	// 100 frames per tick
	transport := tracker.NewTransport(mixer, synth, 16000, 600, nil)
	mixer.SetProcessor(transport)
	return transport, mixer
}

func TestTransportTriggersOnTicks(t *testing.T) {
	synth := &recordingSynth{tails: map[int]int{}, tail: 2}
	transport, mixer := newTestTransport(synth)
	p := sequin.NewPattern(nil, mixer)
	p.AdjustStepVolume(1, 50)
	p.AddNote(sequin.NewNote(8, 12, 60, 100), 0)
	transport.PlayPattern(p, false)
	buf := make(sequin.AudioBuffer, 256)
	for i := 0; i < 30; i++ {
		mixer.RenderNextBuffer(buf)
	}
	want := []event{
		{frame: 400, on: true, note: sequin.DefaultKey, velocity: 63},
		{frame: 800, on: false},
		{frame: 800, on: true, note: 60, velocity: 127},
		{frame: 2000, on: false},
	}
	if len(synth.events) != len(want) {
		t.Fatalf("expected %d events, got %+v", len(want), synth.events)
	}
	for i, w := range want {
		g := synth.events[i]
		if g.frame != w.frame || g.on != w.on || (w.on && (g.note != w.note || g.velocity != w.velocity)) {
			t.Errorf("event %d: got %+v, want %+v", i, g, w)
		}
	}
	if got := transport.Pos(); got != 30*256/100 {
		t.Fatalf("expected position %d, got %d", 30*256/100, got)
	}
	if mixer.HasPlayHandles() {
		t.Fatalf("all release tails should be over")
	}
}

func TestTransportHasPlayHandles(t *testing.T) {
	synth := &recordingSynth{tails: map[int]int{}, tail: 3}
	transport, mixer := newTestTransport(synth)
	p := sequin.NewPattern(nil, mixer)
	p.ToggleStepActive(0)
	transport.PlayPattern(p, false)
	mixer.RenderNextBuffer(make(sequin.AudioBuffer, 50))
	if !mixer.HasPlayHandles() {
		t.Fatalf("triggered voice should be sounding")
	}
	transport.Stop()
	for i := 0; i < 3; i++ {
		if !mixer.HasPlayHandles() {
			t.Fatalf("release tail ended after %d buffers", i)
		}
		mixer.RenderNextBuffer(make(sequin.AudioBuffer, 50))
	}
	if mixer.HasPlayHandles() {
		t.Fatalf("release tail should be over")
	}
}

func TestTransportLoops(t *testing.T) {
	synth := &recordingSynth{tails: map[int]int{}}
	transport, mixer := newTestTransport(synth)
	p := sequin.NewPattern(nil, mixer)
	p.ToggleStepActive(0)
	transport.PlayPattern(p, true)
	buf := make(sequin.AudioBuffer, 100)
	for i := 0; i < 64*3; i++ {
		mixer.RenderNextBuffer(buf)
	}
	var ons int
	for _, e := range synth.events {
		if e.on {
			ons++
		}
	}
	if ons != 3 {
		t.Fatalf("expected the step to trigger three times, got %d", ons)
	}
	transport.Stop()
	if transport.Playing() {
		t.Fatalf("Stop did not stop")
	}
}

func TestTransportMutedPatternIsSilent(t *testing.T) {
	synth := &recordingSynth{tails: map[int]int{}}
	transport, mixer := newTestTransport(synth)
	p := sequin.NewPattern(nil, mixer)
	p.ToggleStepActive(0)
	p.SetMuted(true)
	transport.PlayPattern(p, false)
	mixer.RenderNextBuffer(make(sequin.AudioBuffer, 1000))
	if len(synth.events) != 0 {
		t.Fatalf("muted pattern triggered notes: %+v", synth.events)
	}
}

func TestTransportPlaysFrozenBuffer(t *testing.T) {
	synth := &recordingSynth{tails: map[int]int{}}
	transport, mixer := newTestTransport(synth)
	p := sequin.NewPattern(nil, mixer)
	p.ToggleStepActive(0)
	frames := make(sequin.AudioBuffer, 150)
	for i := range frames {
		frames[i] = [2]float32{float32(i) / 1000, -float32(i) / 1000}
	}
	p.SetFrozen(sequin.NewSampleBuffer(frames, 16000))
	transport.PlayPattern(p, false)
	buf := make(sequin.AudioBuffer, 100)
	mixer.RenderNextBuffer(buf)
	for i, f := range buf {
		if f != frames[i] {
			t.Fatalf("frame %d: got %v, want %v", i, f, frames[i])
		}
	}
	if transport.Finished() {
		t.Fatalf("playback finished too early")
	}
	mixer.RenderNextBuffer(buf)
	for i := 0; i < 50; i++ {
		if buf[i] != frames[100+i] {
			t.Fatalf("frame %d: got %v, want %v", 100+i, buf[i], frames[100+i])
		}
	}
	if buf[50] != [2]float32{} {
		t.Fatalf("expected silence after the frozen buffer, got %v", buf[50])
	}
	if !transport.Finished() {
		t.Fatalf("playback should finish at the end of the frozen buffer")
	}
	if len(synth.events) != 0 {
		t.Fatalf("a frozen pattern should not trigger the synth: %+v", synth.events)
	}
}

type failingSynth struct{ recordingSynth }

func (s *failingSynth) Render(buf sequin.AudioBuffer) error { return errors.New("boom") }

func TestTransportSynthFailure(t *testing.T) {
	broker := tracker.NewBroker()
	mixer := tracker.NewMixer()
	transport := tracker.NewTransport(mixer, &failingSynth{recordingSynth{tails: map[int]int{}}}, 16000, 600, broker)
	mixer.SetProcessor(transport)
	if err := mixer.RenderNextBuffer(make(sequin.AudioBuffer, 10)); err == nil {
		t.Fatalf("expected render error")
	}
	msg, ok := tracker.TimeoutReceive[any](broker.ToGUI, time.Second)
	if a, isAlert := msg.(tracker.Alert); !ok || !isAlert || a.Priority != tracker.Error {
		t.Fatalf("expected an error alert, got %v", msg)
	}
	buf := make(sequin.AudioBuffer, 10)
	buf[0] = [2]float32{1, 1}
	if err := mixer.RenderNextBuffer(buf); err != nil || buf[0] != [2]float32{} {
		t.Fatalf("after a crash the transport should render silence")
	}
}

func TestSetAudioDeviceRestoresOnce(t *testing.T) {
	mixer := tracker.NewMixer()
	live := &fakeDevice{}
	if err := mixer.Open(live); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	rec, err := tracker.NewRecorder(8000, 32, nil)
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	restore, err := mixer.SetAudioDevice(rec)
	if err != nil {
		t.Fatalf("SetAudioDevice failed: %v", err)
	}
	if _, err := mixer.SetAudioDevice(&fakeDevice{}); tracker.ErrorKind(err) != tracker.KindDeviceBusy {
		t.Fatalf("expected KindDeviceBusy, got %v", err)
	}
	if err := rec.ProcessNextBuffer(); err != nil {
		t.Fatalf("ProcessNextBuffer failed: %v", err)
	}
	if rec.Frames() != 32 {
		t.Fatalf("expected 32 recorded frames, got %d", rec.Frames())
	}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			restore()
		}()
	}
	wg.Wait()
	if starts, stops := live.counts(); starts != 2 || stops != 1 {
		t.Fatalf("expected 2 starts and 1 stop, got %d and %d", starts, stops)
	}
	if err := rec.ProcessNextBuffer(); !errors.Is(err, tracker.ErrRecorderStopped) {
		t.Fatalf("restored recorder should be stopped, got %v", err)
	}
}

func TestSetAudioDeviceStartFailure(t *testing.T) {
	mixer := tracker.NewMixer()
	live := &fakeDevice{}
	mixer.Open(live)
	_, err := mixer.SetAudioDevice(&fakeDevice{startErr: errors.New("no")})
	if tracker.ErrorKind(err) != tracker.KindDevice {
		t.Fatalf("expected KindDevice, got %v", err)
	}
	if mixer.AudioDevice() != live {
		t.Fatalf("live device should stay")
	}
	if starts, _ := live.counts(); starts != 2 {
		t.Fatalf("live device should be restarted, got %d starts", starts)
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := tracker.LoadConfig(strings.NewReader("bpm: 90\n"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	want := tracker.DefaultConfig()
	want.BPM = 90
	if cfg != want {
		t.Fatalf("got %+v, want %+v", cfg, want)
	}
	if _, err := tracker.LoadConfig(strings.NewReader("samplerate: -1\n")); !errors.Is(err, tracker.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
