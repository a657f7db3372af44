package vm

import (
	"errors"
	"fmt"
	"math"

	"github.com/viterin/vek/vek32"
	"github.com/vsariola/sequin"
)

type (
	// GoSynth is a small polyphonic pure-Go synthesizer: one oscillator and
	// one ADSR envelope per voice. It exists so that patterns can be played
	// and frozen without any external instrument; it makes no attempt to be
	// a serious instrument.
	GoSynth struct {
		patch      Patch
		sampleRate float32
		voices     [MaxVoices]voice
		mix        []float32
		scratch    []float32
	}

	// GoSynther is a Synther implementation that creates GoSynths playing the
	// given patch.
	GoSynther struct {
		Patch Patch
	}

	// Patch is the sound of a GoSynth. Envelope parameters are in [0, 1] and
	// mapped non-linearly to per sample rates; 0 is the fastest.
	Patch struct {
		Waveform Waveform `yaml:"waveform"`
		Attack   float32  `yaml:"attack"`
		Decay    float32  `yaml:"decay"`
		Sustain  float32  `yaml:"sustain"`
		Release  float32  `yaml:"release"`
		Gain     float32  `yaml:"gain"`
	}

	Waveform string
)

const MaxVoices = 32

const (
	Sine   Waveform = "sine"
	Saw    Waveform = "saw"
	Square Waveform = "square"
)

// silence is the envelope level under which a released voice is considered
// finished.
const silence = 1e-4

var DefaultPatch = Patch{
	Waveform: Saw,
	Attack:   0.3,
	Decay:    0.45,
	Sustain:  0.6,
	Release:  0.45,
	Gain:     0.25,
}

type voice struct {
	note     byte
	velocity float32
	sustain  bool
	active   bool
	phase    float32
	envState int
	level    float32
}

const (
	envStateAttack = iota
	envStateDecay
	envStateRelease
)

var errInvalidPatch = errors.New("invalid patch")

func (s GoSynther) Name() string { return "Go" }

func (s GoSynther) Synth(sampleRate int) (sequin.Synth, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	patch := s.Patch
	if patch == (Patch{}) {
		patch = DefaultPatch
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	return &GoSynth{patch: patch, sampleRate: float32(sampleRate)}, nil
}

// Validate checks that the waveform is known and the parameters are in range.
func (p Patch) Validate() error {
	switch p.Waveform {
	case Sine, Saw, Square:
	default:
		return fmt.Errorf("%w: unknown waveform %q", errInvalidPatch, p.Waveform)
	}
	for _, v := range []float32{p.Attack, p.Decay, p.Sustain, p.Release, p.Gain} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: parameter %v not in [0, 1]", errInvalidPatch, v)
		}
	}
	return nil
}

func (s *GoSynth) Trigger(voiceIndex int, note byte, velocity byte) {
	s.voices[voiceIndex] = voice{
		note:     note,
		velocity: float32(velocity) / 127,
		sustain:  true,
		active:   true,
	}
}

func (s *GoSynth) Release(voiceIndex int) {
	s.voices[voiceIndex].sustain = false
}

func (s *GoSynth) ActiveVoices() int {
	ret := 0
	for i := range s.voices {
		if s.voices[i].active {
			ret++
		}
	}
	return ret
}

func (s *GoSynth) Render(buffer sequin.AudioBuffer) error {
	if cap(s.mix) < len(buffer) {
		s.mix = make([]float32, len(buffer))
		s.scratch = make([]float32, len(buffer))
	}
	mix, scratch := s.mix[:len(buffer)], s.scratch[:len(buffer)]
	clear(mix)
	for i := range s.voices {
		v := &s.voices[i]
		if !v.active {
			continue
		}
		s.renderVoice(v, scratch)
		vek32.MulNumber_Inplace(scratch, s.patch.Gain*v.velocity)
		vek32.Add_Inplace(mix, scratch)
	}
	for i, m := range mix {
		buffer[i] = [2]float32{m, m}
	}
	return nil
}

func (s *GoSynth) renderVoice(v *voice, out []float32) {
	omega := float32(440*math.Exp2((float64(v.note)-69)/12)) / s.sampleRate
	for i := range out {
		if !v.active {
			out[i] = 0
			continue
		}
		if !v.sustain {
			v.envState = envStateRelease
		}
		switch v.envState {
		case envStateAttack:
			v.level += nonLinearMap(s.patch.Attack)
			if v.level >= 1 {
				v.level = 1
				v.envState = envStateDecay
			}
		case envStateDecay:
			v.level -= nonLinearMap(s.patch.Decay)
			if v.level <= s.patch.Sustain {
				v.level = s.patch.Sustain
			}
		case envStateRelease:
			v.level -= nonLinearMap(s.patch.Release)
			if v.level <= silence {
				v.level = 0
				v.active = false
			}
		}
		v.phase += omega
		v.phase -= float32(int(v.phase))
		out[i] = oscillator(s.patch.Waveform, v.phase) * v.level
	}
}

func oscillator(w Waveform, phase float32) float32 {
	switch w {
	case Saw:
		return 2*phase - 1
	case Square:
		if phase < 0.5 {
			return 1
		}
		return -1
	}
	return float32(math.Sin(2 * math.Pi * float64(phase)))
}

func nonLinearMap(value float32) float32 {
	return float32(math.Exp2(float64(-24 * value)))
}
