package sequin_test

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/vsariola/sequin"
)

func sineBuffer(frames, sampleRate int, amplitude float64) sequin.AudioBuffer {
	buf := make(sequin.AudioBuffer, frames)
	for i := range buf {
		v := float32(amplitude * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		buf[i] = [2]float32{v, -v}
	}
	return buf
}

func TestSampleBufferIsImmutable(t *testing.T) {
	frames := sineBuffer(100, 44100, 0.5)
	s := sequin.NewSampleBuffer(frames, 44100)
	frames[10] = [2]float32{1, 1}
	if s.Frames()[10] == frames[10] {
		t.Fatalf("SampleBuffer should not share memory with its input")
	}
	f := s.Frames()
	f[11] = [2]float32{1, 1}
	if s.Frames()[11] == f[11] {
		t.Fatalf("Frames should return a copy")
	}
}

func TestSampleBufferBase64RoundTrip(t *testing.T) {
	s := sequin.NewSampleBuffer(sineBuffer(4410, 44100, 0.5), 44100)
	payload, err := s.Base64()
	if err != nil {
		t.Fatalf("Base64 failed: %v", err)
	}
	d, err := sequin.DecodeSampleBuffer(payload)
	if err != nil {
		t.Fatalf("DecodeSampleBuffer failed: %v", err)
	}
	if d.Len() != s.Len() || d.SampleRate() != 44100 {
		t.Fatalf("got %d frames at %d Hz, want %d frames at 44100 Hz", d.Len(), d.SampleRate(), s.Len())
	}
	orig, decoded := s.Frames(), d.Frames()
	for i := range orig {
		for c := 0; c < 2; c++ {
			if diff := math.Abs(float64(orig[i][c] - decoded[i][c])); diff > 5e-3 {
				t.Fatalf("frame %d channel %d: got %v, want %v", i, c, decoded[i][c], orig[i][c])
			}
		}
	}
}

func TestSilentBufferStaysSilent(t *testing.T) {
	s := sequin.NewSampleBuffer(make(sequin.AudioBuffer, 256), 48000)
	pcm, err := s.PCM16()
	if err != nil {
		t.Fatalf("PCM16 failed: %v", err)
	}
	for i, v := range pcm {
		if v != 0 {
			t.Fatalf("sample %d of silence converted to %d", i, v)
		}
	}
	if s.Peak() != 0 {
		t.Fatalf("silent buffer should have zero peak, got %v", s.Peak())
	}
	if !math.IsInf(s.Loudness(), -1) {
		t.Fatalf("silent buffer should have -Inf loudness, got %v", s.Loudness())
	}
}

func TestDecodeInvalidPayload(t *testing.T) {
	if _, err := sequin.DecodeSampleBuffer("not base64!"); err == nil {
		t.Fatalf("expected error for invalid base64")
	}
	if _, err := sequin.DecodeSampleBuffer("UklGRg=="); err == nil {
		t.Fatalf("expected error for truncated wav")
	}
}

func TestWavHeader(t *testing.T) {
	s := sequin.NewSampleBuffer(sineBuffer(10, 22050, 0.1), 22050)
	for _, pcm16 := range []bool{false, true} {
		data, err := s.Wav(pcm16)
		if err != nil {
			t.Fatalf("Wav failed: %v", err)
		}
		if !bytes.HasPrefix(data, []byte("RIFF")) || !strings.Contains(string(data[:64]), "WAVE") {
			t.Fatalf("missing RIFF/WAVE header")
		}
		raw, _ := s.Raw(pcm16)
		if !bytes.HasSuffix(data, raw) {
			t.Fatalf("wav should end with the raw samples")
		}
	}
}

func TestPeak(t *testing.T) {
	frames := sineBuffer(1000, 44100, 0.25)
	frames[500] = [2]float32{0.1, -0.75}
	s := sequin.NewSampleBuffer(frames, 44100)
	if got := s.Peak(); got != 0.75 {
		t.Fatalf("expected peak 0.75, got %v", got)
	}
}
