package sequin

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/cwbudde/algo-dsp/dsp/dither"
	"github.com/cwbudde/algo-dsp/measure/loudness"
	"github.com/go-audio/wav"
	"github.com/viterin/vek/vek32"
)

// SampleBuffer is an immutable rendered stereo buffer: the result of freezing
// a pattern. Once created, its frames never change, so it can be shared
// between goroutines freely.
type SampleBuffer struct {
	frames     AudioBuffer
	sampleRate int
}

// ditherSeed keeps the 16-bit conversion of a buffer deterministic.
const ditherSeed = 0x5e9c1f

var ErrInvalidPayload = errors.New("invalid sample buffer payload")

// NewSampleBuffer copies the frames into a new SampleBuffer.
func NewSampleBuffer(frames AudioBuffer, sampleRate int) *SampleBuffer {
	f := make(AudioBuffer, len(frames))
	copy(f, frames)
	return &SampleBuffer{frames: f, sampleRate: sampleRate}
}

// Frames returns a copy of the frames.
func (s *SampleBuffer) Frames() AudioBuffer {
	f := make(AudioBuffer, len(s.frames))
	copy(f, s.frames)
	return f
}

// CopyFrames copies frames starting at offset into dst and returns the number
// of frames copied.
func (s *SampleBuffer) CopyFrames(dst AudioBuffer, offset int) int {
	if offset < 0 || offset >= len(s.frames) {
		return 0
	}
	return copy(dst, s.frames[offset:])
}

// Len returns the number of stereo frames.
func (s *SampleBuffer) Len() int { return len(s.frames) }

func (s *SampleBuffer) SampleRate() int { return s.sampleRate }

func (s *SampleBuffer) Duration() time.Duration {
	if s.sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(s.frames)) * time.Second / time.Duration(s.sampleRate)
}

// Peak returns the largest absolute sample value over both channels.
func (s *SampleBuffer) Peak() float32 {
	if len(s.frames) == 0 {
		return 0
	}
	flat := make([]float32, 0, len(s.frames)*2)
	for _, f := range s.frames {
		flat = append(flat, f[0], f[1])
	}
	vek32.Abs_Inplace(flat)
	return vek32.Max(flat)
}

// Loudness returns the integrated loudness of the buffer in LUFS; -Inf for
// buffers that are silent or too short to measure.
func (s *SampleBuffer) Loudness() float64 {
	m := loudness.NewMeter(loudness.WithSampleRate(float64(s.sampleRate)), loudness.WithChannels(2))
	m.StartIntegration()
	var frame [2]float64
	for _, f := range s.frames {
		frame[0], frame[1] = float64(f[0]), float64(f[1])
		m.ProcessSample(frame[:])
	}
	return m.Integrated()
}

// Wav encodes the buffer as a .wav file, either as 16-bit PCM or as 32-bit
// float.
func (s *SampleBuffer) Wav(pcm16 bool) ([]byte, error) {
	buf := new(bytes.Buffer)
	wavHeader(len(s.frames)*2, s.sampleRate, pcm16, buf)
	if err := s.rawToBuffer(pcm16, buf); err != nil {
		return nil, fmt.Errorf("Wav failed: %v", err)
	}
	return buf.Bytes(), nil
}

// Raw returns the interleaved samples without any header.
func (s *SampleBuffer) Raw(pcm16 bool) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := s.rawToBuffer(pcm16, buf); err != nil {
		return nil, fmt.Errorf("Raw failed: %v", err)
	}
	return buf.Bytes(), nil
}

// Base64 returns the drag and export payload of the buffer: a 16-bit PCM .wav
// file encoded in standard base64.
func (s *SampleBuffer) Base64() (string, error) {
	data, err := s.Wav(true)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeSampleBuffer parses a payload produced by Base64.
func DecodeSampleBuffer(payload string) (*SampleBuffer, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: not a wav file", ErrInvalidPayload)
	}
	if d.NumChans != 2 || d.WavAudioFormat != 1 {
		return nil, fmt.Errorf("%w: expected stereo PCM, got %d channels in format %d", ErrInvalidPayload, d.NumChans, d.WavAudioFormat)
	}
	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	factor := float32(math.Exp2(float64(d.BitDepth - 1)))
	frames := make(AudioBuffer, len(pcm.Data)/2)
	for i := range frames {
		frames[i][0] = float32(pcm.Data[2*i]) / factor
		frames[i][1] = float32(pcm.Data[2*i+1]) / factor
	}
	return &SampleBuffer{frames: frames, sampleRate: int(d.SampleRate)}, nil
}

// PCM16 converts the buffer to interleaved 16-bit samples, with triangular
// dither and noise shaping. Digital silence stays silent.
func (s *SampleBuffer) PCM16() ([]int16, error) {
	var quantizers [2]*dither.Quantizer
	for c := range quantizers {
		q, err := dither.NewQuantizer(float64(max(s.sampleRate, 1)),
			dither.WithBitDepth(16),
			dither.WithDitherType(dither.DitherTriangular),
			dither.WithRNG(rand.New(rand.NewPCG(ditherSeed, uint64(c)))),
		)
		if err != nil {
			return nil, fmt.Errorf("could not create quantizer: %w", err)
		}
		quantizers[c] = q
	}
	ret := make([]int16, len(s.frames)*2)
	for i, f := range s.frames {
		for c, v := range f {
			if v == 0 {
				continue
			}
			ret[2*i+c] = int16(clamp(quantizers[c].ProcessInteger(float64(v)), math.MinInt16, math.MaxInt16))
		}
	}
	return ret, nil
}

func (s *SampleBuffer) rawToBuffer(pcm16 bool, buf *bytes.Buffer) error {
	var err error
	if pcm16 {
		var data []int16
		if data, err = s.PCM16(); err != nil {
			return err
		}
		err = binary.Write(buf, binary.LittleEndian, data)
	} else {
		err = binary.Write(buf, binary.LittleEndian, []([2]float32)(s.frames))
	}
	if err != nil {
		return fmt.Errorf("could not binary write data to binary buffer: %v", err)
	}
	return nil
}

// wavHeader writes a wave header for either float32 or int16 .wav file into the
// bytes.buffer. bufferLength is the number of samples, counting both channels.
func wavHeader(bufferLength int, sampleRate int, pcm16 bool, buf *bytes.Buffer) {
	// Refer to: http://www-mmsp.ece.mcgill.ca/Documents/AudioFormats/WAVE/WAVE.html
	numChannels := 2
	var bytesPerSample, chunkSize, fmtChunkSize, waveFormat int
	var factChunk bool
	if pcm16 {
		bytesPerSample = 2
		chunkSize = 36 + bytesPerSample*bufferLength
		fmtChunkSize = 16
		waveFormat = 1 // PCM
	} else {
		bytesPerSample = 4
		chunkSize = 50 + bytesPerSample*bufferLength
		fmtChunkSize = 18
		waveFormat = 3 // IEEE float
		factChunk = true
	}
	buf.Write([]byte("RIFF"))
	binary.Write(buf, binary.LittleEndian, uint32(chunkSize))
	buf.Write([]byte("WAVE"))
	buf.Write([]byte("fmt "))
	binary.Write(buf, binary.LittleEndian, uint32(fmtChunkSize))
	binary.Write(buf, binary.LittleEndian, uint16(waveFormat))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*numChannels*bytesPerSample)) // avgBytesPerSec
	binary.Write(buf, binary.LittleEndian, uint16(numChannels*bytesPerSample))            // blockAlign
	binary.Write(buf, binary.LittleEndian, uint16(8*bytesPerSample))                      // bits per sample
	if fmtChunkSize > 16 {
		binary.Write(buf, binary.LittleEndian, uint16(0)) // size of extension
	}
	if factChunk {
		buf.Write([]byte("fact"))
		binary.Write(buf, binary.LittleEndian, uint32(4))                        // fact chunk size
		binary.Write(buf, binary.LittleEndian, uint32(bufferLength/numChannels)) // sample frames
	}
	buf.Write([]byte("data"))
	binary.Write(buf, binary.LittleEndian, uint32(bytesPerSample*bufferLength))
}
