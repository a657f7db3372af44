package tracker

import (
	"errors"
	"sync"

	"github.com/vsariola/sequin"
)

type (
	// Mixer owns the audio path of the engine: the global serialization lock
	// and the single active AudioDevice. Everything that renders audio does it
	// through RenderNextBuffer, which holds the lock, so pattern mutations
	// done under the same lock are never observed halfway through.
	//
	// The active device is swapped with SetAudioDevice, which hands back a
	// function restoring the previous device. Only one swap can be in effect
	// at a time.
	Mixer struct {
		mu sync.Mutex

		deviceMu  sync.Mutex
		device    sequin.AudioDevice
		swapped   bool
		processor Processor
	}

	// Processor is what the mixer renders: in practice, the Transport.
	// Both methods are called with the mixer lock held.
	Processor interface {
		Process(buf sequin.AudioBuffer) error
		HasPlayHandles() bool
	}
)

func NewMixer() *Mixer {
	return &Mixer{}
}

// Lock acquires the global serialization lock. Mixer implements sync.Locker,
// so it can be given to sequin.NewPattern.
func (m *Mixer) Lock() { m.mu.Lock() }

func (m *Mixer) Unlock() { m.mu.Unlock() }

// SetProcessor sets what the mixer renders.
func (m *Mixer) SetProcessor(p Processor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processor = p
}

// RenderNextBuffer fills the buffer with the next audio. It is the
// sequin.AudioSource given to the active device.
func (m *Mixer) RenderNextBuffer(buf sequin.AudioBuffer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processor == nil {
		buf.Fill([2]float32{})
		return nil
	}
	return m.processor.Process(buf)
}

// HasPlayHandles reports if anything is still sounding, for example voices in
// their release phase.
func (m *Mixer) HasPlayHandles() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processor != nil && m.processor.HasPlayHandles()
}

// AudioDevice returns the active device; nil if there is none.
func (m *Mixer) AudioDevice() sequin.AudioDevice {
	m.deviceMu.Lock()
	defer m.deviceMu.Unlock()
	return m.device
}

// Open makes dev the live device and starts it. A previous live device is
// closed.
func (m *Mixer) Open(dev sequin.AudioDevice) error {
	m.deviceMu.Lock()
	defer m.deviceMu.Unlock()
	if m.swapped {
		return errDeviceBusy()
	}
	if m.device != nil {
		if err := m.device.Close(); err != nil {
			return errDevice(err, "could not close audio device")
		}
		m.device = nil
	}
	if err := dev.Start(m.RenderNextBuffer); err != nil {
		return errDevice(err, "could not start audio device")
	}
	m.device = dev
	return nil
}

// SetAudioDevice stops the active device and starts dev in its place. The
// returned restore function stops dev and restarts the previous device; it
// can be called any number of times but does its work only once. If dev cannot
// be started, the previous device is restarted and an error is returned.
func (m *Mixer) SetAudioDevice(dev sequin.AudioDevice) (restore func() error, err error) {
	m.deviceMu.Lock()
	defer m.deviceMu.Unlock()
	if m.swapped {
		return nil, errDeviceBusy()
	}
	prev := m.device
	if prev != nil {
		if err := prev.Stop(); err != nil {
			return nil, errDevice(err, "could not stop audio device")
		}
	}
	if err := dev.Start(m.RenderNextBuffer); err != nil {
		if prev != nil {
			err = errors.Join(err, prev.Start(m.RenderNextBuffer))
		}
		return nil, errDevice(err, "could not start audio device")
	}
	m.device = dev
	m.swapped = true
	var once sync.Once
	restore = func() error {
		var restoreErr error
		once.Do(func() {
			m.deviceMu.Lock()
			defer m.deviceMu.Unlock()
			restoreErr = dev.Stop()
			m.device = prev
			m.swapped = false
			if prev != nil {
				if err := prev.Start(m.RenderNextBuffer); err != nil {
					restoreErr = errors.Join(restoreErr, errDevice(err, "could not restart audio device"))
				}
			}
		})
		return restoreErr
	}
	return restore, nil
}

// Close stops and closes the live device.
func (m *Mixer) Close() error {
	m.deviceMu.Lock()
	defer m.deviceMu.Unlock()
	if m.device == nil {
		return nil
	}
	err := m.device.Close()
	m.device = nil
	return err
}
