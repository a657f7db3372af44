package sequin

type (
	// AudioBuffer is a buffer of stereo audio samples of variable length, each
	// sample represented by [2]float32. [0] is left channel, [1] is right.
	AudioBuffer [][2]float32

	// AudioSource fills the given buffer with the next rendered audio. It is
	// called by an AudioDevice, in whatever goroutine the device runs its
	// processing in.
	AudioSource func(buf AudioBuffer) error

	// AudioDevice is the sink at the end of the audio path. The mixer owns
	// exactly one active device at a time: Start hands the device the source
	// it should pull audio from, Stop pauses the pulling so the device can be
	// restarted later and Close releases the device for good.
	AudioDevice interface {
		Start(source AudioSource) error
		Stop() error
		Close() error
	}

	// Synth renders audio for notes. Trigger and Release are called between
	// Render calls; voice is an index in [0, MaxVoices).
	Synth interface {
		// Render fills the whole buffer with the next samples.
		Render(buffer AudioBuffer) error
		// Trigger starts a note in the given voice, velocity in [0, 127].
		Trigger(voice int, note byte, velocity byte)
		// Release moves the voice into its release phase.
		Release(voice int)
		// ActiveVoices returns how many voices are still sounding, including
		// voices that were released but have not faded out yet. Used to detect
		// when release tails have finished.
		ActiveVoices() int
	}

	// Synther compiles a Synth for the given sample rate.
	Synther interface {
		Name() string
		Synth(sampleRate int) (Synth, error)
	}
)

// Fill fills the buffer with the value.
func (b AudioBuffer) Fill(value [2]float32) {
	for i := range b {
		b[i] = value
	}
}
