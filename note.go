package sequin

// Time is measured in ticks from the start of a pattern. One tact is
// TicksPerTact ticks and is divided into DefaultStepsPerTact steps.
const (
	TicksPerTact        = 64
	DefaultStepsPerTact = 16
	StepTicks           = TicksPerTact / DefaultStepsPerTact

	// ActiveStepLength is the signed length that marks an active step in the
	// persisted form of a note. It is never a real duration.
	ActiveStepLength = -TicksPerTact
)

const (
	MinVolume     = 0
	MaxVolume     = 100
	DefaultVolume = 100
	DefaultKey    = 69 // A4, as a MIDI note number
)

// StepState tells what a note means: an inactive step slot, an active step
// marker or a note held for a duration.
type StepState int

const (
	StepInactive StepState = iota
	StepActive
	StepHeld
)

// Note is a single note in a pattern. Duration is only meaningful when State
// is StepHeld and is then always positive.
type Note struct {
	Pos      int
	State    StepState
	Duration int
	Key      int
	Volume   int
}

func (s StepState) String() string {
	switch s {
	case StepInactive:
		return "inactive"
	case StepActive:
		return "active"
	case StepHeld:
		return "held"
	}
	return "unknown"
}

// NewNote returns a held note if length > 0, otherwise a step note decoded
// from the signed length.
func NewNote(pos, length, key, volume int) Note {
	n := Note{Pos: pos, Key: key, Volume: volume}
	n.SetLength(length)
	return n
}

// Length returns the signed length used in the persisted form: the duration
// for held notes, ActiveStepLength for active steps and 0 for inactive steps.
func (n *Note) Length() int {
	switch n.State {
	case StepHeld:
		return n.Duration
	case StepActive:
		return ActiveStepLength
	}
	return 0
}

// SetLength decodes a signed length: positive lengths become held notes,
// negative lengths active steps and zero an inactive step.
func (n *Note) SetLength(length int) {
	switch {
	case length > 0:
		n.State = StepHeld
		n.Duration = length
	case length < 0:
		n.State = StepActive
		n.Duration = 0
	default:
		n.State = StepInactive
		n.Duration = 0
	}
}

// IsStep reports if the note is a step slot, active or not.
func (n *Note) IsStep() bool {
	return n.State != StepHeld
}

// EndPos returns Pos + Length(); for step notes this is at or before Pos.
func (n *Note) EndPos() int {
	return n.Pos + n.Length()
}

// QuantizePos snaps the position to the nearest multiple of grid. Halfway
// positions snap upwards. grid <= 0 leaves the position untouched.
func (n *Note) QuantizePos(grid int) {
	if grid <= 0 {
		return
	}
	q := floorDiv(n.Pos, grid) * grid
	if n.Pos-q >= (grid+1)/2 {
		q += grid
	}
	n.Pos = q
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
