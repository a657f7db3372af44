package sequin

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// PatternType tells if a pattern is a step sequence or a melody. It is always
// derived from the notes: a pattern with at least one held note is a melody.
type PatternType int

const (
	BeatPattern PatternType = iota
	MelodyPattern
)

var (
	ErrStepOutOfRange = errors.New("step index out of range")
	ErrNoStepSlot     = errors.New("no step slot at step")
)

// Pattern is an ordered collection of notes together with the pattern level
// metadata: type, number of steps, name, mute state and the frozen buffer.
//
// Every structural mutation of the notes happens while holding the lock given
// to NewPattern. The audio path iterates the notes while holding the same
// lock, so it never sees a half updated collection. Methods named *Locked
// expect the caller to hold the lock already.
type Pattern struct {
	lock  sync.Locker
	track *Track

	notes  Notes
	typ    PatternType
	steps  int
	name   string
	muted  bool
	pos    int
	length int
	gen    uint64 // bumped by every structural change

	frozen        atomic.Pointer[SampleBuffer]
	freezeAborted atomic.Bool
}

func (t PatternType) String() string {
	switch t {
	case BeatPattern:
		return "beat"
	case MelodyPattern:
		return "melody"
	}
	return "unknown"
}

// NewPattern creates an empty beat pattern owned by the track, with
// DefaultStepsPerTact inactive step slots. If lock is nil, the pattern uses
// a mutex of its own.
func NewPattern(track *Track, lock sync.Locker) *Pattern {
	if lock == nil {
		lock = &sync.Mutex{}
	}
	p := &Pattern{lock: lock, track: track, steps: DefaultStepsPerTact}
	if track != nil {
		p.name = track.Name
	}
	p.lock.Lock()
	p.ensureStepSlots()
	p.update()
	p.lock.Unlock()
	return p
}

// Copy returns a deep copy of the pattern, owned by the same track and using
// the same lock. The name is left empty and the copy is not frozen.
func (p *Pattern) Copy() *Pattern {
	p.lock.Lock()
	defer p.lock.Unlock()
	c := &Pattern{
		lock:  p.lock,
		track: p.track,
		notes: p.notes.Copy(),
		typ:   p.typ,
		steps: p.steps,
	}
	c.ensureStepSlots()
	c.update()
	return c
}

// Track returns the owning track; may be nil.
func (p *Pattern) Track() *Track { return p.track }

// Locker returns the lock guarding the notes.
func (p *Pattern) Locker() sync.Locker { return p.lock }

// AddNote inserts a copy of the note at its ordered position and returns the
// stored note. The position is snapped to grid if grid > 0.
func (p *Pattern) AddNote(note Note, grid int) *Note {
	p.lock.Lock()
	defer p.lock.Unlock()
	n := p.notes.Insert(note, grid)
	p.changed()
	return n
}

// RemoveNote removes the note, compared by identity. Removing a note that is
// not in the pattern does nothing.
func (p *Pattern) RemoveNote(note *Note) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.notes.Remove(note) {
		p.changed()
	}
}

// RearrangeNote moves a note to its correct place after its position was
// edited, returning the new note. Returns nil if the note is not in the
// pattern.
func (p *Pattern) RearrangeNote(note *Note, grid int) *Note {
	p.lock.Lock()
	defer p.lock.Unlock()
	n := p.notes.Rearrange(note, grid)
	if n != nil {
		p.changed()
	}
	return n
}

// ClearNotes removes all notes, including the step slots.
func (p *Pattern) ClearNotes() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.notes.Clear()
	p.changed()
}

// Clear removes all notes and puts back the inactive step slots.
func (p *Pattern) Clear() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.notes.Clear()
	p.ensureStepSlots()
	p.changed()
}

// Notes returns a copy of the notes.
func (p *Pattern) Notes() Notes {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.notes.Copy()
}

// NotesLocked returns the notes themselves. The caller must hold the lock and
// must not keep the slice after releasing it.
func (p *Pattern) NotesLocked() Notes {
	return p.notes
}

// Type returns the derived pattern type.
func (p *Pattern) Type() PatternType {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.typ
}

// DeriveType sets the type to MelodyPattern if any note is held, otherwise to
// BeatPattern. Mutations call this on their own; it is exported for callers
// that edit notes in place.
func (p *Pattern) DeriveType() PatternType {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.deriveType()
	return p.typ
}

func (p *Pattern) deriveType() {
	if p.notes.HasHeld() {
		p.typ = MelodyPattern
	} else {
		p.typ = BeatPattern
	}
}

// Steps returns the number of steps in the step grid.
func (p *Pattern) Steps() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.steps
}

// AddSteps grows the step grid by n steps and adds inactive slots for them.
func (p *Pattern) AddSteps(n int) {
	if n <= 0 {
		return
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	p.steps += n
	p.ensureStepSlots()
	p.changed()
}

// RemoveSteps shrinks the step grid by n steps, removing the first step slot
// found at each of the removed steps. Active steps in the removed range are
// lost. Does nothing unless n is less than the current number of steps.
func (p *Pattern) RemoveSteps(n int) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if n <= 0 || n >= p.steps {
		return
	}
	for i := p.steps - n; i < p.steps; i++ {
		if slot := p.notes.SlotAt(i * StepTicks); slot != nil {
			p.notes.Remove(slot)
		}
	}
	p.steps -= n
	p.changed()
}

// SetSteps grows or shrinks the step grid to n steps.
func (p *Pattern) SetSteps(n int) {
	cur := p.Steps()
	switch {
	case n > cur:
		p.AddSteps(n - cur)
	case n < cur:
		p.RemoveSteps(cur - n)
	}
}

// EnsureStepSlots adds an inactive, silent step slot to every step that does
// not have one. Calling it again adds nothing.
func (p *Pattern) EnsureStepSlots() {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.ensureStepSlots() {
		p.changed()
	}
}

func (p *Pattern) ensureStepSlots() (added bool) {
	for i := 0; i < p.steps; i++ {
		if p.notes.SlotAt(i*StepTicks) == nil {
			p.notes.Insert(Note{Pos: i * StepTicks, State: StepInactive, Key: DefaultKey}, 0)
			added = true
		}
	}
	return added
}

// Length returns the length of the pattern in ticks. Beat patterns round the
// step count up to whole tacts of the default grid; melodies extend to the
// end of the last note, rounded up to a whole tact and at least one tact.
func (p *Pattern) Length() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.LengthLocked()
}

// LengthLocked is Length for callers already holding the lock.
func (p *Pattern) LengthLocked() int {
	if p.typ == BeatPattern {
		if p.steps%DefaultStepsPerTact == 0 {
			return p.steps * StepTicks
		}
		return (p.steps/DefaultStepsPerTact + 1) * DefaultStepsPerTact * StepTicks
	}
	end := p.notes.MaxEndPos()
	if end%TicksPerTact == 0 {
		return max(end, TicksPerTact)
	}
	return (end/TicksPerTact + 1) * TicksPerTact
}

// Len returns the length stored for the pattern the last time it changed.
func (p *Pattern) Len() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.length
}

// IsEmpty reports if the pattern only contains inactive step slots.
func (p *Pattern) IsEmpty() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	for _, n := range p.notes {
		if n.Length() != 0 {
			return false
		}
	}
	return true
}

// ToggleStepActive flips the slot at the step between inactive and active.
// The volume is left untouched.
func (p *Pattern) ToggleStepActive(step int) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	slot, err := p.slot(step)
	if err != nil {
		return err
	}
	if slot.State == StepActive {
		slot.State = StepInactive
	} else {
		slot.State = StepActive
	}
	p.changed()
	return nil
}

// AdjustStepVolume changes the volume of the slot at the step by delta.
// Raising the volume of an inactive step activates it, starting from delta.
// Lowering the volume to MinVolume or below deactivates the step instead,
// keeping its last volume. Lowering an inactive step does nothing.
func (p *Pattern) AdjustStepVolume(step int, delta int) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	slot, err := p.slot(step)
	if err != nil {
		return err
	}
	switch {
	case delta == 0:
		return nil
	case slot.State == StepInactive && delta > 0:
		slot.State = StepActive
		slot.Volume = clamp(delta, MinVolume+1, MaxVolume)
	case slot.State == StepInactive:
		return nil
	case slot.Volume+delta > MinVolume:
		slot.Volume = clamp(slot.Volume+delta, MinVolume+1, MaxVolume)
	default:
		slot.State = StepInactive
	}
	p.changed()
	return nil
}

// StepAt returns a copy of the slot at the step.
func (p *Pattern) StepAt(step int) (Note, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	slot, err := p.slot(step)
	if err != nil {
		return Note{}, err
	}
	return *slot, nil
}

func (p *Pattern) slot(step int) (*Note, error) {
	if step < 0 || step >= p.steps {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrStepOutOfRange, step, p.steps)
	}
	slot := p.notes.SlotAt(step * StepTicks)
	if slot == nil {
		return nil, fmt.Errorf("%w %d", ErrNoStepSlot, step)
	}
	return slot, nil
}

func (p *Pattern) Name() string {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.name
}

func (p *Pattern) SetName(name string) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.name = name
}

// ResetName sets the name back to the name of the owning track.
func (p *Pattern) ResetName() {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.track != nil {
		p.name = p.track.Name
	} else {
		p.name = ""
	}
}

func (p *Pattern) Muted() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.muted
}

// MutedLocked is Muted for callers already holding the lock.
func (p *Pattern) MutedLocked() bool {
	return p.muted
}

func (p *Pattern) SetMuted(muted bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.muted = muted
}

func (p *Pattern) ToggleMute() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.muted = !p.muted
}

// Pos returns the position of the pattern on its track, in ticks.
func (p *Pattern) Pos() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.pos
}

// MovePosition moves the pattern on its track. Negative positions are
// ignored.
func (p *Pattern) MovePosition(pos int) {
	if pos < 0 {
		return
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	p.pos = pos
}

// Frozen returns the rendered buffer, or nil if the pattern is not frozen.
func (p *Pattern) Frozen() *SampleBuffer {
	return p.frozen.Load()
}

// SetFrozen installs the rendered buffer, replacing the previous one.
func (p *Pattern) SetFrozen(buf *SampleBuffer) {
	p.frozen.Store(buf)
}

// Generation returns a counter that changes with every structural change of
// the pattern.
func (p *Pattern) Generation() uint64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.gen
}

// SetFrozenIfUnchanged installs the rendered buffer only if the pattern is
// still at generation gen, and reports if it did.
func (p *Pattern) SetFrozenIfUnchanged(buf *SampleBuffer, gen uint64) bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.gen != gen {
		return false
	}
	p.frozen.Store(buf)
	return true
}

// Unfreeze drops the rendered buffer, if any.
func (p *Pattern) Unfreeze() {
	p.frozen.Store(nil)
}

// AbortFreeze asks a running freeze to stop at its next buffer.
func (p *Pattern) AbortFreeze() {
	p.freezeAborted.Store(true)
}

// FreezeAborted reports if AbortFreeze was called since the freeze started.
func (p *Pattern) FreezeAborted() bool {
	return p.freezeAborted.Load()
}

// ResetFreezeAbort clears the abort request before a new freeze starts.
func (p *Pattern) ResetFreezeAbort() {
	p.freezeAborted.Store(false)
}

// SaveState exports the pattern. Inactive step slots are not included. If
// clipboard is true, the position is stored as -1 so loading the record into
// an existing pattern keeps that pattern where it is.
func (p *Pattern) SaveState(clipboard bool) PatternRecord {
	p.lock.Lock()
	defer p.lock.Unlock()
	rec := PatternRecord{
		Type:   p.typ,
		Name:   p.name,
		Pos:    p.pos,
		Len:    p.LengthLocked(),
		Muted:  p.muted,
		Steps:  p.steps,
		Frozen: p.frozen.Load() != nil,
	}
	if clipboard {
		rec.Pos = -1
	}
	for _, n := range p.notes {
		if n.Length() != 0 {
			rec.Notes = append(rec.Notes, NoteRecord{Pos: n.Pos, Len: n.Length(), Key: n.Key, Vol: n.Volume})
		}
	}
	return rec
}

// LoadState replaces the pattern contents with the record. The frozen buffer
// is dropped first. The frozen flag of the record is not acted upon.
func (p *Pattern) LoadState(rec PatternRecord) {
	p.Unfreeze()
	p.lock.Lock()
	defer p.lock.Unlock()
	p.typ = rec.Type
	p.name = rec.Name
	if rec.Pos >= 0 {
		p.pos = rec.Pos
	}
	p.length = rec.Len
	p.muted = rec.Muted
	p.notes.Clear()
	for _, n := range rec.Notes {
		p.notes.Insert(NewNote(n.Pos, n.Len, n.Key, n.Vol), 0)
	}
	p.steps = rec.Steps
	if p.steps <= 0 {
		p.steps = DefaultStepsPerTact
	}
	p.ensureStepSlots()
	p.changed()
}

// changed runs after every structural change, with the lock held.
func (p *Pattern) changed() {
	p.gen++
	p.frozen.Store(nil)
	p.deriveType()
	p.update()
}

func (p *Pattern) update() {
	p.length = p.LengthLocked()
}
