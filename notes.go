package sequin

import (
	"golang.org/x/exp/slices"
)

// Notes is an ordered collection of notes, sorted by non-decreasing Pos. Notes
// at the same position keep their insertion order. The collection owns the
// notes; the pointers are handed out so that callers can refer to a specific
// note when removing or rearranging it.
//
// Notes does no locking by itself. Pattern wraps every mutation in its lock.
type Notes []*Note

// Insert adds a copy of the note, optionally quantizing its position to the
// grid first (grid <= 0 means no quantization), and returns the stored note.
// Appending at or after the last note is the common case; otherwise the note
// goes before the first note whose position is >= the new position.
func (s *Notes) Insert(note Note, grid int) *Note {
	n := new(Note)
	*n = note
	n.QuantizePos(grid)
	if len(*s) == 0 || (*s)[len(*s)-1].Pos <= n.Pos {
		*s = append(*s, n)
		return n
	}
	i := slices.IndexFunc(*s, func(e *Note) bool { return e.Pos >= n.Pos })
	*s = slices.Insert(*s, i, n)
	return n
}

// Remove removes the given note, compared by identity. Returns false if the
// note was not in the collection.
func (s *Notes) Remove(note *Note) bool {
	i := slices.Index(*s, note)
	if i < 0 {
		return false
	}
	*s = slices.Delete(*s, i, i+1)
	return true
}

// Rearrange removes the note and inserts a copy of it again, placing it to
// the correct position after its Pos was edited from outside. Returns the
// new note, or nil if the note was not in the collection.
func (s *Notes) Rearrange(note *Note, grid int) *Note {
	c := *note
	if !s.Remove(note) {
		return nil
	}
	return s.Insert(c, grid)
}

// Clear removes all notes.
func (s *Notes) Clear() {
	clear(*s)
	*s = (*s)[:0]
}

// Copy makes a deep copy of the notes.
func (s Notes) Copy() Notes {
	ret := make(Notes, len(s))
	for i, n := range s {
		c := *n
		ret[i] = &c
	}
	return ret
}

// Sorted reports if the notes are in non-decreasing position order.
func (s Notes) Sorted() bool {
	return slices.IsSortedFunc(s, func(a, b *Note) int { return a.Pos - b.Pos })
}

// HasHeld reports if any of the notes is held, i.e. has a positive length.
func (s Notes) HasHeld() bool {
	return slices.ContainsFunc(s, func(n *Note) bool { return n.State == StepHeld })
}

// SlotAt returns the first step note (length <= 0) exactly at pos, or nil.
func (s Notes) SlotAt(pos int) *Note {
	i, _ := slices.BinarySearchFunc(s, pos, func(n *Note, p int) int { return n.Pos - p })
	for ; i < len(s) && s[i].Pos == pos; i++ {
		if s[i].IsStep() {
			return s[i]
		}
	}
	return nil
}

// MaxEndPos returns the largest EndPos of the notes, but at least 0.
func (s Notes) MaxEndPos() int {
	ret := 0
	for _, n := range s {
		ret = max(ret, n.EndPos())
	}
	return ret
}

// StartingAt returns the notes whose position is exactly pos.
func (s Notes) StartingAt(pos int) Notes {
	i, found := slices.BinarySearchFunc(s, pos, func(n *Note, p int) int { return n.Pos - p })
	if !found {
		return nil
	}
	j := i
	for j < len(s) && s[j].Pos == pos {
		j++
	}
	return s[i:j]
}
