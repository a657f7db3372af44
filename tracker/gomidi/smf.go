// Package gomidi imports and exports patterns as standard MIDI files.
package gomidi

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/vsariola/sequin"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// Resolution is the number of MIDI ticks per quarter note in exported files.
const Resolution = 960

const defaultBPM = 120

var ErrTimeFormat = errors.New("only metric time formats are supported")

type timedMsg struct {
	tick uint32
	off  bool
	msg  midi.Message
}

// WritePattern writes the notes of the pattern as a format 1 MIDI file: a
// tempo track followed by one track with the notes on channel 0. Active steps
// become notes of one step.
func WritePattern(w io.Writer, p *sequin.Pattern, bpm int) error {
	if bpm <= 0 {
		return fmt.Errorf("invalid bpm %d", bpm)
	}
	perTick := uint32(Resolution / (sequin.TicksPerTact / 4))
	var msgs []timedMsg
	for _, n := range p.Notes() {
		var dur int
		switch n.State {
		case sequin.StepHeld:
			dur = n.Duration
		case sequin.StepActive:
			dur = sequin.StepTicks
		default:
			continue
		}
		if n.Pos < 0 || dur <= 0 {
			continue
		}
		key := uint8(min(max(n.Key, 0), 127))
		vol := n.Volume
		if n.State == sequin.StepActive && vol == 0 {
			vol = sequin.DefaultVolume
		}
		vel := uint8(min(max(vol*127/sequin.MaxVolume, 1), 127))
		msgs = append(msgs,
			timedMsg{tick: uint32(n.Pos) * perTick, msg: midi.NoteOn(0, key, vel)},
			timedMsg{tick: uint32(n.Pos+dur) * perTick, off: true, msg: midi.NoteOff(0, key)})
	}
	// note offs before note ons on the same tick, so repeated keys retrigger
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].tick != msgs[j].tick {
			return msgs[i].tick < msgs[j].tick
		}
		return msgs[i].off && !msgs[j].off
	})
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(Resolution)
	var tempo smf.Track
	tempo.Add(0, smf.MetaMeter(4, 4))
	tempo.Add(0, smf.MetaTempo(float64(bpm)))
	tempo.Close(0)
	if err := sm.Add(tempo); err != nil {
		return fmt.Errorf("error adding tempo track: %w", err)
	}
	var track smf.Track
	if name := p.Name(); name != "" {
		track.Add(0, smf.MetaTrackSequenceName(name))
	}
	var prev uint32
	for _, m := range msgs {
		track.Add(m.tick-prev, m.msg)
		prev = m.tick
	}
	end := uint32(p.Length()) * perTick
	track.Close(end - min(end, prev))
	if err := sm.Add(track); err != nil {
		return fmt.Errorf("error adding note track: %w", err)
	}
	if _, err := sm.WriteTo(w); err != nil {
		return fmt.Errorf("error writing MIDI file: %w", err)
	}
	return nil
}

// ReadNotes reads the notes of all tracks and channels of a MIDI file,
// quantized to pattern ticks, and the tempo of the file; 120 bpm if it has
// none. A note still on at the end of its track is ended there.
func ReadNotes(r io.Reader) (notes []sequin.Note, bpm int, err error) {
	sm, err := smf.ReadFrom(r)
	if err != nil {
		return nil, 0, fmt.Errorf("smf.ReadFrom: %w", err)
	}
	mt, ok := sm.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, 0, ErrTimeFormat
	}
	scale := float64(sequin.TicksPerTact/4) / float64(mt.Resolution())
	toTick := func(abs uint64) int {
		return int(math.Round(float64(abs) * scale))
	}
	bpm = defaultBPM
	if tc := sm.TempoChanges(); len(tc) > 0 {
		bpm = int(math.Round(tc[0].BPM))
	}
	type pending struct {
		start uint64
		vel   uint8
	}
	for _, track := range sm.Tracks {
		var abs uint64
		open := map[[2]uint8][]pending{}
		for _, ev := range track {
			abs += uint64(ev.Delta)
			msg := midi.Message(ev.Message)
			var ch, key, vel uint8
			switch {
			case msg.GetNoteStart(&ch, &key, &vel):
				open[[2]uint8{ch, key}] = append(open[[2]uint8{ch, key}], pending{start: abs, vel: vel})
			case msg.GetNoteEnd(&ch, &key):
				k := [2]uint8{ch, key}
				if len(open[k]) == 0 {
					continue
				}
				on := open[k][0]
				open[k] = open[k][1:]
				notes = append(notes, importedNote(toTick(on.start), toTick(abs), key, on.vel))
			}
		}
		for k, ons := range open {
			for _, on := range ons {
				notes = append(notes, importedNote(toTick(on.start), toTick(abs), k[1], on.vel))
			}
		}
	}
	sort.SliceStable(notes, func(i, j int) bool { return notes[i].Pos < notes[j].Pos })
	return notes, bpm, nil
}

func importedNote(start, end int, key, vel uint8) sequin.Note {
	vol := int(math.Round(float64(vel) * sequin.MaxVolume / 127))
	return sequin.NewNote(start, max(end-start, 1), int(key), max(vol, 1))
}
