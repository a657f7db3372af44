package main

import (
	"fmt"
	"io"
	"math"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/vsariola/sequin"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const summaryTemplate = `{{ .Name | default "untitled" | title }}
  type:     {{ .Type }}{{ if eq .Type "beat" }} ({{ .Steps }} steps){{ end }}
  length:   {{ .Length }} ticks, {{ div .Length 64 }}{{ if mod .Length 64 }}+{{ end }} tacts
  notes:    {{ .Notes }}
  frozen:   {{ .Frames }} frames at {{ .SampleRate }} Hz ({{ printf "%.2f" .Seconds }} s)
  peak:     {{ printf "%.3f" .Peak }}
  loudness: {{ .Loudness }}
`

type summary struct {
	Name       string
	Type       string
	Steps      int
	Length     int
	Notes      int
	Frames     int
	SampleRate int
	Seconds    float64
	Peak       float32
	Loudness   string
}

var summaryTmpl = template.Must(template.New("summary").
	Funcs(sprig.TxtFuncMap()).
	Funcs(template.FuncMap{"title": cases.Title(language.English).String}).
	Parse(summaryTemplate))

func newSummary(p *sequin.Pattern, frozen *sequin.SampleBuffer) summary {
	var notes int
	for _, n := range p.Notes() {
		if n.Length() != 0 {
			notes++
		}
	}
	loudness := "silent"
	if l := frozen.Loudness(); !math.IsInf(l, -1) && !math.IsNaN(l) {
		loudness = fmt.Sprintf("%.1f LUFS", l)
	}
	return summary{
		Name:       p.Name(),
		Type:       p.Type().String(),
		Steps:      p.Steps(),
		Length:     p.Length(),
		Notes:      notes,
		Frames:     frozen.Len(),
		SampleRate: frozen.SampleRate(),
		Seconds:    frozen.Duration().Seconds(),
		Peak:       frozen.Peak(),
		Loudness:   loudness,
	}
}

func writeSummary(w io.Writer, p *sequin.Pattern, frozen *sequin.SampleBuffer) error {
	return summaryTmpl.Execute(w, newSummary(p, frozen))
}
