package sequin

// Track is the owner of patterns. Patterns only need its name (the default
// name of a new pattern) and its mute state (freezing a pattern on a muted
// track asks for confirmation).
type Track struct {
	Name  string
	Muted bool `yaml:",omitempty"`
}

func (t *Track) Copy() Track {
	return Track{Name: t.Name, Muted: t.Muted}
}
