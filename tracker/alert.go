package tracker

import "time"

type (
	// Alert is a notification for the user, sent to the GUI through the
	// broker. A GUI should show at most one alert with a given Name at a time,
	// the newer replacing the older.
	Alert struct {
		Name     string
		Priority AlertPriority
		Message  string
		Duration time.Duration
	}

	AlertPriority int
)

const (
	None AlertPriority = iota
	Info
	Warning
	Error
)

const defaultAlertDuration = 3 * time.Second

func (p AlertPriority) String() string {
	switch p {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	}
	return "none"
}

// sendAlert sends an alert to the GUI, dropping it if the channel is full.
func (b *Broker) sendAlert(name, message string, priority AlertPriority) {
	b.send(Alert{
		Name:     name,
		Priority: priority,
		Message:  message,
		Duration: defaultAlertDuration,
	})
}
