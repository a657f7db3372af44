package tracker

import (
	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

// Kinds of the errors returned by the freezer and the mixer. Use ErrorKind to
// tell them apart.
const (
	// KindPlaying: a freeze was requested while the transport was playing.
	KindPlaying ftag.Kind = "freeze_playing"
	// KindDeclined: the user did not confirm freezing a muted pattern.
	KindDeclined ftag.Kind = "freeze_declined"
	// KindDeviceBusy: the audio device is already swapped out by someone.
	KindDeviceBusy ftag.Kind = "device_busy"
	// KindDevice: an audio device could not be stopped or started.
	KindDevice ftag.Kind = "device"
	// KindForeignLock: the pattern is not guarded by the mixer lock, so the
	// audio path cannot read it safely.
	KindForeignLock ftag.Kind = "foreign_lock"
)

// ErrorKind returns the kind of err, or "" for errors without a kind.
func ErrorKind(err error) ftag.Kind {
	return ftag.Get(err)
}

// UserMessage returns the message of err meant for the user.
func UserMessage(err error) string {
	if issue := fmsg.GetIssue(err); issue != "" {
		return issue
	}
	if chain := fault.Flatten(err); len(chain) > 0 {
		return chain[0].Message
	}
	return err.Error()
}

func errPlaying() error {
	return fault.New("freeze refused while playing",
		ftag.With(KindPlaying),
		fmsg.WithDesc("transport is playing", "The pattern currently cannot be frozen because you're in play-mode. Please stop and try again!"))
}

func errDeclined() error {
	return fault.New("freeze of muted pattern declined",
		ftag.With(KindDeclined),
		fmsg.WithDesc("freeze not confirmed", "Freezing was cancelled."))
}

func errDeviceBusy() error {
	return fault.New("audio device already swapped",
		ftag.With(KindDeviceBusy),
		fmsg.WithDesc("device busy", "Another pattern is being frozen. Please wait until it is finished."))
}

func errDevice(err error, what string) error {
	return fault.Wrap(err,
		ftag.With(KindDevice),
		fmsg.WithDesc(what, "The audio device could not be switched; the pattern was not frozen."))
}

func errForeignLock() error {
	return fault.New("pattern not guarded by the mixer lock",
		ftag.With(KindForeignLock),
		fmsg.WithDesc("foreign pattern lock", "This pattern does not belong to the engine and cannot be played or frozen."))
}
