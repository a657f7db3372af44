/*
Package tracker contains the engine that plays and freezes sequin patterns.

The Engine wires together a Mixer, a Transport, a Freezer and a Broker. The
Mixer owns the global lock that guards the patterns and the audio device that
pulls audio from the Transport. The Transport plays one pattern through a
synth, triggering and releasing voices on tick boundaries.

Freezing renders a pattern offline: the Freezer swaps the live device for a
Recorder, plays the pattern from the start as fast as the synth can render it,
and installs the recorded audio on the pattern as its frozen buffer. Progress
goes to ProgressSinks, to the FreezeStatus of the job, and to the Broker as
ProgressMsgs. Freezes that cannot start return errors tagged with a Kind; see
ErrorKind and UserMessage.

Everything meant for the user, such as alerts, progress and playing state,
goes through Broker.ToGUI; nothing in this package blocks on a slow reader.
*/
package tracker
