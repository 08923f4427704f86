// Package delivery moves blur verdict commands from the controller to
// per-tab page renderers, buffering for renderers that have not yet
// attached and replaying on (re)connect.
package delivery

import "errors"

// ErrNotAttached is returned by a Conn whose renderer is no longer
// reachable. Deliver treats it the same as having no registered conn:
// the command is queued until the renderer (re)attaches.
var ErrNotAttached = errors.New("delivery: renderer not attached")

// Kind identifies a renderer command.
type Kind string

const (
	// KindApply tells the renderer to apply the blur effect.
	KindApply Kind = "apply"
	// KindRemove tells the renderer to remove the blur effect.
	KindRemove Kind = "remove"
)

// Command is one instruction for a tab's renderer. IntensityHint is
// opaque to the controller; the renderer owns the actual visual effect
// and its transition.
type Command struct {
	Kind          Kind `json:"kind"`
	IntensityHint int  `json:"intensityHint,omitempty"`
}

// Blurs reports the post-command blur state this command produces.
func (c Command) Blurs() bool {
	return c.Kind == KindApply
}

// Conn is an attached renderer's command channel. Send must not block;
// implementations report an unreachable renderer with ErrNotAttached and
// any other failure with a distinct error.
type Conn interface {
	Send(cmd Command) error
}
