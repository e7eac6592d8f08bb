package robot_interaction

import "github.com/pkg/errors"

// Sentinel errors. Callers should match with errors.Is; most are returned wrapped
// with the control or frame that caused them.
var (
	// ErrTransform is returned by a Transformer when a feedback frame cannot be
	// resolved into the planning frame, either because it is unknown or stale.
	ErrTransform = errors.New("transform failed")

	ErrNotExclusiveHolder = errors.New("state handle is not the current exclusive holder")
	ErrAlreadyPublished   = errors.New("state handle already released")
	ErrNilState           = errors.New("robot state is nil")
	ErrUnknownControl     = errors.New("unknown control")
	ErrUnknownKind        = errors.New("unknown control kind")
	ErrQueueFull          = errors.New("feedback queue full")
	ErrQueueStopped       = errors.New("feedback queue stopped")
)
