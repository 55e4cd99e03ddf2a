package replay

import "errors"

// ErrSequenceGap is returned when the journal skips a sequence number.
var ErrSequenceGap = errors.New("event journal has a sequence gap")

// ErrInconsistentJournal is returned when an event cannot be applied to
// the state built from the events before it.
var ErrInconsistentJournal = errors.New("event journal is inconsistent")

// ErrUnknownEventType is returned for an event type the rebuilder does not know.
var ErrUnknownEventType = errors.New("unknown event type in journal")
