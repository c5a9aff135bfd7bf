package room

import (
	"errors"

	"github.com/Aviral1511/Collaborative-Canvas/pkg/protocol"
)

var (
	ErrUnknownStroke   = errors.New("unknown stroke")
	ErrDuplicateStroke = errors.New("stroke id already in use")
	ErrStrokeEnded     = errors.New("stroke already ended")
	ErrNotOwner        = errors.New("stroke owned by another author")
	ErrNotMember       = errors.New("connection is not a member of the room")
	ErrCapacity        = errors.New("room capacity exceeded")
)

// ErrKind classifies a dropped event for logging and metrics.
type ErrKind string

const (
	KindNone        ErrKind = ""
	KindMalformed   ErrKind = "malformed"
	KindOwnership   ErrKind = "ownership"
	KindReferential ErrKind = "referential"
	KindCapacity    ErrKind = "capacity"
	KindInternal    ErrKind = "internal"
)

// KindOf maps err onto its ErrKind.
func KindOf(err error) ErrKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, protocol.ErrMalformed):
		return KindMalformed
	case errors.Is(err, ErrNotOwner):
		return KindOwnership
	case errors.Is(err, ErrUnknownStroke), errors.Is(err, ErrDuplicateStroke),
		errors.Is(err, ErrStrokeEnded), errors.Is(err, ErrNotMember):
		return KindReferential
	case errors.Is(err, ErrCapacity):
		return KindCapacity
	default:
		return KindInternal
	}
}
