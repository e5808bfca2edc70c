package progress

import (
	"errors"
	"fmt"
)

// ErrResetNotConfirmed is returned when Reset is called without the
// explicit confirmation flag.
var ErrResetNotConfirmed = errors.New("progress reset requires explicit confirmation")

// UnknownAchievementError reports a reference to an achievement outside the
// fixed set. This is a caller defect, never recovered from.
type UnknownAchievementError struct {
	Name string
}

func (e *UnknownAchievementError) Error() string {
	return fmt.Sprintf("unknown achievement: %q", e.Name)
}

// PersistError reports a serialization or I/O failure while writing the
// progress document. The previously persisted file is left intact; the
// in-memory document keeps the attempted mutation so the caller may retry
// or discard it by reloading.
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("progress persist (%s): %v", e.Op, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
