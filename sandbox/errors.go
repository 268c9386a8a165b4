package sandbox

import (
	"errors"
	"fmt"
)

var (
	// ErrPathEscape is matched by every *PathEscapeError.
	ErrPathEscape = errors.New("path escapes workspace")

	// ErrFileNotFound is returned by RunFile when the target does not exist.
	ErrFileNotFound = errors.New("file not found in workspace")
)

// PathEscapeError reports a RunFile path that is absolute or resolves
// outside the workspace. Nothing is executed when it is returned.
type PathEscapeError struct {
	Path     string
	Absolute bool
}

func (e *PathEscapeError) Error() string {
	if e.Absolute {
		return fmt.Sprintf("only relative paths are allowed: %s", e.Path)
	}
	return fmt.Sprintf("path escapes workspace: %s", e.Path)
}

func (e *PathEscapeError) Is(target error) bool {
	return target == ErrPathEscape
}
