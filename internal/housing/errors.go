package housing

import (
	"errors"
	"fmt"
)

// ErrBlocked is matched by BlockedError via errors.Is.
var ErrBlocked = errors.New("blocked by challenge page")

// HTTPError reports a non-200 response from the remote source.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d for %s", e.StatusCode, e.URL)
}

// BlockedError reports that the remote source served an anti-bot challenge.
type BlockedError struct {
	URL    string
	Marker string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked at %s (%q)", e.URL, e.Marker)
}

// Is lets errors.Is(err, ErrBlocked) match.
func (e *BlockedError) Is(target error) bool {
	return target == ErrBlocked
}
