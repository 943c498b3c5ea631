package standings

import (
	"errors"
	"fmt"
)

var ErrNoLeader = errors.New("standings: no leader")

// LookupError is returned when a ranking result is requested before any
// standing holds position 1.
type LookupError struct {
	Standings int
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("standings: no leader among %d standings, positions not assigned", e.Standings)
}

func (e *LookupError) Unwrap() error {
	return ErrNoLeader
}
