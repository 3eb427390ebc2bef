package trace

import (
	"fmt"
	"strings"
)

// Level controls tracing verbosity.
type Level uint8

const (
	LevelOff    Level = iota // no tracing
	LevelError               // record silently, dump only when the command fails
	LevelPhase               // driver and pass boundaries
	LevelDetail              // plus units
	LevelDebug               // plus methods and emitter notes
)

var levelNames = [...]string{"off", "error", "phase", "detail", "debug"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "unknown"
}

// ParseLevel converts a flag value to a Level. Case is ignored.
func ParseLevel(s string) (Level, error) {
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(i), nil
		}
	}
	return LevelOff, fmt.Errorf("invalid trace level: %q (expected: off|error|phase|detail|debug)", s)
}

// ShouldEmit reports whether a stream writes events of scope at this level.
func (l Level) ShouldEmit(scope Scope) bool {
	switch l {
	case LevelPhase:
		return scope <= ScopePass
	case LevelDetail:
		return scope <= ScopeUnit
	case LevelDebug:
		return true
	default:
		return false
	}
}

// Records reports whether events of scope are produced at all. At
// LevelError nothing is written, but passes and units are still kept in the
// ring for the failure dump.
func (l Level) Records(scope Scope) bool {
	if l == LevelError {
		return scope <= ScopeUnit
	}
	return l.ShouldEmit(scope)
}
