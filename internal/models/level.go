package models

import (
	"fmt"
	"strings"
)

// Level is the severity of a log record. Levels are ordered, DEBUG being the lowest.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelCritical
)

var levelNames = [...]string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"}

// String returns the upper-case level name used on the wire
func (l Level) String() string {
	if l < LevelDebug || l > LevelCritical {
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
	return levelNames[l]
}

// Enabled reports whether l is at or above min
func (l Level) Enabled(min Level) bool {
	return l >= min
}

// ParseLevel parses a level name. WARN and FATAL are accepted as aliases.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO", "":
		return LevelInfo, nil
	case "WARNING", "WARN":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "CRITICAL", "FATAL":
		return LevelCritical, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
