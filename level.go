package treez

import "github.com/muesli/termenv"

// Level is the verbosity of a span or an event.
type Level int8

// Levels, from most to least verbose.
const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the upper-case name of the level.
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) color() termenv.Color {
	switch l {
	case LevelTrace:
		return termenv.ANSIMagenta
	case LevelDebug:
		return termenv.ANSIBlue
	case LevelInfo:
		return termenv.ANSIGreen
	case LevelWarn:
		return termenv.RGBColor("#FCEAA0")
	default:
		return termenv.ANSIRed
	}
}
