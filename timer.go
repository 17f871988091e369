package treez

import (
	"fmt"
	"time"

	"github.com/zoobzio/clockz"
)

// Timing is the time information available when an event line is rendered.
type Timing struct {
	// Now is the time of the event.
	Now time.Time
	// Elapsed is the time since the event's span was opened.
	Elapsed time.Duration
	// InSpan is false for events outside of any span; Elapsed is zero then.
	InSpan bool
}

// TimeFormat renders the time annotation of an event line. An empty result
// renders nothing.
type TimeFormat interface {
	FormatTime(t Timing) string
}

// TimeFormatFunc adapts a function to TimeFormat.
type TimeFormatFunc func(t Timing) string

// FormatTime calls f.
func (f TimeFormatFunc) FormatTime(t Timing) string { return f(t) }

// NoTime renders nothing.
type NoTime struct{}

// FormatTime implements TimeFormat.
func (NoTime) FormatTime(Timing) string { return "" }

// UTCDateTime renders the wall-clock time in UTC.
type UTCDateTime struct{}

// FormatTime implements TimeFormat.
func (UTCDateTime) FormatTime(t Timing) string {
	return t.Now.UTC().Format("2006-01-02 15:04:05.000000")
}

// LocalDateTime renders the wall-clock time in the local time zone.
type LocalDateTime struct{}

// FormatTime implements TimeFormat.
func (LocalDateTime) FormatTime(t Timing) string {
	return t.Now.Local().Format("2006-01-02 15:04:05.000000 -07:00")
}

// Uptime renders the time elapsed since Epoch as seconds with microsecond
// precision.
type Uptime struct {
	Epoch time.Time
}

// NewUptime returns an Uptime whose epoch is the clock's current time.
func NewUptime(clock clockz.Clock) Uptime {
	return Uptime{Epoch: clock.Now()}
}

// FormatTime implements TimeFormat.
func (u Uptime) FormatTime(t Timing) string {
	e := t.Now.Sub(u.Epoch)
	if e < 0 {
		e = 0
	}
	return fmt.Sprintf("%4d.%06ds", int64(e/time.Second), int64(e%time.Second/time.Microsecond))
}

// ShortElapsed renders the time since the span opened, scaled to
// milliseconds below one second, seconds below one minute and minutes above.
// Units are padded to two columns so lines stay aligned.
type ShortElapsed struct{}

// FormatTime implements TimeFormat.
func (ShortElapsed) FormatTime(t Timing) string {
	if !t.InSpan {
		return ""
	}
	e := t.Elapsed
	if e < 0 {
		e = 0
	}
	switch {
	case e < time.Second:
		return fmt.Sprintf("%3dms", e.Milliseconds())
	case e < time.Minute:
		return fmt.Sprintf("%3ds ", int64(e/time.Second))
	default:
		return fmt.Sprintf("%3dm ", int64(e/time.Minute))
	}
}

// PreciseElapsed renders the time since the span opened with two decimals,
// scaled to microseconds, milliseconds or seconds.
type PreciseElapsed struct{}

// FormatTime implements TimeFormat.
func (PreciseElapsed) FormatTime(t Timing) string {
	if !t.InSpan {
		return ""
	}
	secs := t.Elapsed.Seconds()
	if secs < 0 {
		secs = 0
	}
	switch {
	case secs < 0.001:
		return fmt.Sprintf("%.2fµs", secs*1e6)
	case secs < 1:
		return fmt.Sprintf("%.2fms", secs*1e3)
	default:
		return fmt.Sprintf("%.2fs ", secs)
	}
}
