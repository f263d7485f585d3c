package newton

import (
	"fmt"
	"io"
)

// LogLevel controls the frequency of logger output.
type LogLevel int

const (
	// LogNoop suppresses all output.
	LogNoop LogLevel = -1
	// LogLast prints a single line when the solve terminates.
	LogLast LogLevel = 0
	// LogIter prints the residual norm and damping factor per iteration.
	LogIter LogLevel = 1
)

// Logger handles iteration output for the Newton solver.
// A nil *Logger is valid and silent.
type Logger struct {
	Level LogLevel
	Msg   io.Writer
}

func (l *Logger) enable(level LogLevel) bool {
	return l != nil && l.Msg != nil && l.Level >= level
}

func (l *Logger) iterate(k int, norm, lambda float64) {
	if !l.enable(LogIter) {
		return
	}
	if k == 0 {
		_, _ = fmt.Fprintf(l.Msg, "Newton iterate %5d    |F|= %12.5e\n", k, norm)
	} else {
		_, _ = fmt.Fprintf(l.Msg, "Newton iterate %5d    |F|= %12.5e    lambda= %6.4f\n", k, norm, lambda)
	}
}

func (l *Logger) exit(status string, k int, norm float64) {
	if !l.enable(LogLast) {
		return
	}
	_, _ = fmt.Fprintf(l.Msg, "Newton finished (%s) after %d iterations, |F|= %12.5e\n", status, k, norm)
}
