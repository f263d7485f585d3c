package optimize

import (
	"fmt"
	"io"
)

// LogLevel controls the frequency and type of logger output.
type LogLevel int

const (
	// LogNoop no output is generated.
	LogNoop LogLevel = -1
	// LogLast print only the exit summary.
	LogLast LogLevel = 0
	// LogEval print cost and stationarity norm every iteration.
	LogEval LogLevel = 1
	// LogTrace print also line-search and direction details.
	LogTrace LogLevel = 2
)

// Logger handles logging output for the optimization driver.
type Logger struct {
	Level LogLevel
	Msg   io.Writer
}

func (l *Logger) enable(level LogLevel) bool {
	return l != nil && l.Msg != nil && l.Level >= level
}

func (l *Logger) log(format string, a ...any) {
	if len(a) > 0 {
		_, _ = fmt.Fprintf(l.Msg, format, a...)
	} else {
		_, _ = fmt.Fprint(l.Msg, format)
	}
}

func (l *Logger) iterate(k int, cost, gnorm, step float64) {
	if !l.enable(LogEval) {
		return
	}
	if k == 0 {
		l.log("At iterate %5d    J= %12.5e    |proj g|= %12.5e\n", k, cost, gnorm)
	} else {
		l.log("At iterate %5d    J= %12.5e    |proj g|= %12.5e    step= %8.2e\n", k, cost, gnorm, step)
	}
}

func (l *Logger) exit(r *Result) {
	if !l.enable(LogLast) {
		return
	}

	var msg string
	switch r.Status {
	case ConvGradNorm:
		msg = "CONVERGENCE: STATIONARITY MEASURE BELOW TOLERANCE"
	case ConvActiveSetStable:
		msg = "CONVERGENCE: ACTIVE SET STABLE AND REDUCED GRADIENT SMALL"
	case StopIterLimit:
		msg = "STOP: TOTAL NO. of ITERATIONS REACHED LIMIT"
	case StopLineSearch:
		msg = "STOP: LINE SEARCH STAGNATED"
	case StopCancelled:
		msg = "STOP: CANCELLED BY CALLER"
	default:
		msg = "UNKNOWN STATUS"
	}

	l.log("\n           * * *\n")
	l.log("%s\n", msg)
	l.log("Iterations %d    Evaluations %d    J= %12.5e    |proj g|= %12.5e\n",
		r.NumIter, r.NumEval, r.Cost, r.GradientNorm)
}
