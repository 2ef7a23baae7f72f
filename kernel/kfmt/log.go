package kfmt

import "io"

var (
	debugPrefix = []byte("\033[32;1;1m[DEBUG]\033[0m ")
	errorPrefix = []byte("\033[35;1;1m[ERROR]\033[0m ")
	lineFeed    = []byte("\n")

	// ActiveSink forwards writes to the output sink that is active at the
	// time of the write or to the early print buffer if none is attached.
	// It lets writers such as PrefixWriter be set up before the serial port.
	ActiveSink io.Writer = activeSink{}
)

type activeSink struct{}

func (activeSink) Write(p []byte) (int, error) {
	doWrite(outputSink, p)
	return len(p), nil
}

// Debug writes a formatted diagnostic line tagged with [DEBUG] to the active
// output sink.
func Debug(format string, args ...interface{}) {
	logLine(debugPrefix, format, args...)
}

// Error writes a formatted diagnostic line tagged with [ERROR] to the active
// output sink. Like every other kfmt function it is safe to call from an
// interrupt handler.
func Error(format string, args ...interface{}) {
	logLine(errorPrefix, format, args...)
}

func logLine(prefix []byte, format string, args ...interface{}) {
	doWrite(outputSink, prefix)
	Fprintf(outputSink, format, args...)
	doWrite(outputSink, lineFeed)
}
