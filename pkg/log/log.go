// Package log adds a thin wrapper around logrus to improve non-debug logging
// performance, and mirrors the original tracker's per-run log file sink.
package log

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Level is the tracker's own four-plus-one verbosity scale (§6), distinct
// from logrus's own Level type: ERROR is the quietest non-silent level,
// DEBUG the chattiest, and NONE suppresses everything including ERROR.
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelLog
	LevelDebug
	LevelNone
)

var (
	l        = logrus.New()
	debug    = false
	minLevel = LevelWarning
)

func init() {
	// Filtering happens in this package's own wrapper functions (minLevel),
	// not in logrus, so logrus is left wide open here. Fatal bypasses that
	// filter: it always logs and exits, even at LevelNone.
	l.Level = logrus.TraceLevel
}

// SetDebug(true) raises the minimum level to LevelDebug when it is below
// it; SetDebug(false) leaves the level unchanged.
func SetDebug(to bool) {
	debug = to
	if to && minLevel < LevelDebug {
		minLevel = LevelDebug
	}
}

// SetLevel sets the minimum level that will be emitted, matching the
// original tracker's -v/--verbose scale: a message at level X is shown
// only while X <= minLevel, and LevelNone suppresses everything but Fatal.
func SetLevel(lvl Level) {
	minLevel = lvl
	debug = lvl >= LevelDebug
}

// enabled reports whether messages at lvl should be emitted.
func enabled(lvl Level) bool {
	return minLevel != LevelNone && lvl <= minLevel
}

// SetFormatter sets the formatter.
func SetFormatter(to logrus.Formatter) {
	l.Formatter = to
}

// SetOutput sets the output.
func SetOutput(to io.Writer) {
	l.Out = to
}

// AddFileSink opens (creating its parent directory if absent) the given
// path and adds it as an additional write target, mirroring logging.c's
// log/<DD-MM-YYYY@HH:MM:SS>.log per-run file.
func AddFileSink(path string) (io.Closer, error) {
	dir := dirOf(path)
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	l.AddHook(&fileHook{file: f, formatter: &logrus.TextFormatter{FullTimestamp: true}})
	return f, nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return ""
}

// fileHook writes every entry at or above the currently configured level
// to a single open file, independent of l.Out (which stays on stderr).
type fileHook struct {
	file      io.Writer
	formatter logrus.Formatter
}

func (h *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *fileHook) Fire(e *logrus.Entry) error {
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.file.Write(b)
	return err
}

// Fields is a map of logging fields.
type Fields map[string]interface{}

// LogFields implements Fielder for Fields.
func (f Fields) LogFields() Fields {
	return f
}

// A Fielder provides Fields via the LogFields method.
type Fielder interface {
	LogFields() Fields
}

// err is a wrapper around an error.
type err struct {
	e error
}

// LogFields provides Fields for logging.
func (e err) LogFields() Fields {
	return Fields{
		"error": e.e.Error(),
		"type":  fmt.Sprintf("%T", e.e),
	}
}

// Err is a wrapper around errors that implements Fielder.
func Err(e error) Fielder {
	return err{e}
}

// mergeFielders merges the Fields of multiple Fielders.
// Fields from the first Fielder will be used unchanged, Fields from subsequent
// Fielders will be prefixed with "%d.", starting from 1.
//
// must be called with len(fielders) > 0
func mergeFielders(fielders ...Fielder) logrus.Fields {
	if fielders[0] == nil {
		return nil
	}

	fields := fielders[0].LogFields()
	for i := 1; i < len(fielders); i++ {
		if fielders[i] == nil {
			continue
		}
		prefix := fmt.Sprint(i, ".")
		ff := fielders[i].LogFields()
		for k, v := range ff {
			fields[prefix+k] = v
		}
	}

	return logrus.Fields(fields)
}

// Debug logs at the debug level if debug logging is enabled.
func Debug(v interface{}, fielders ...Fielder) {
	if !enabled(LevelDebug) {
		return
	}
	if len(fielders) != 0 {
		l.WithFields(mergeFielders(fielders...)).Debug(v)
	} else {
		l.Debug(v)
	}
}

// Info logs at the info level.
func Info(v interface{}, fielders ...Fielder) {
	if !enabled(LevelLog) {
		return
	}
	if len(fielders) != 0 {
		l.WithFields(mergeFielders(fielders...)).Info(v)
	} else {
		l.Info(v)
	}
}

// Warn logs at the warning level.
func Warn(v interface{}, fielders ...Fielder) {
	if !enabled(LevelWarning) {
		return
	}
	if len(fielders) != 0 {
		l.WithFields(mergeFielders(fielders...)).Warn(v)
	} else {
		l.Warn(v)
	}
}

// Error logs at the error level.
func Error(v interface{}, fielders ...Fielder) {
	if !enabled(LevelError) {
		return
	}
	if len(fielders) != 0 {
		l.WithFields(mergeFielders(fielders...)).Error(v)
	} else {
		l.Error(v)
	}
}

// Fatal always logs, regardless of the configured level, and exits with a
// status code != 0.
func Fatal(v interface{}, fielders ...Fielder) {
	if len(fielders) != 0 {
		l.WithFields(mergeFielders(fielders...)).Fatal(v)
	} else {
		l.Fatal(v)
	}
}
