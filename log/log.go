// Package log provides loggers and the logging probe.
package log

import (
	"errors"
	"os"
	"strconv"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"

	"pipelined.dev/avpipe"
)

var debug bool

func init() {
	var err error
	debug, err = strconv.ParseBool(os.Getenv("AVPIPE_DEBUG"))
	if err != nil {
		debug = false
	}
}

// GetLogger returns a new logger instance. Debug level is enabled with
// AVPIPE_DEBUG environment variable.
func GetLogger() *logrus.Logger {
	l := logrus.New()
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

type probe struct {
	entry *logrus.Entry
}

// Probe returns a probe which logs events of pipes. Log events are handled,
// others are logged and passed to the next probe.
func Probe(entry *logrus.Entry) avpipe.Probe {
	return probe{entry: entry}
}

func (pr probe) Catch(p *avpipe.Pipe, e avpipe.Event) error {
	entry := pr.entry.WithField("pipe", p.String())
	if mgr := p.Manager(); mgr != nil {
		entry = entry.WithField("signature", string(mgr.Signature()))
	}
	switch ev := e.(type) {
	case *avpipe.Log:
		entry.Log(ev.Level, ev.Msg)
		return nil
	case *avpipe.Error:
		entry.WithError(ev.Err).Warn("pipe error")
	case *avpipe.Fatal:
		entry.WithError(ev.Err).Error("fatal pipe error")
	case *avpipe.NeedOutput:
		entry.Debug(ev.String())
		if ev.Def != nil && entry.Logger.IsLevelEnabled(logrus.TraceLevel) {
			entry.Trace(spew.Sdump(ev.Def))
		}
	default:
		entry.Debug(e.String())
	}
	return avpipe.ErrUnhandled
}

// ParseLevel sets the level of the logger. Empty level is ignored.
func ParseLevel(l *logrus.Logger, level string) error {
	if level == "" {
		return nil
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return errors.Join(avpipe.ErrInvalid, err)
	}
	l.SetLevel(lvl)
	return nil
}
