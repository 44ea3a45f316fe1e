package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func init() {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetLevel(logrus.ErrorLevel)
}

// levelFor maps -v/-q counts onto a logrus level. Errors are shown by default;
// each -v adds a level (warn, info, debug, trace) and each -q removes one.
func levelFor(verbose, quiet int) logrus.Level {
	level := int(logrus.ErrorLevel) + verbose - quiet
	if level < int(logrus.PanicLevel) {
		level = int(logrus.PanicLevel)
	}
	if level > int(logrus.TraceLevel) {
		level = int(logrus.TraceLevel)
	}
	return logrus.Level(level)
}

func setupLogging(verbose, quiet int) {
	log.SetLevel(levelFor(verbose, quiet))
}

// logFn adapts the logger to the LogFn callbacks taken by internal packages.
func logFn(component string) func(level, msg string) {
	entry := log.WithField("component", component)
	return func(level, msg string) {
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			lvl = logrus.InfoLevel
		}
		entry.Log(lvl, msg)
	}
}

// debugf adapts the logger to the DebugFunc callbacks taken by internal packages.
func debugf(component string) func(format string, args ...any) {
	entry := log.WithField("component", component)
	return func(format string, args ...any) {
		entry.Debugf(format, args...)
	}
}
