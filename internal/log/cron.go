package log

import "github.com/robfig/cron/v3"

type cronLogger struct{}

// CronLogger routes robfig/cron diagnostics through this package. Cron's own
// Info messages (schedule, wake, run) are chatty, so they go to DEBUG.
func CronLogger() cron.Logger {
	return cronLogger{}
}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	Error("cron: "+msg, err, keysAndValues...)
}
