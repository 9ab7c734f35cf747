package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/zimage"
)

var _ zimage.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

// New tags every entry with component=zimage.
func New(l *logrus.Logger) LogrusLogger {
	return LogrusLogger{E: l.WithField("component", "zimage")}
}

func (l LogrusLogger) Debug(msg string, f zimage.Fields) { l.entry(f).Debug(msg) }
func (l LogrusLogger) Info(msg string, f zimage.Fields)  { l.entry(f).Info(msg) }
func (l LogrusLogger) Warn(msg string, f zimage.Fields)  { l.entry(f).Warn(msg) }
func (l LogrusLogger) Error(msg string, f zimage.Fields) { l.entry(f).Error(msg) }

// entry moves an "err" field to logrus' error key.
func (l LogrusLogger) entry(f zimage.Fields) *logrus.Entry {
	e := l.E
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			e = e.WithError(err)
			continue
		}
		e = e.WithField(k, v)
	}
	return e
}
