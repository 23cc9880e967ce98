package messaging

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/zeromicro/go-zero/core/logx"
)

// watermillLogger forwards watermill's logs to logx.
type watermillLogger struct {
	serviceName string
	fields      watermill.LogFields
}

func newWatermillLogger(serviceName string) watermill.LoggerAdapter {
	return &watermillLogger{serviceName: serviceName}
}

func (l *watermillLogger) logFields(fields watermill.LogFields) []logx.LogField {
	out := make([]logx.LogField, 0, len(l.fields)+len(fields)+1)
	out = append(out, logx.Field("component", "watermill"))
	for k, v := range l.fields {
		out = append(out, logx.Field(k, v))
	}
	for k, v := range fields {
		out = append(out, logx.Field(k, v))
	}
	return out
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	logx.Errorw(msg, append(l.logFields(fields), logx.Field("error", err))...)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	logx.Infow(msg, l.logFields(fields)...)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	logx.Debugw(msg, l.logFields(fields)...)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	logx.Debugw(msg, l.logFields(fields)...)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{
		serviceName: l.serviceName,
		fields:      l.fields.Add(fields),
	}
}
