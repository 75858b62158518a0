package log

import (
	"go.uber.org/zap/zapcore"
)

// zapBridge adapts a Logger into a zapcore.Core so that dependencies which
// expect a *zap.Logger can write through our Output.
type zapBridge struct {
	L Logger
}

func (b zapBridge) Enabled(level zapcore.Level) bool {
	if b.L.Debug {
		return true
	}
	return level > zapcore.DebugLevel
}

func (b zapBridge) With(fields []zapcore.Field) zapcore.Core {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	newF := make(map[string]interface{}, len(b.L.Fields)+len(enc.Fields))
	for k, v := range b.L.Fields {
		newF[k] = v
	}
	for k, v := range enc.Fields {
		newF[k] = v
	}
	b.L.Fields = newF
	return b
}

func (b zapBridge) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if b.Enabled(entry.Level) {
		return ce.AddCore(entry, b)
	}
	return ce
}

func (b zapBridge) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	if entry.LoggerName != "" {
		b.L.Name += "/" + entry.LoggerName
	}
	b.L.log(entry.Level == zapcore.DebugLevel, b.L.formatMsg(entry.Message, enc.Fields))
	return nil
}

func (zapBridge) Sync() error {
	return nil
}
