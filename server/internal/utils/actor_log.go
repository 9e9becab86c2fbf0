package utils

import (
	"context"
	"log/slog"
	"strings"

	"go.uber.org/zap/zapcore"
)

// ActorLogger returns a slog.Logger that writes through the global zap
// logger, so Proto.Actor output lands in the same sink and obeys the same
// level as everything else.
func ActorLogger() *slog.Logger {
	return slog.New(&zapHandler{}).With("lib", "Proto.Actor")
}

// zapHandler is a slog.Handler backed by the package logger.
type zapHandler struct {
	attrs  []interface{}
	prefix string
}

func slogToZap(l slog.Level) zapcore.Level {
	switch {
	case l >= slog.LevelError:
		return zapcore.ErrorLevel
	case l >= slog.LevelWarn:
		return zapcore.WarnLevel
	case l >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

func (h *zapHandler) Enabled(_ context.Context, l slog.Level) bool {
	return level.Enabled(slogToZap(l))
}

func (h *zapHandler) Handle(_ context.Context, r slog.Record) error {
	kv := make([]interface{}, 0, len(h.attrs)+2*r.NumAttrs())
	kv = append(kv, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		kv = appendAttr(kv, h.prefix, a)
		return true
	})

	log := current()
	switch slogToZap(r.Level) {
	case zapcore.ErrorLevel:
		log.Errorw(r.Message, kv...)
	case zapcore.WarnLevel:
		log.Warnw(r.Message, kv...)
	case zapcore.InfoLevel:
		log.Infow(r.Message, kv...)
	default:
		log.Debugw(r.Message, kv...)
	}
	return nil
}

func (h *zapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &zapHandler{prefix: h.prefix, attrs: append([]interface{}{}, h.attrs...)}
	for _, a := range attrs {
		next.attrs = appendAttr(next.attrs, h.prefix, a)
	}
	return next
}

func (h *zapHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &zapHandler{prefix: h.prefix + name + ".", attrs: h.attrs}
}

// appendAttr flattens groups into dotted keys.
func appendAttr(kv []interface{}, prefix string, a slog.Attr) []interface{} {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return kv
	}
	if a.Value.Kind() == slog.KindGroup {
		group := prefix
		if a.Key != "" {
			group = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			kv = appendAttr(kv, group, ga)
		}
		return kv
	}
	return append(kv, strings.TrimSuffix(prefix+a.Key, "."), a.Value.Any())
}
