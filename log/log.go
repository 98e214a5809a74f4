// Package log is the ctx-aware structured logger used across the memory engine.
//
// Components log with a bracketed tag as the first word of the message
// ("[WORKING]", "[EPISODIC]", "[LTM]", "[ENGINE]"), so output stays greppable
// regardless of the encoder in use.
package log

import "context"

// Logger is the logging surface every component depends on.
// When ctx carries an OpenTelemetry span, its trace and span IDs are added
// to the entry.
type Logger interface {
	Debug(ctx context.Context, args ...any)
	Debugf(ctx context.Context, template string, args ...any)
	Info(ctx context.Context, args ...any)
	Infof(ctx context.Context, template string, args ...any)
	Warn(ctx context.Context, args ...any)
	Warnf(ctx context.Context, template string, args ...any)
	Error(ctx context.Context, args ...any)
	Errorf(ctx context.Context, template string, args ...any)
	DPanic(ctx context.Context, args ...any)
	DPanicf(ctx context.Context, template string, args ...any)
	Panic(ctx context.Context, args ...any)
	Panicf(ctx context.Context, template string, args ...any)
	Fatal(ctx context.Context, args ...any)
	Fatalf(ctx context.Context, template string, args ...any)

	// With returns a child logger carrying the given key/value pairs.
	With(args ...any) Logger
}
