// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package hpcdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/hpctoolkit/hpcdb/config"
	"github.com/hpctoolkit/hpcdb/internal/pkg/accuracy"
	"github.com/hpctoolkit/hpcdb/internal/pkg/diff"
)

// tracerName is the name of the tracer spans are recorded with.
const tracerName = "github.com/hpctoolkit/hpcdb"

// Option configures [Open], [OpenFile], [Diff] and [Accuracy].
type Option interface {
	apply(context.Context, settings) (settings, error)
}

type fnOpt func(context.Context, settings) (settings, error)

func (o fnOpt) apply(ctx context.Context, s settings) (settings, error) {
	return o(ctx, s)
}

// WithLogger returns an [Option] that will configure the logger used.
//
// If this option and [WithEnv] are used, HPCDB_LOG_LEVEL is ignored. This
// passed logger takes precedence and is used as-is.
//
// If this option is not used, an [slog.Logger] backed by an
// [slog.JSONHandler] outputting to STDERR is used.
func WithLogger(l *slog.Logger) Option {
	return fnOpt(func(_ context.Context, s settings) (settings, error) {
		s.logger = l
		return s, nil
	})
}

// WithTracerProvider returns an [Option] that will configure the
// [trace.TracerProvider] spans are recorded with. The global provider is
// used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return fnOpt(func(_ context.Context, s settings) (settings, error) {
		s.tracerProvider = tp
		return s, nil
	})
}

// WithConfig returns an [Option] that will use the comparison settings of c.
// The log level of c is ignored if [WithLogger] is used.
func WithConfig(c config.Config) Option {
	return fnOpt(func(_ context.Context, s settings) (settings, error) {
		if err := c.Validate(); err != nil {
			return s, err
		}
		s.cfg = c
		return s, nil
	})
}

// WithMaxAssignments returns an [Option] that bounds the assignments tried
// for a group of siblings that cannot be told apart by their keys.
func WithMaxAssignments(n int) Option {
	return fnOpt(func(_ context.Context, s settings) (settings, error) {
		if n < 1 {
			return s, fmt.Errorf("invalid max assignments %d", n)
		}
		s.cfg.Diff.MaxAssignments = n
		return s, nil
	})
}

// WithPrecision returns an [Option] that compares values at precision
// mantissa bits, tolerating grace units in the last place. A zero grace
// requires the mantissas to agree exactly.
func WithPrecision(precision, grace int) Option {
	return fnOpt(func(_ context.Context, s settings) (settings, error) {
		s.cfg.Accuracy.Precision = precision
		s.cfg.Accuracy.Grace = grace
		return s, s.cfg.Validate()
	})
}

// WithWorst returns an [Option] that reports the n largest failures of an
// accuracy evaluation, all of them if n is negative.
func WithWorst(n int) Option {
	return fnOpt(func(_ context.Context, s settings) (settings, error) {
		s.cfg.Accuracy.Worst = n
		return s, nil
	})
}

var lookupEnv = os.LookupEnv

// WithEnv returns an [Option] that will apply configuration using the values
// defined by the following environment variables:
//
//   - HPCDB_MAX_ASSIGNMENTS: sets the bound of [WithMaxAssignments]
//   - HPCDB_PRECISION: sets the precision of [WithPrecision]
//   - HPCDB_GRACE: sets the grace of [WithPrecision]
//   - HPCDB_WORST: sets the count of [WithWorst]
//   - HPCDB_LOG_LEVEL: sets the default logger's minimum logging level
//
// If [WithLogger] is used, HPCDB_LOG_LEVEL will not be used. Instead, the
// [slog.Logger] passed to that option will be used as-is.
func WithEnv() Option {
	return fnOpt(func(_ context.Context, s settings) (settings, error) {
		var err error
		s.cfg, err = s.cfg.ApplyEnv(lookupEnv)
		if val, ok := lookupEnv(config.EnvLogLevelKey); ok && s.logger == nil {
			level, e := ParseLogLevel(val)
			if e != nil {
				return s, errors.Join(err, fmt.Errorf("parse log level %q: %w", val, e))
			}
			s.logger = newLogger(level.Level())
		}
		return s, err
	})
}

// newLogger is used for testing.
var newLogger = newLoggerFunc

func newLoggerFunc(level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true, Level: level}
	h := slog.NewJSONHandler(os.Stderr, opts)
	return slog.New(h)
}

type settings struct {
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	cfg            config.Config
}

func newSettings(ctx context.Context, options []Option) (settings, error) {
	s := settings{cfg: config.Default()}

	var err error
	for _, opt := range options {
		var e error
		s, e = opt.apply(ctx, s)
		err = errors.Join(err, e)
	}
	return s, err
}

func (s settings) Logger() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	level, err := ParseLogLevel(s.cfg.LogLevel)
	if err != nil {
		level = LogLevelInfo
	}
	return newLogger(level.Level())
}

func (s settings) Tracer() trace.Tracer {
	tp := s.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(tracerName, trace.WithInstrumentationVersion(Version()))
}

func (s settings) diffOptions() diff.Options {
	return diff.Options{
		MaxAssignments: s.cfg.Diff.MaxAssignments,
		Logger:         s.Logger(),
	}
}

func (s settings) accuracyOptions() accuracy.Options {
	return accuracy.Options{
		Precision: s.cfg.Accuracy.Precision,
		Grace:     s.cfg.Accuracy.Grace,
		Worst:     s.cfg.Accuracy.Worst,
	}
}
