// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/hpctoolkit/hpcdb"
	"github.com/hpctoolkit/hpcdb/config"
	"github.com/hpctoolkit/hpcdb/internal/pkg/export"
	"github.com/hpctoolkit/hpcdb/telemetry"
)

var (
	errDiffers    = errors.New("databases differ")
	errInaccurate = errors.New("values differ beyond the grace")
)

const long = `Decodes, structurally compares and checks the numeric accuracy of
performance databases. A database is either a directory holding meta.db,
profile.db, cct.db and an optional trace.db, or a single one of these files.

Configuration is read from the --config file, then the environment, then the
flags, each overriding the previous:

	- HPCDB_MAX_ASSIGNMENTS: ambiguous sibling assignments tried
	- HPCDB_PRECISION: mantissa bits compared
	- HPCDB_GRACE: tolerated units in the last place
	- HPCDB_WORST: failures reported, all of them if negative
	- HPCDB_LOG_LEVEL: log level

Spans are exported when OTEL_TRACES_EXPORTER or OTEL_EXPORTER_OTLP_ENDPOINT is
set.

diff and accuracy exit with status 1 when the databases differ.`

type flags struct {
	configPath     string
	logLevel       string
	maxAssignments int
	precision      int
	grace          int
	worst          int
	values         bool
	info           bool
}

// Used for testing.
var lookupEnv = os.LookupEnv

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:           "hpcdbcmp",
		Short:         "Compare performance databases",
		Long:          long,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "YAML configuration file")
	pf.StringVar(&f.logLevel, "log-level", "", `logging level ("debug", "info", "warn", "error")`)
	pf.IntVar(&f.maxAssignments, "max-assignments", 0, "ambiguous sibling assignments tried")
	pf.IntVar(&f.precision, "precision", 0, "mantissa bits compared")
	pf.IntVar(&f.grace, "grace", 1, "tolerated units in the last place, 0 for exact comparison")
	pf.IntVar(&f.worst, "worst", 0, "failures reported, all of them if negative")

	dump := &cobra.Command{
		Use:   "dump <path>",
		Short: "Write a database or file as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, f, func(s *session) error {
				o, err := s.load(args[0])
				if err != nil {
					return err
				}
				return export.Write(cmd.OutOrStdout(), o, export.Options{Values: f.values, Info: f.info})
			})
		},
	}
	dump.Flags().BoolVar(&f.values, "values", false, "write metric values and trace samples")
	dump.Flags().BoolVar(&f.info, "info", false, "write informational fields")

	root.AddCommand(
		&cobra.Command{
			Use:   "diff <a> <b>",
			Short: "Structurally compare two databases",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSession(cmd, f, func(s *session) error {
					res, err := s.diff(args[0], args[1])
					if err != nil {
						return err
					}
					if err := res.Render(cmd.OutOrStdout()); err != nil {
						return err
					}
					if !res.Equal() {
						return errDiffers
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "accuracy <a> <b>",
			Short: "Compare the metric values of two databases",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSession(cmd, f, func(s *session) error {
					res, err := s.diff(args[0], args[1])
					if err != nil {
						return err
					}
					rep, err := hpcdb.Accuracy(s.ctx, res, s.opts...)
					if err != nil {
						return err
					}
					if err := writeReport(cmd.OutOrStdout(), res, rep); err != nil {
						return err
					}
					if rep.Failed > 0 {
						return errInaccurate
					}
					return nil
				})
			},
		},
		dump,
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), newVersion())
				return err
			},
		},
	)
	return root
}

// config resolves the configuration from the file, the environment and the
// flags set on cmd.
func (f *flags) config(cmd *cobra.Command) (config.Config, error) {
	c := config.Default()
	if f.configPath != "" {
		var err error
		if c, err = config.LoadFile(f.configPath); err != nil {
			return c, err
		}
	}
	c, err := c.ApplyEnv(lookupEnv)
	if err != nil {
		return c, err
	}

	fs := cmd.Flags()
	if fs.Changed("log-level") {
		c.LogLevel = f.logLevel
	}
	if fs.Changed("max-assignments") {
		c.Diff.MaxAssignments = f.maxAssignments
	}
	if fs.Changed("precision") {
		c.Accuracy.Precision = f.precision
	}
	if fs.Changed("grace") {
		c.Accuracy.Grace = f.grace
	}
	if fs.Changed("worst") {
		c.Accuracy.Worst = f.worst
	}
	return c, c.Validate()
}

type session struct {
	ctx     context.Context
	logger  *slog.Logger
	opts    []hpcdb.Option
	closers []io.Closer
}

func withSession(cmd *cobra.Command, f *flags, fn func(*session) error) (err error) {
	c, err := f.config(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), hpcdb.LogLevel(c.LogLevel).Level())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	tel, err := telemetry.New(
		ctx,
		telemetry.WithEnv(),
		telemetry.WithLogger(logger),
		telemetry.WithResourceAttributes(semconv.ServiceVersion(hpcdb.Version())),
	)
	if err != nil {
		return err
	}

	s := &session{
		ctx:    ctx,
		logger: logger,
		opts: []hpcdb.Option{
			hpcdb.WithConfig(c),
			hpcdb.WithLogger(logger),
			hpcdb.WithTracerProvider(tel.TracerProvider()),
		},
	}
	defer func() {
		for _, cl := range s.closers {
			err = errors.Join(err, cl.Close())
		}
		if e := tel.Shutdown(context.WithoutCancel(ctx)); e != nil {
			logger.Error("failed to flush spans", "error", e)
		}
	}()
	logger.Debug("running", "command", cmd.Name(), "version", newVersion())
	return fn(s)
}

// load decodes the database directory or file at path.
func (s *session) load(path string) (hpcdb.Object, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		db, err := hpcdb.Open(s.ctx, path, s.opts...)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db)
		return db, nil
	}
	f, err := hpcdb.OpenFile(s.ctx, path, s.opts...)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, f)
	return f.Object, nil
}

func (s *session) diff(a, b string) (*hpcdb.DiffResult, error) {
	oa, err := s.load(a)
	if err != nil {
		return nil, err
	}
	ob, err := s.load(b)
	if err != nil {
		return nil, err
	}
	return hpcdb.Diff(s.ctx, oa, ob, s.opts...)
}

func writeReport(w io.Writer, res *hpcdb.DiffResult, rep *hpcdb.AccuracyReport) error {
	if rep.Context < 0 {
		_, err := fmt.Fprintln(w, "no comparable contexts")
		return err
	}
	if _, err := fmt.Fprintf(w, "context %d of %d: %d of %d values failed (inaccuracy %.6g)\n",
		rep.Context+1, len(res.Contexts), rep.Failed, rep.Total, rep.Inaccuracy); err != nil {
		return err
	}
	for _, f := range rep.Failures {
		if _, err := fmt.Fprintf(w, "  %s\n", f); err != nil {
			return err
		}
	}
	return nil
}

func newLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true, Level: level}
	return slog.New(slog.NewJSONHandler(w, opts))
}
