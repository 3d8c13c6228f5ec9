// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package hpcdb decodes, compares and numerically validates performance
// databases made of meta.db, profile.db, cct.db and an optional trace.db.
package hpcdb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/hpctoolkit/hpcdb/internal/pkg/accuracy"
	"github.com/hpctoolkit/hpcdb/internal/pkg/cctdb"
	"github.com/hpctoolkit/hpcdb/internal/pkg/diff"
	"github.com/hpctoolkit/hpcdb/internal/pkg/format"
	"github.com/hpctoolkit/hpcdb/internal/pkg/metadb"
	"github.com/hpctoolkit/hpcdb/internal/pkg/model"
	"github.com/hpctoolkit/hpcdb/internal/pkg/profiledb"
	"github.com/hpctoolkit/hpcdb/internal/pkg/tracedb"
)

type (
	// Object is any decoded database object.
	Object = model.Object
	// Database is a decoded database directory.
	Database = model.Database
	// DiffResult is the outcome of [Diff].
	DiffResult = diff.Result
	// AccuracyReport is the outcome of [Accuracy].
	AccuracyReport = accuracy.Report
	// Kind identifies a database file.
	Kind = format.Kind
)

// Database file kinds.
const (
	KindMeta    = format.KindMeta
	KindProfile = format.KindProfile
	KindContext = format.KindContext
	KindTrace   = format.KindTrace
)

// Errors matched with errors.Is.
var (
	// ErrFormat is matched by errors describing malformed files.
	ErrFormat = format.ErrFormat
	// ErrIncompatibleVersion is matched by errors describing files of an
	// unsupported major version.
	ErrIncompatibleVersion = format.ErrIncompatibleVersion
	// ErrKindMismatch is returned when comparing objects of different kinds.
	ErrKindMismatch = diff.ErrKindMismatch
)

// File is a single decoded database file. Its values are read lazily from
// the underlying file, which stays open until Close is called.
type File struct {
	// Object is the decoded content: *model.MetaDB, *model.ProfileDB,
	// *model.ContextDB or *model.TraceDB.
	Object Object
	Header *format.Header
	src    *format.Source
}

// Close closes the underlying file.
func (f *File) Close() error { return f.src.Close() }

// DB is a decoded database directory.
type DB struct {
	*Database
	files []*File
}

// Close closes the files of db.
func (db *DB) Close() error {
	var err error
	for _, f := range db.files {
		err = errors.Join(err, f.Close())
	}
	return err
}

// Open decodes the database in directory dir. The files are decoded
// concurrently. trace.db is optional.
//
// Every value block column key and trace owner is validated against the
// decoded meta.db and profile.db.
func Open(ctx context.Context, dir string, opts ...Option) (*DB, error) {
	s, err := newSettings(ctx, opts)
	if err != nil {
		return nil, err
	}
	logger := s.Logger()
	ctx, span := s.Tracer().Start(ctx, "Open", trace.WithAttributes(attribute.String("hpcdb.dir", dir)))
	defer span.End()

	kinds := format.Kinds()
	files := make([]*File, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, k := range kinds {
		path := filepath.Join(dir, k.FileName())
		g.Go(func() error {
			if k == format.KindTrace {
				if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
					logger.Debug("no trace.db", "dir", dir)
					return nil
				}
			}
			f, err := openKind(gctx, s, logger, path, k)
			if err != nil {
				return err
			}
			files[i] = f
			return nil
		})
	}
	err = g.Wait()

	db := &DB{}
	for _, f := range files {
		if f != nil {
			db.files = append(db.files, f)
		}
	}
	if err != nil {
		err = errors.Join(err, db.Close())
		return nil, spanError(span, err)
	}

	var traces *model.TraceDB
	if f := files[3]; f != nil {
		traces = f.Object.(*model.TraceDB)
	}
	db.Database, err = model.NewDatabase(
		files[0].Object.(*model.MetaDB),
		files[1].Object.(*model.ProfileDB),
		files[2].Object.(*model.ContextDB),
		traces,
	)
	if err != nil {
		err = errors.Join(fmt.Errorf("%s: %w", dir, err), db.Close())
		return nil, spanError(span, err)
	}
	logger.Debug("database opened", "dir", dir, "files", len(db.files))
	return db, nil
}

// OpenFile decodes a single database file. Its kind is determined from its
// header.
func OpenFile(ctx context.Context, path string, opts ...Option) (*File, error) {
	s, err := newSettings(ctx, opts)
	if err != nil {
		return nil, err
	}
	src, err := format.OpenFile(path)
	if err != nil {
		return nil, err
	}
	k, err := format.Sniff(src)
	if err != nil {
		return nil, errors.Join(err, src.Close())
	}
	_ = src.Close()
	return openKind(ctx, s, s.Logger(), path, k)
}

func openKind(ctx context.Context, s settings, logger *slog.Logger, path string, k format.Kind) (*File, error) {
	_, span := s.Tracer().Start(ctx, "Decode", trace.WithAttributes(
		attribute.String("hpcdb.file", path),
		attribute.String("hpcdb.kind", k.String()),
	))
	defer span.End()

	src, err := format.OpenFile(path)
	if err != nil {
		return nil, spanError(span, err)
	}
	f, err := decode(src, k)
	if err != nil {
		return nil, spanError(span, errors.Join(err, src.Close()))
	}
	for _, w := range f.Header.Warnings {
		logger.Warn("forward compatible decoding", "file", w.File, "found", w.Found.String(), "supported", w.Supported.String())
	}
	span.SetAttributes(attribute.String("hpcdb.version", f.Header.Version.String()))
	return f, nil
}

func decode(src *format.Source, k format.Kind) (*File, error) {
	var (
		o   Object
		h   *format.Header
		err error
	)
	switch k {
	case format.KindMeta:
		o, h, err = decodeAs(metadb.Decode, src)
	case format.KindProfile:
		o, h, err = decodeAs(profiledb.Decode, src)
	case format.KindContext:
		o, h, err = decodeAs(cctdb.Decode, src)
	case format.KindTrace:
		o, h, err = decodeAs(tracedb.Decode, src)
	default:
		return nil, fmt.Errorf("unknown file kind %s", k)
	}
	if err != nil {
		return nil, err
	}
	return &File{Object: o, Header: h, src: src}, nil
}

func decodeAs[T Object](fn func(*format.Source) (T, *format.Header, error), src *format.Source) (Object, *format.Header, error) {
	o, h, err := fn(src)
	if err != nil {
		return nil, nil, err
	}
	return o, h, nil
}

// Diff structurally compares a with b. A *DB compares as its Database.
func Diff(ctx context.Context, a, b Object, opts ...Option) (*DiffResult, error) {
	s, err := newSettings(ctx, opts)
	if err != nil {
		return nil, err
	}
	a, b = unwrap(a), unwrap(b)
	_, span := s.Tracer().Start(ctx, "Diff", trace.WithAttributes(attribute.String("hpcdb.kind", kindOf(a))))
	defer span.End()

	res, err := diff.Diff(a, b, s.diffOptions())
	if err != nil {
		return nil, spanError(span, err)
	}
	span.SetAttributes(
		attribute.Int("hpcdb.diff.removed", len(res.Removed)),
		attribute.Int("hpcdb.diff.added", len(res.Added)),
		attribute.Int("hpcdb.diff.altered", len(res.Altered)),
		attribute.Int("hpcdb.diff.contexts", len(res.Contexts)),
	)
	return res, nil
}

// Accuracy evaluates the numeric agreement of the values of the graphs
// compared by r.
func Accuracy(ctx context.Context, r *DiffResult, opts ...Option) (*AccuracyReport, error) {
	s, err := newSettings(ctx, opts)
	if err != nil {
		return nil, err
	}
	_, span := s.Tracer().Start(ctx, "Accuracy")
	defer span.End()

	rep, err := accuracy.Evaluate(r, s.accuracyOptions())
	if err != nil {
		return nil, spanError(span, err)
	}
	span.SetAttributes(
		attribute.Int("hpcdb.accuracy.failed", rep.Failed),
		attribute.Int("hpcdb.accuracy.total", rep.Total),
		attribute.Float64("hpcdb.accuracy.inaccuracy", rep.Inaccuracy),
	)
	return rep, nil
}

func unwrap(o Object) Object {
	if db, ok := o.(*DB); ok {
		return db.Database
	}
	return o
}

func kindOf(o Object) string {
	if o == nil {
		return "nil"
	}
	return o.Kind().String()
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
