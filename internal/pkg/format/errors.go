// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-version"
)

var (
	// ErrFormat is matched by every *FormatError.
	ErrFormat = errors.New("invalid database format")
	// ErrIncompatibleVersion is matched by every *IncompatibleVersionError.
	ErrIncompatibleVersion = errors.New("incompatible database version")
)

// FormatError is returned when the content of a file does not follow the
// binary layout. It is always fatal to the decoding of that file.
type FormatError struct {
	// File is the name of the file being decoded.
	File string
	// Offset is the absolute byte offset the problem was detected at.
	Offset uint64
	// Msg describes the problem.
	Msg string
	// Err is the underlying error, if any.
	Err error
}

// Errorf returns a *FormatError for file at offset off.
func Errorf(file string, off uint64, format string, args ...any) *FormatError {
	return &FormatError{File: file, Offset: off, Msg: fmt.Sprintf(format, args...)}
}

// Wrap returns a *FormatError wrapping err. If err already is a
// *FormatError it is returned unchanged.
func Wrap(file string, off uint64, err error) error {
	if err == nil {
		return nil
	}
	var fErr *FormatError
	if errors.As(err, &fErr) {
		return err
	}
	return &FormatError{File: file, Offset: off, Err: err}
}

func (e *FormatError) Error() string {
	msg := e.Msg
	switch {
	case msg == "" && e.Err != nil:
		msg = e.Err.Error()
	case e.Err != nil:
		msg += ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s: 0x%x: %s", e.File, e.Offset, msg)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Is reports if target is ErrFormat.
func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// IncompatibleVersionError is returned when the major version of a file is
// not the one supported.
type IncompatibleVersionError struct {
	File      string
	Found     *version.Version
	Supported *version.Version
}

func (e *IncompatibleVersionError) Error() string {
	return fmt.Sprintf("%s: version %s is incompatible with supported version %s", e.File, e.Found, e.Supported)
}

// Is reports if target is ErrIncompatibleVersion.
func (e *IncompatibleVersionError) Is(target error) bool {
	return target == ErrIncompatibleVersion
}

// ForwardCompatibilityWarning reports a file with a minor version newer than
// the one supported. Decoding proceeds, fields introduced after the
// supported version are skipped.
type ForwardCompatibilityWarning struct {
	File      string
	Found     *version.Version
	Supported *version.Version
}

func (w ForwardCompatibilityWarning) String() string {
	return fmt.Sprintf("%s: version %s is newer than supported version %s, some fields are skipped", w.File, w.Found, w.Supported)
}
