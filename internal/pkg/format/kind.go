// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"fmt"

	"github.com/hashicorp/go-version"
)

// Kind identifies one of the files composing a database.
type Kind uint8

const (
	// KindMeta is meta.db: properties, metrics and the calling-context tree.
	KindMeta Kind = iota + 1
	// KindProfile is profile.db: per-profile metric values.
	KindProfile
	// KindContext is cct.db: per-context metric values.
	KindContext
	// KindTrace is trace.db: per-profile context traces.
	KindTrace
)

type kindInfo struct {
	code      string
	footer    string
	fileName  string
	supported *version.Version
}

var kinds = map[Kind]kindInfo{
	KindMeta: {
		code:      "meta",
		footer:    "_meta.db",
		fileName:  "meta.db",
		supported: version.Must(version.NewVersion("4.0")),
	},
	KindProfile: {
		code:      "prof",
		footer:    "_prof.db",
		fileName:  "profile.db",
		supported: version.Must(version.NewVersion("4.0")),
	},
	KindContext: {
		code:      "ctxt",
		footer:    "__ctx.db",
		fileName:  "cct.db",
		supported: version.Must(version.NewVersion("4.0")),
	},
	KindTrace: {
		code:      "trce",
		footer:    "trace.db",
		fileName:  "trace.db",
		supported: version.Must(version.NewVersion("4.0")),
	},
}

// Kinds returns all known file kinds in decoding order.
func Kinds() []Kind {
	return []Kind{KindMeta, KindProfile, KindContext, KindTrace}
}

func (k Kind) info() kindInfo {
	i, ok := kinds[k]
	if !ok {
		panic(fmt.Sprintf("format: unknown kind %d", k))
	}
	return i
}

// Code returns the 4-byte format code stored in the header.
func (k Kind) Code() string { return k.info().code }

// Footer returns the 8-byte literal stored at the end of the file.
func (k Kind) Footer() string { return k.info().footer }

// FileName returns the fixed name of the file within a database directory.
func (k Kind) FileName() string { return k.info().fileName }

// Supported returns the newest version of k this package understands.
func (k Kind) Supported() *version.Version { return k.info().supported }

func (k Kind) String() string {
	if i, ok := kinds[k]; ok {
		return i.fileName
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// KindOf returns the Kind with format code code.
func KindOf(code string) (Kind, bool) {
	for k, i := range kinds {
		if i.code == code {
			return k, true
		}
	}
	return 0, false
}
