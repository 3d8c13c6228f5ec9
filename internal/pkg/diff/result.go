// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package diff

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/hpctoolkit/hpcdb/internal/pkg/model"
)

// Change is an object present in only one of the compared graphs.
type Change struct {
	// Path is the structural path of the field or collection holding Object.
	Path   string
	Object model.Object
}

// Alteration is a matched pair of objects with differing attributes.
type Alteration struct {
	// Path is the structural path of A.
	Path string
	A, B model.Object
	// Fields names the differing fields.
	Fields []string
}

// Result is the outcome of a comparison.
type Result struct {
	// A and B are the compared graphs.
	A, B model.Object

	Removed []Change
	Added   []Change
	Altered []Alteration

	// Contexts holds the candidate mappings consistent with the comparison.
	// There is more than one only if the graphs are ambiguous.
	Contexts []*Mapping
}

// Equal reports if no difference was found.
func (r *Result) Equal() bool {
	return len(r.Removed) == 0 && len(r.Added) == 0 && len(r.Altered) == 0
}

// Group is the differences found under a single structural path.
type Group struct {
	Path    string
	Removed []Change
	Added   []Change
	Altered []Alteration
}

// Groups returns the differences of r grouped by path, ordered by path.
func (r *Result) Groups() []Group {
	idx := make(map[string]int)
	var out []Group
	group := func(path string) *Group {
		i, ok := idx[path]
		if !ok {
			i = len(out)
			idx[path] = i
			out = append(out, Group{Path: path})
		}
		return &out[i]
	}
	for _, c := range r.Removed {
		g := group(c.Path)
		g.Removed = append(g.Removed, c)
	}
	for _, c := range r.Added {
		g := group(c.Path)
		g.Added = append(g.Added, c)
	}
	for _, a := range r.Altered {
		g := group(a.Path)
		g.Altered = append(g.Altered, a)
	}
	slices.SortStableFunc(out, func(a, b Group) int { return strings.Compare(a.Path, b.Path) })
	return out
}

// Render writes a human readable report of r to w.
func (r *Result) Render(w io.Writer) error {
	ew := &errWriter{w: w}
	if r.Equal() {
		ew.printf("no differences (%d contexts)\n", len(r.Contexts))
		return ew.err
	}
	for _, g := range r.Groups() {
		path := g.Path
		if path == "" {
			path = "/"
		}
		ew.printf("%s\n", path)
		for _, c := range g.Removed {
			ew.printf("  - %s\n", Describe(c.Object))
		}
		for _, c := range g.Added {
			ew.printf("  + %s\n", Describe(c.Object))
		}
		for _, a := range g.Altered {
			ew.printf("  ~ %s\n", Describe(a.A))
			for _, f := range a.Fields {
				ew.printf("      %s: %s -> %s\n", f, fieldString(a.A, f), fieldString(a.B, f))
			}
		}
	}
	ew.printf("%d removed, %d added, %d altered, %d contexts\n", len(r.Removed), len(r.Added), len(r.Altered), len(r.Contexts))
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (w *errWriter) printf(format string, args ...any) {
	if w.err != nil {
		return
	}
	_, w.err = fmt.Fprintf(w.w, format, args...)
}

// Describe returns the kind of o followed by its key fields.
func Describe(o model.Object) string {
	return key(o)
}

func fieldString(o model.Object, name string) string {
	for _, f := range o.Fields() {
		if f.Name != name {
			continue
		}
		if f.IsRef() {
			return key(asObject(f.Value))
		}
		return fmt.Sprint(f.Value)
	}
	return "?"
}
