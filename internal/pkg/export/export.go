// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package export writes decoded database graphs as YAML tree documents.
//
// Every object is a mapping holding its kind under "object" followed by
// its fields in order. Owned objects nest, references are written as the
// kind and key fields of the referenced object.
package export

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hpctoolkit/hpcdb/internal/pkg/model"
	"github.com/hpctoolkit/hpcdb/internal/pkg/sparse"
)

// Options configure an export.
type Options struct {
	// Values includes the content of value blocks and trace timelines.
	// Only their sizes are written otherwise.
	Values bool
	// Info includes informational fields such as internal ids.
	Info bool
}

// Write writes the tree document of o to w.
func Write(w io.Writer, o model.Object, opts Options) error {
	n, err := Node(o, opts)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(n); err != nil {
		return fmt.Errorf("encode %s: %w", o.Kind(), err)
	}
	return enc.Close()
}

// Node returns the tree document of o.
func Node(o model.Object, opts Options) (*yaml.Node, error) {
	e := exporter{opts: opts}
	return e.object(o)
}

type exporter struct {
	opts Options
}

func (e exporter) object(o model.Object) (*yaml.Node, error) {
	m := mapping()
	appendPair(m, "object", str(o.Kind().String()))
	for _, f := range o.Fields() {
		var (
			v   *yaml.Node
			err error
		)
		switch {
		case f.Role == model.RoleInfo && !e.opts.Info:
			continue
		case f.IsRef():
			v = str(Reference(asObject(f.Value)))
		case f.Role == model.RoleOwned:
			v, err = e.owned(f.Value)
		case f.Role == model.RoleValues:
			v, err = e.values(f.Value)
		default:
			v, err = scalar(f.Value)
		}
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", o.Kind(), f.Name, err)
		}
		if v == nil {
			continue
		}
		appendPair(m, f.Name, v)
	}
	return m, nil
}

func (e exporter) owned(v any) (*yaml.Node, error) {
	switch v := v.(type) {
	case []model.Object:
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, o := range v {
			n, err := e.object(o)
			if err != nil {
				return nil, err
			}
			seq.Content = append(seq.Content, n)
		}
		return seq, nil
	case model.Object:
		return e.object(v)
	}
	// Absent single objects.
	return nil, nil
}

func (e exporter) values(v any) (*yaml.Node, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case *sparse.Block:
		if v == nil {
			return nil, nil
		}
		if !e.opts.Values {
			return scalar(v.Len())
		}
		return block(v)
	case *sparse.Timeline:
		if v == nil {
			return nil, nil
		}
		if !e.opts.Values {
			return scalar(v.Len())
		}
		return timeline(v)
	}
	return nil, fmt.Errorf("unsupported values %T", v)
}

// block writes b as {column: {row: value}} with sorted keys.
func block(b *sparse.Block) (*yaml.Node, error) {
	cols, err := b.All()
	if err != nil {
		return nil, err
	}
	keys := make([]uint32, 0, len(cols))
	for c := range cols {
		keys = append(keys, c)
	}
	slices.Sort(keys)

	m := mapping()
	for _, c := range keys {
		col := cols[c]
		rows := mapping()
		rows.Style = yaml.FlowStyle
		for _, r := range col.Rows() {
			v, _ := col.Get(r)
			n, err := scalar(v)
			if err != nil {
				return nil, err
			}
			appendPair(rows, strconv.FormatUint(uint64(r), 10), n)
		}
		appendPair(m, strconv.FormatUint(uint64(c), 10), rows)
	}
	return m, nil
}

// timeline writes t as a sequence of [timestamp, ctxId] pairs.
func timeline(t *sparse.Timeline) (*yaml.Node, error) {
	samples, err := t.Samples()
	if err != nil {
		return nil, err
	}
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, s := range samples {
		pair := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		pair.Content = []*yaml.Node{
			intNode(strconv.FormatUint(s.Timestamp, 10)),
			intNode(strconv.FormatUint(uint64(s.CtxID), 10)),
		}
		seq.Content = append(seq.Content, pair)
	}
	return seq, nil
}

// Reference describes o by its kind and key fields, references included.
func Reference(o model.Object) string {
	if o == nil {
		return "null"
	}
	var sb strings.Builder
	sb.WriteString(o.Kind().String())
	sb.WriteByte('(')
	sep := ""
	for _, f := range o.Fields() {
		if f.Role != model.RoleKey {
			continue
		}
		sb.WriteString(sep)
		sep = ", "
		if f.IsRef() {
			sb.WriteString(f.Name + "=" + Reference(asObject(f.Value)))
			continue
		}
		fmt.Fprintf(&sb, "%s=%v", f.Name, f.Value)
	}
	sb.WriteByte(')')
	return sb.String()
}

func scalar(v any) (*yaml.Node, error) {
	if s, ok := v.(fmt.Stringer); ok {
		return str(s.String()), nil
	}
	n := &yaml.Node{}
	if err := n.Encode(v); err != nil {
		return nil, err
	}
	return n, nil
}

func mapping() *yaml.Node { return &yaml.Node{Kind: yaml.MappingNode} }

func appendPair(m *yaml.Node, key string, v *yaml.Node) {
	m.Content = append(m.Content, str(key), v)
}

func str(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func intNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: s}
}

func asObject(v any) model.Object {
	o, _ := v.(model.Object)
	return o
}
