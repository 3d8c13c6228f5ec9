// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package diff

import (
	"fmt"
	"strings"

	"github.com/hpctoolkit/hpcdb/internal/pkg/model"
)

// key returns the matching key of o: its kind and key fields, with
// references replaced by the key of the referenced object. Internal ids are
// never part of a key.
func key(o model.Object) string {
	var sb strings.Builder
	writeKey(&sb, o)
	return sb.String()
}

func writeKey(sb *strings.Builder, o model.Object) {
	if o == nil {
		sb.WriteString("nil")
		return
	}
	sb.WriteString(o.Kind().String())
	sb.WriteByte('{')
	sep := ""
	for _, f := range o.Fields() {
		if f.Role != model.RoleKey {
			continue
		}
		sb.WriteString(sep)
		sep = " "
		sb.WriteString(f.Name)
		sb.WriteByte('=')
		if f.IsRef() {
			writeKey(sb, asObject(f.Value))
			continue
		}
		fmt.Fprintf(sb, "%v", f.Value)
	}
	// Profiles are identified by their identifier tuple.
	if p, ok := o.(*model.Profile); ok && p.IdTuple != nil {
		sb.WriteString(sep)
		sb.WriteString("idTuple=[")
		for i, id := range p.IdTuple.Ids {
			if i > 0 {
				sb.WriteByte(' ')
			}
			writeKey(sb, id)
		}
		sb.WriteByte(']')
	}
	sb.WriteByte('}')
}

func asObject(v any) model.Object {
	o, _ := v.(model.Object)
	return o
}
