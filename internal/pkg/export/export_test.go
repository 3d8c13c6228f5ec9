// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package export_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/hpctoolkit/hpcdb/internal/pkg/dbtest"
	"github.com/hpctoolkit/hpcdb/internal/pkg/export"
)

type doc = map[string]any

func write(t *testing.T, opts export.Options) doc {
	t.Helper()
	db, err := dbtest.Sample().Database()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, export.Write(&buf, db, opts))
	var out doc
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestWrite(t *testing.T) {
	d := write(t, export.Options{})
	assert.Equal(t, "Database", d["object"])

	meta := d["meta"].(doc)
	assert.Equal(t, "MetaDB", meta["object"])
	assert.Equal(t, "sample", meta["general"].(doc)["title"])
	assert.Equal(t, []any{"SUMMARY", "NODE", "RANK", "THREAD", "CORE"}, meta["idNames"].(doc)["names"])

	fn := meta["functions"].([]any)[0].(doc)
	assert.Equal(t, "main", fn["name"])
	assert.Equal(t, "Module(flags=0, path=/bin/app)", fn["module"])
	assert.Equal(t, "SourceFile(flags=1, path=src/app.c)", fn["file"])
	assert.Equal(t, 10, fn["line"])

	ep := meta["tree"].(doc)["entryPoints"].([]any)[0].(doc)
	assert.Equal(t, "main_thread", ep["entryPoint"])
	assert.NotContains(t, ep, "ctxId", "informational fields are omitted by default")

	profile := d["profiles"].(doc)["profiles"].([]any)[1].(doc)
	assert.Equal(t, false, profile["summary"])
	assert.Equal(t, 7, profile["values"].(doc)["values"], "value counts without Values")
	assert.Len(t, profile["idTuple"].(doc)["ids"], 2)

	trace := d["traces"].(doc)["traces"].([]any)[0].(doc)
	assert.Equal(t, 4, trace["samples"])
}

func TestWriteValues(t *testing.T) {
	d := write(t, export.Options{Values: true, Info: true})

	ep := d["meta"].(doc)["tree"].(doc)["entryPoints"].([]any)[0].(doc)
	assert.Equal(t, 1, ep["ctxId"])

	profile := d["profiles"].(doc)["profiles"].([]any)[1].(doc)
	values := profile["values"].(doc)["values"].(doc)
	assert.Equal(t, 4.25, values["2"].(doc)["1"])
	assert.Equal(t, 0.75, values["6"].(doc)["0"])

	trace := d["traces"].(doc)["traces"].([]any)[0].(doc)
	assert.Equal(t, []any{
		[]any{100, 4},
		[]any{200, 6},
		[]any{200, 4},
		[]any{300, 2},
	}, trace["samples"])
}

func TestReference(t *testing.T) {
	db, err := dbtest.Sample().Database()
	require.NoError(t, err)
	ctx := db.Meta.Tree.EntryPoints[1].Children[0]
	assert.Equal(t,
		"Context(relation=call, lexicalType=function, function=Function(name=worker, module=Module(flags=0, path=/bin/app), offset=5120, file=SourceFile(flags=0, path=src/util.c), line=40), file=SourceFile(flags=0, path=src/util.c), line=40, module=Module(flags=0, path=/bin/app), offset=5120)",
		export.Reference(ctx))
	assert.Equal(t, "null", export.Reference(nil))
}
