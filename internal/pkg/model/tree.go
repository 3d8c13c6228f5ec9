// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package model

import "fmt"

// CallingContext is a node of the calling-context tree that values can be
// recorded against: the ContextTree root, an EntryPoint or a Context.
type CallingContext interface {
	Object
	// ContextID returns the id keying the values of the node.
	ContextID() uint32
	// ChildContexts returns the direct children of the node.
	ChildContexts() []*Context
}

// RootContextID is the context id of the ContextTree root.
const RootContextID = 0

// ContextTree is the root of the calling-context tree.
type ContextTree struct {
	EntryPoints []*EntryPoint
}

func (*ContextTree) Kind() Kind { return KindContextTree }
func (*ContextTree) object() {}

func (t *ContextTree) Fields() []Field {
	return []Field{{Name: "entryPoints", Role: RoleOwned, Value: objects(t.EntryPoints)}}
}

func (*ContextTree) ContextID() uint32 { return RootContextID }
func (*ContextTree) ChildContexts() []*Context { return nil }

// Walk calls fn for every CallingContext of t in depth-first pre-order,
// starting with t itself. It stops at the first error fn returns.
func (t *ContextTree) Walk(fn func(CallingContext) error) error {
	if err := fn(t); err != nil {
		return err
	}
	for _, e := range t.EntryPoints {
		if err := fn(e); err != nil {
			return err
		}
		if err := walkContexts(e.Children, fn); err != nil {
			return err
		}
	}
	return nil
}

func walkContexts(ctxs []*Context, fn func(CallingContext) error) error {
	for _, c := range ctxs {
		if err := fn(c); err != nil {
			return err
		}
		if err := walkContexts(c.Children, fn); err != nil {
			return err
		}
	}
	return nil
}

// EntryPointKind is how execution entered an EntryPoint.
type EntryPointKind uint16

const (
	EntryUnknown EntryPointKind = iota
	EntryMainThread
	EntryApplicationThread
)

func (k EntryPointKind) String() string {
	switch k {
	case EntryUnknown:
		return "unknown_entry"
	case EntryMainThread:
		return "main_thread"
	case EntryApplicationThread:
		return "application_thread"
	default:
		return fmt.Sprintf("EntryPointKind(%d)", uint16(k))
	}
}

// EntryPoint is a root family of Contexts.
type EntryPoint struct {
	CtxID      uint32
	EntryPoint EntryPointKind
	PrettyName string
	Children   []*Context
}

func (*EntryPoint) Kind() Kind { return KindEntryPoint }
func (*EntryPoint) object() {}

func (e *EntryPoint) Fields() []Field {
	return []Field{
		{Name: "ctxId", Role: RoleInfo, Value: e.CtxID},
		{Name: "entryPoint", Role: RoleKey, Value: e.EntryPoint},
		{Name: "prettyName", Role: RoleAttr, Value: e.PrettyName},
		{Name: "children", Role: RoleOwned, Value: objects(e.Children)},
	}
}

func (e *EntryPoint) ContextID() uint32 { return e.CtxID }
func (e *EntryPoint) ChildContexts() []*Context { return e.Children }

// Relation is how a Context relates to its parent.
type Relation uint8

const (
	RelationLexical Relation = iota
	RelationCall
	RelationInlinedCall
)

func (r Relation) String() string {
	switch r {
	case RelationLexical:
		return "lexical"
	case RelationCall:
		return "call"
	case RelationInlinedCall:
		return "inlined_call"
	default:
		return fmt.Sprintf("Relation(%d)", uint8(r))
	}
}

// LexicalType is the lexical construct a Context represents.
type LexicalType uint8

const (
	LexicalFunction LexicalType = iota
	LexicalLoop
	LexicalLine
	LexicalInstruction
)

func (t LexicalType) String() string {
	switch t {
	case LexicalFunction:
		return "function"
	case LexicalLoop:
		return "loop"
	case LexicalLine:
		return "line"
	case LexicalInstruction:
		return "instruction"
	default:
		return fmt.Sprintf("LexicalType(%d)", uint8(t))
	}
}

// Context is a node of the calling-context tree.
//
// File and Line are set together, as are Module and Offset. The presence of
// each optional field is encoded by a flag bit on disk.
type Context struct {
	CtxID       uint32
	Relation    Relation
	LexicalType LexicalType
	// Propagation is the bitmask of scopes values do not propagate through.
	Propagation uint16
	Function    *Function
	File        *SourceFile
	Line        uint32
	Module      *Module
	Offset      uint64
	Children    []*Context
}

func (*Context) Kind() Kind { return KindContext }
func (*Context) object() {}

func (c *Context) Fields() []Field {
	return []Field{
		{Name: "ctxId", Role: RoleInfo, Value: c.CtxID},
		{Name: "relation", Role: RoleKey, Value: c.Relation},
		{Name: "lexicalType", Role: RoleKey, Value: c.LexicalType},
		{Name: "function", Role: RoleKey, Value: ref(c.Function)},
		{Name: "file", Role: RoleKey, Value: ref(c.File)},
		{Name: "line", Role: RoleKey, Value: c.Line},
		{Name: "module", Role: RoleKey, Value: ref(c.Module)},
		{Name: "offset", Role: RoleKey, Value: c.Offset},
		{Name: "propagation", Role: RoleInfo, Value: c.Propagation},
		{Name: "children", Role: RoleOwned, Value: objects(c.Children)},
	}
}

func (c *Context) ContextID() uint32 { return c.CtxID }
func (c *Context) ChildContexts() []*Context { return c.Children }
