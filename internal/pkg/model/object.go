// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package model defines the decoded object graph of a performance database.
//
// All entities are immutable once decoded and compared by identity: two
// distinct *Context values are different nodes even when their content is
// identical. Cross references are pointers to the object owned by its
// collection.
package model

import "fmt"

// Kind is the closed set of entity kinds.
type Kind uint8

const (
	KindDatabase Kind = iota + 1
	KindMetaDB
	KindGeneralProperties
	KindIdentifierNames
	KindPerformanceMetrics
	KindMetric
	KindPropagationScope
	KindPropagationScopeInstance
	KindSummaryStatistic
	KindModule
	KindSourceFile
	KindFunction
	KindContextTree
	KindEntryPoint
	KindContext
	KindProfileDB
	KindProfile
	KindIdentifierTuple
	KindIdentifier
	KindProfileValues
	KindContextDB
	KindContextValues
	KindTraceDB
	KindContextTrace
	KindTraceSample
)

var kindNames = [...]string{
	KindDatabase:                 "Database",
	KindMetaDB:                   "MetaDB",
	KindGeneralProperties:        "GeneralProperties",
	KindIdentifierNames:          "IdentifierNames",
	KindPerformanceMetrics:       "PerformanceMetrics",
	KindMetric:                   "Metric",
	KindPropagationScope:         "PropagationScope",
	KindPropagationScopeInstance: "PropagationScopeInstance",
	KindSummaryStatistic:         "SummaryStatistic",
	KindModule:                   "Module",
	KindSourceFile:               "SourceFile",
	KindFunction:                 "Function",
	KindContextTree:              "ContextTree",
	KindEntryPoint:               "EntryPoint",
	KindContext:                  "Context",
	KindProfileDB:                "ProfileDB",
	KindProfile:                  "Profile",
	KindIdentifierTuple:          "IdentifierTuple",
	KindIdentifier:               "Identifier",
	KindProfileValues:            "ProfileValues",
	KindContextDB:                "ContextDB",
	KindContextValues:            "ContextValues",
	KindTraceDB:                  "TraceDB",
	KindContextTrace:             "ContextTrace",
	KindTraceSample:              "TraceSample",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Object is implemented by every entity of the graph.
type Object interface {
	// Kind returns the concrete kind of the object.
	Kind() Kind
	// Fields returns the fields of the object in declaration order.
	Fields() []Field

	object()
}

// Role describes how a Field participates in comparisons.
type Role uint8

const (
	// RoleKey fields identify an object among its siblings.
	RoleKey Role = iota + 1
	// RoleAttr fields are compared but do not identify the object.
	RoleAttr
	// RoleInfo fields are informative only, such as internal ids. They are
	// never compared.
	RoleInfo
	// RoleOwned fields hold child objects, either a single Object or a
	// []Object.
	RoleOwned
	// RoleValues fields hold a lazily loaded value block.
	RoleValues
)

func (r Role) String() string {
	switch r {
	case RoleKey:
		return "key"
	case RoleAttr:
		return "attr"
	case RoleInfo:
		return "info"
	case RoleOwned:
		return "owned"
	case RoleValues:
		return "values"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

// Field is a single named field of an Object.
//
// A RoleKey or RoleAttr field whose Value is an Object, or nil, is a
// reference to an object owned elsewhere in the graph.
type Field struct {
	Name  string
	Role  Role
	Value any
}

// IsRef reports if f is a reference to another object.
func (f Field) IsRef() bool {
	if f.Role != RoleKey && f.Role != RoleAttr {
		return false
	}
	if f.Value == nil {
		return true
	}
	_, ok := f.Value.(Object)
	return ok
}

// ref returns p as an Object, or a nil Object if p is nil.
func ref[T any, P interface {
	*T
	Object
}](p P) Object {
	if p == nil {
		return nil
	}
	return p
}

func objects[T Object](s []T) []Object {
	out := make([]Object, len(s))
	for i, o := range s {
		out[i] = o
	}
	return out
}
