// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package model

import "fmt"

// MetaDB is the content of meta.db.
type MetaDB struct {
	General   *GeneralProperties
	IdNames   *IdentifierNames
	Metrics   *PerformanceMetrics
	Modules   []*Module
	Files     []*SourceFile
	Functions []*Function
	Tree      *ContextTree
}

func (*MetaDB) Kind() Kind { return KindMetaDB }
func (*MetaDB) object() {}

func (m *MetaDB) Fields() []Field {
	return []Field{
		{Name: "general", Role: RoleOwned, Value: ref(m.General)},
		{Name: "idNames", Role: RoleOwned, Value: ref(m.IdNames)},
		{Name: "modules", Role: RoleOwned, Value: objects(m.Modules)},
		{Name: "files", Role: RoleOwned, Value: objects(m.Files)},
		{Name: "functions", Role: RoleOwned, Value: objects(m.Functions)},
		{Name: "metrics", Role: RoleOwned, Value: ref(m.Metrics)},
		{Name: "tree", Role: RoleOwned, Value: ref(m.Tree)},
	}
}

// GeneralProperties describes the database as a whole.
type GeneralProperties struct {
	Title       string
	Description string
}

func (*GeneralProperties) Kind() Kind { return KindGeneralProperties }
func (*GeneralProperties) object() {}

func (g *GeneralProperties) Fields() []Field {
	return []Field{
		{Name: "title", Role: RoleAttr, Value: g.Title},
		{Name: "description", Role: RoleAttr, Value: g.Description},
	}
}

// IdentifierNames names the hierarchical identifier kinds, indexed by kind.
type IdentifierNames struct {
	Names []string
}

func (*IdentifierNames) Kind() Kind { return KindIdentifierNames }
func (*IdentifierNames) object() {}

func (n *IdentifierNames) Fields() []Field {
	return []Field{{Name: "names", Role: RoleAttr, Value: n.Names}}
}

// Name returns the name of kind, or a placeholder if it is unnamed.
func (n *IdentifierNames) Name(kind uint8) string {
	if n != nil && int(kind) < len(n.Names) {
		return n.Names[kind]
	}
	return fmt.Sprintf("[%d]", kind)
}

// PerformanceMetrics holds the propagation scopes and the metrics measured
// over them.
type PerformanceMetrics struct {
	Scopes  []*PropagationScope
	Metrics []*Metric
}

func (*PerformanceMetrics) Kind() Kind { return KindPerformanceMetrics }
func (*PerformanceMetrics) object() {}

func (p *PerformanceMetrics) Fields() []Field {
	return []Field{
		{Name: "scopes", Role: RoleOwned, Value: objects(p.Scopes)},
		{Name: "metrics", Role: RoleOwned, Value: objects(p.Metrics)},
	}
}

// ScopeType is the kind of a PropagationScope.
type ScopeType uint8

const (
	ScopeCustom ScopeType = iota
	ScopePoint
	ScopeExecution
	ScopeFunction
)

func (t ScopeType) String() string {
	switch t {
	case ScopeCustom:
		return "custom"
	case ScopePoint:
		return "point"
	case ScopeExecution:
		return "execution"
	case ScopeFunction:
		return "function"
	default:
		return fmt.Sprintf("ScopeType(%d)", uint8(t))
	}
}

// PropagationScope is a named scope values are aggregated over.
type PropagationScope struct {
	Name string
	Type ScopeType
	// PropagationIndex is the propagation bit of the scope. It is only
	// meaningful for ScopeFunction scopes.
	PropagationIndex uint8
}

func (*PropagationScope) Kind() Kind { return KindPropagationScope }
func (*PropagationScope) object() {}

func (s *PropagationScope) Fields() []Field {
	role := RoleInfo
	if s.Type == ScopeFunction {
		role = RoleAttr
	}
	return []Field{
		{Name: "name", Role: RoleKey, Value: s.Name},
		{Name: "type", Role: RoleKey, Value: s.Type},
		{Name: "propagationIndex", Role: role, Value: s.PropagationIndex},
	}
}

// Metric is a single performance metric.
type Metric struct {
	Name       string
	ScopeInsts []*PropagationScopeInstance
	Summaries  []*SummaryStatistic
}

func (*Metric) Kind() Kind { return KindMetric }
func (*Metric) object() {}

func (m *Metric) Fields() []Field {
	return []Field{
		{Name: "name", Role: RoleKey, Value: m.Name},
		{Name: "scopeInsts", Role: RoleOwned, Value: objects(m.ScopeInsts)},
		{Name: "summaries", Role: RoleOwned, Value: objects(m.Summaries)},
	}
}

// PropagationScopeInstance is the raw value stream of a Metric over a scope.
type PropagationScopeInstance struct {
	Scope *PropagationScope
	// PropMetricID keys the values of the instance in value blocks.
	PropMetricID uint16
}

func (*PropagationScopeInstance) Kind() Kind { return KindPropagationScopeInstance }
func (*PropagationScopeInstance) object() {}

func (p *PropagationScopeInstance) Fields() []Field {
	return []Field{
		{Name: "scope", Role: RoleKey, Value: ref(p.Scope)},
		{Name: "propMetricId", Role: RoleInfo, Value: p.PropMetricID},
	}
}

// Combine is the operator a SummaryStatistic aggregates profiles with.
type Combine uint8

const (
	CombineSum Combine = iota
	CombineMin
	CombineMax
)

func (c Combine) String() string {
	switch c {
	case CombineSum:
		return "sum"
	case CombineMin:
		return "min"
	case CombineMax:
		return "max"
	default:
		return fmt.Sprintf("Combine(%d)", uint8(c))
	}
}

// SummaryStatistic is a derived value stream of a Metric over a scope.
type SummaryStatistic struct {
	Scope   *PropagationScope
	Formula string
	Combine Combine
	// StatMetricID keys the values of the statistic in the summary profile.
	StatMetricID uint16
}

func (*SummaryStatistic) Kind() Kind { return KindSummaryStatistic }
func (*SummaryStatistic) object() {}

func (s *SummaryStatistic) Fields() []Field {
	return []Field{
		{Name: "scope", Role: RoleKey, Value: ref(s.Scope)},
		{Name: "formula", Role: RoleKey, Value: s.Formula},
		{Name: "combine", Role: RoleKey, Value: s.Combine},
		{Name: "statMetricId", Role: RoleInfo, Value: s.StatMetricID},
	}
}

// Module is a load module, deduplicated by (flags, path).
type Module struct {
	Flags uint32
	Path  string
}

func (*Module) Kind() Kind { return KindModule }
func (*Module) object() {}

func (m *Module) Fields() []Field {
	return []Field{
		{Name: "flags", Role: RoleKey, Value: m.Flags},
		{Name: "path", Role: RoleKey, Value: m.Path},
	}
}

// SourceFileCopied marks a source file copied into the database.
const SourceFileCopied uint32 = 1 << 0

// SourceFile is a source file, deduplicated by (flags, path).
type SourceFile struct {
	Flags uint32
	Path  string
}

func (*SourceFile) Kind() Kind { return KindSourceFile }
func (*SourceFile) object() {}

func (f *SourceFile) Fields() []Field {
	return []Field{
		{Name: "flags", Role: RoleKey, Value: f.Flags},
		{Name: "path", Role: RoleKey, Value: f.Path},
	}
}

// Function is a named function. Module and Offset are set together, as are
// File and Line.
type Function struct {
	Name   string
	Module *Module
	Offset uint64
	File   *SourceFile
	Line   uint32
	Flags  uint32
}

func (*Function) Kind() Kind { return KindFunction }
func (*Function) object() {}

func (f *Function) Fields() []Field {
	return []Field{
		{Name: "name", Role: RoleKey, Value: f.Name},
		{Name: "module", Role: RoleKey, Value: ref(f.Module)},
		{Name: "offset", Role: RoleKey, Value: f.Offset},
		{Name: "file", Role: RoleKey, Value: ref(f.File)},
		{Name: "line", Role: RoleKey, Value: f.Line},
		{Name: "flags", Role: RoleAttr, Value: f.Flags},
	}
}
