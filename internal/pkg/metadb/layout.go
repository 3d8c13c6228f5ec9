// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package metadb

import (
	"github.com/hpctoolkit/hpcdb/internal/pkg/format"
	sf "github.com/hpctoolkit/hpcdb/internal/pkg/structfield"
)

// Section names in table order.
const (
	SecGeneral   = "General"
	SecIdNames   = "IdNames"
	SecMetrics   = "Metrics"
	SecContext   = "Context"
	SecStrings   = "Strings"
	SecModules   = "Modules"
	SecFiles     = "Files"
	SecFunctions = "Functions"
)

// SectionTable is the section table of meta.db.
var SectionTable = format.NewSectionLayout("meta.db",
	format.SectionSpec{Name: SecGeneral, Since: "4.0"},
	format.SectionSpec{Name: SecIdNames, Since: "4.0"},
	format.SectionSpec{Name: SecMetrics, Since: "4.0"},
	format.SectionSpec{Name: SecContext, Since: "4.0"},
	format.SectionSpec{Name: SecStrings, Since: "4.0"},
	format.SectionSpec{Name: SecModules, Since: "4.0"},
	format.SectionSpec{Name: SecFiles, Since: "4.0"},
	format.SectionSpec{Name: SecFunctions, Since: "4.0"},
)

// Record layouts of meta.db.
var (
	General = sf.NewLayout("General",
		sf.NewField("pTitle", "4.0", 0x00, sf.U64),
		sf.NewField("pDescription", "4.0", 0x08, sf.U64),
	)

	IdNames = sf.NewLayout("IdNames",
		sf.NewField("ppNames", "4.0", 0x00, sf.U64),
		sf.NewField("nKinds", "4.0", 0x08, sf.U8),
	)

	Metrics = sf.NewLayout("Metrics",
		sf.NewField("pMetrics", "4.0", 0x00, sf.U64),
		sf.NewField("nMetrics", "4.0", 0x08, sf.U32),
		sf.NewField("szMetric", "4.0", 0x0c, sf.U8),
		sf.NewField("szScopeInst", "4.0", 0x0d, sf.U8),
		sf.NewField("szSummary", "4.0", 0x0e, sf.U8),
		sf.NewField("pScopes", "4.0", 0x10, sf.U64),
		sf.NewField("nScopes", "4.0", 0x18, sf.U16),
		sf.NewField("szScope", "4.0", 0x1a, sf.U8),
	)

	Metric = sf.NewLayout("Metric",
		sf.NewField("pName", "4.0", 0x00, sf.U64),
		sf.NewField("pScopeInsts", "4.0", 0x08, sf.U64),
		sf.NewField("pSummaries", "4.0", 0x10, sf.U64),
		sf.NewField("nScopeInsts", "4.0", 0x18, sf.U16),
		sf.NewField("nSummaries", "4.0", 0x1a, sf.U16),
	)

	Scope = sf.NewLayout("PropagationScope",
		sf.NewField("pScopeName", "4.0", 0x00, sf.U64),
		sf.NewField("type", "4.0", 0x08, sf.U8),
		sf.NewField("propagationIndex", "4.0", 0x09, sf.U8),
	)

	ScopeInst = sf.NewLayout("PropagationScopeInstance",
		sf.NewField("pScope", "4.0", 0x00, sf.U64),
		sf.NewField("propMetricId", "4.0", 0x08, sf.U16),
	)

	Summary = sf.NewLayout("SummaryStatistic",
		sf.NewField("pScope", "4.0", 0x00, sf.U64),
		sf.NewField("pFormula", "4.0", 0x08, sf.U64),
		sf.NewField("combine", "4.0", 0x10, sf.U8),
		sf.NewField("statMetricId", "4.0", 0x12, sf.U16),
	)

	ModulesSection = sf.NewLayout("Modules",
		sf.NewField("pModules", "4.0", 0x00, sf.U64),
		sf.NewField("nModules", "4.0", 0x08, sf.U32),
		sf.NewField("szModule", "4.0", 0x0c, sf.U16),
	)

	Module = sf.NewLayout("Module",
		sf.NewField("flags", "4.0", 0x00, sf.U32),
		sf.NewField("pPath", "4.0", 0x08, sf.U64),
	)

	FilesSection = sf.NewLayout("Files",
		sf.NewField("pFiles", "4.0", 0x00, sf.U64),
		sf.NewField("nFiles", "4.0", 0x08, sf.U32),
		sf.NewField("szFile", "4.0", 0x0c, sf.U16),
	)

	File = sf.NewLayout("SourceFile",
		sf.NewField("flags", "4.0", 0x00, sf.U32),
		sf.NewField("pPath", "4.0", 0x08, sf.U64),
	)

	FunctionsSection = sf.NewLayout("Functions",
		sf.NewField("pFunctions", "4.0", 0x00, sf.U64),
		sf.NewField("nFunctions", "4.0", 0x08, sf.U32),
		sf.NewField("szFunction", "4.0", 0x0c, sf.U16),
	)

	Function = sf.NewLayout("Function",
		sf.NewField("pName", "4.0", 0x00, sf.U64),
		sf.NewField("pModule", "4.0", 0x08, sf.U64),
		sf.NewField("offset", "4.0", 0x10, sf.U64),
		sf.NewField("pFile", "4.0", 0x18, sf.U64),
		sf.NewField("line", "4.0", 0x20, sf.U32),
		sf.NewField("flags", "4.0", 0x24, sf.U32),
	)

	ContextSection = sf.NewLayout("ContextTree",
		sf.NewField("pEntryPoints", "4.0", 0x00, sf.U64),
		sf.NewField("nEntryPoints", "4.0", 0x08, sf.U16),
		sf.NewField("szEntryPoint", "4.0", 0x0a, sf.U8),
	)

	EntryPoint = sf.NewLayout("EntryPoint",
		sf.NewField("szChildren", "4.0", 0x00, sf.U64),
		sf.NewField("pChildren", "4.0", 0x08, sf.U64),
		sf.NewField("ctxId", "4.0", 0x10, sf.U32),
		sf.NewField("entryPoint", "4.0", 0x14, sf.U16),
		sf.NewField("pPrettyName", "4.0", 0x18, sf.U64),
	)

	// Context is the fixed part of a context record. It is followed by
	// nFlexWords flex words starting at ContextFixedSize.
	Context = sf.NewLayout("Context",
		sf.NewField("szChildren", "4.0", 0x00, sf.U64),
		sf.NewField("pChildren", "4.0", 0x08, sf.U64),
		sf.NewField("ctxId", "4.0", 0x10, sf.U32),
		sf.NewField("flags", "4.0", 0x14, sf.U8),
		sf.NewField("relation", "4.0", 0x15, sf.U8),
		sf.NewField("lexicalType", "4.0", 0x16, sf.U8),
		sf.NewField("nFlexWords", "4.0", 0x17, sf.U8),
		sf.NewField("propagation", "4.0", 0x18, sf.U16),
	)
)

// ContextFixedSize is the size of a context record without flex words.
const ContextFixedSize = 0x20
