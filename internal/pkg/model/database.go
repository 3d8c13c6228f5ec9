// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"errors"

	"github.com/hpctoolkit/hpcdb/internal/pkg/format"
)

// Database is the combined content of the files of one database. Traces is
// nil if the database has no trace.db.
type Database struct {
	Meta     *MetaDB
	Profiles *ProfileDB
	Contexts *ContextDB
	Traces   *TraceDB

	contexts   map[uint32]CallingContext
	scopeInsts map[uint16]*PropagationScopeInstance
	stats      map[uint16]*SummaryStatistic
}

// NewDatabase assembles a Database and validates the references between its
// files: every context id, metric id and profile index used as a value block
// column or trace owner must resolve. A *format.FormatError describing every
// unresolved reference is returned otherwise.
//
// Row keys are only read with their column, so an unresolved metric id or
// profile index is reported by the first read of the column holding it.
func NewDatabase(meta *MetaDB, prof *ProfileDB, cct *ContextDB, trace *TraceDB) (*Database, error) {
	if meta == nil || prof == nil || cct == nil {
		return nil, errors.New("meta.db, profile.db and cct.db are required")
	}
	db := &Database{
		Meta:       meta,
		Profiles:   prof,
		Contexts:   cct,
		Traces:     trace,
		contexts:   make(map[uint32]CallingContext),
		scopeInsts: make(map[uint16]*PropagationScopeInstance),
		stats:      make(map[uint16]*SummaryStatistic),
	}
	if err := db.index(); err != nil {
		return nil, err
	}
	if err := db.validate(); err != nil {
		return nil, err
	}
	return db, nil
}

func (db *Database) index() error {
	metaName := format.KindMeta.FileName()
	if db.Meta.Tree != nil {
		err := db.Meta.Tree.Walk(func(c CallingContext) error {
			id := c.ContextID()
			if _, dup := db.contexts[id]; dup {
				return format.Errorf(metaName, 0, "duplicate context id %d", id)
			}
			db.contexts[id] = c
			return nil
		})
		if err != nil {
			return err
		}
	}
	if db.Meta.Metrics == nil {
		return nil
	}
	for _, m := range db.Meta.Metrics.Metrics {
		for _, si := range m.ScopeInsts {
			if _, dup := db.scopeInsts[si.PropMetricID]; dup {
				return format.Errorf(metaName, 0, "duplicate propagation metric id %d", si.PropMetricID)
			}
			db.scopeInsts[si.PropMetricID] = si
		}
		for _, st := range m.Summaries {
			if _, dup := db.stats[st.StatMetricID]; dup {
				return format.Errorf(metaName, 0, "duplicate statistic metric id %d", st.StatMetricID)
			}
			db.stats[st.StatMetricID] = st
		}
	}
	return nil
}

func (db *Database) validate() error {
	var errs []error
	profName := format.KindProfile.FileName()
	for _, p := range db.Profiles.Profiles {
		if p.Values == nil || p.Values.Block == nil {
			continue
		}
		if p.IsSummary() {
			p.Values.Block.CheckRows("statistic metric id", func(id uint32) bool {
				_, ok := db.Statistic(id)
				return ok
			})
		} else {
			p.Values.Block.CheckRows("metric id", func(id uint32) bool {
				_, ok := db.ScopeInstance(id)
				return ok
			})
		}
		for _, id := range p.Values.Block.Columns() {
			if _, ok := db.contexts[id]; !ok {
				errs = append(errs, format.Errorf(profName, 0, "profile %d: unknown context id %d", p.Index, id))
			}
		}
	}

	cctName := format.KindContext.FileName()
	for _, cv := range db.Contexts.Contexts {
		if cv.Block == nil || len(cv.Block.Columns()) == 0 {
			continue
		}
		cv.Block.CheckRows("profile index", func(index uint32) bool {
			_, ok := db.Profile(index)
			return ok
		})
		if _, ok := db.contexts[cv.CtxID]; !ok {
			errs = append(errs, format.Errorf(cctName, 0, "values for unknown context id %d", cv.CtxID))
		}
		for _, id := range cv.Block.Columns() {
			if _, ok := db.ScopeInstance(id); !ok {
				errs = append(errs, format.Errorf(cctName, 0, "context %d: unknown metric id %d", cv.CtxID, id))
			}
		}
	}

	if db.Traces != nil {
		traceName := format.KindTrace.FileName()
		for _, t := range db.Traces.Traces {
			if _, ok := db.Profile(t.ProfIndex); !ok {
				errs = append(errs, format.Errorf(traceName, 0, "trace for unknown profile index %d", t.ProfIndex))
			}
		}
	}
	return errors.Join(errs...)
}

func (*Database) Kind() Kind { return KindDatabase }
func (*Database) object() {}

func (db *Database) Fields() []Field {
	return []Field{
		{Name: "meta", Role: RoleOwned, Value: ref(db.Meta)},
		{Name: "profiles", Role: RoleOwned, Value: ref(db.Profiles)},
		{Name: "contexts", Role: RoleOwned, Value: ref(db.Contexts)},
		{Name: "traces", Role: RoleOwned, Value: ref(db.Traces)},
	}
}

// Context returns the calling context with id.
func (db *Database) Context(id uint32) (CallingContext, bool) {
	c, ok := db.contexts[id]
	return c, ok
}

// ScopeInstance returns the propagation scope instance keyed by the
// propagation metric id.
func (db *Database) ScopeInstance(id uint32) (*PropagationScopeInstance, bool) {
	if id > 0xffff {
		return nil, false
	}
	si, ok := db.scopeInsts[uint16(id)]
	return si, ok
}

// Statistic returns the summary statistic keyed by the statistic metric id.
func (db *Database) Statistic(id uint32) (*SummaryStatistic, bool) {
	if id > 0xffff {
		return nil, false
	}
	st, ok := db.stats[uint16(id)]
	return st, ok
}

// Profile returns the profile at index.
func (db *Database) Profile(index uint32) (*Profile, bool) {
	if int(index) >= len(db.Profiles.Profiles) {
		return nil, false
	}
	return db.Profiles.Profiles[index], true
}

// ContextValues returns the cct.db values of the context with id.
func (db *Database) ContextValues(id uint32) (*ContextValues, bool) {
	if int(id) >= len(db.Contexts.Contexts) {
		return nil, false
	}
	return db.Contexts.Contexts[id], true
}
