// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"fmt"

	"github.com/hpctoolkit/hpcdb/internal/pkg/sparse"
)

// ProfileDB is the content of profile.db. The index of a Profile in
// Profiles is its profile index.
type ProfileDB struct {
	Profiles []*Profile
}

func (*ProfileDB) Kind() Kind { return KindProfileDB }
func (*ProfileDB) object() {}

func (p *ProfileDB) Fields() []Field {
	return []Field{{Name: "profiles", Role: RoleOwned, Value: objects(p.Profiles)}}
}

// ProfileSummary marks the summary profile.
const ProfileSummary uint32 = 1 << 0

// Profile is the values measured by one application thread or process, or
// the synthetic summary over all of them.
type Profile struct {
	Index uint32
	Flags uint32
	// IdTuple is nil for the summary profile.
	IdTuple *IdentifierTuple
	Values  *ProfileValues
}

func (*Profile) Kind() Kind { return KindProfile }
func (*Profile) object() {}

func (p *Profile) Fields() []Field {
	return []Field{
		{Name: "index", Role: RoleInfo, Value: p.Index},
		{Name: "summary", Role: RoleKey, Value: p.IsSummary()},
		{Name: "idTuple", Role: RoleOwned, Value: ref(p.IdTuple)},
		{Name: "values", Role: RoleOwned, Value: ref(p.Values)},
	}
}

// IsSummary reports if p is the summary profile.
func (p *Profile) IsSummary() bool { return p.Flags&ProfileSummary != 0 }

// IdentifierTuple is the hierarchical identity of a Profile.
type IdentifierTuple struct {
	Ids []*Identifier
}

func (*IdentifierTuple) Kind() Kind { return KindIdentifierTuple }
func (*IdentifierTuple) object() {}

func (t *IdentifierTuple) Fields() []Field {
	return []Field{{Name: "ids", Role: RoleOwned, Value: objects(t.Ids)}}
}

// IdentifierPhysical marks an Identifier carrying a physical id.
const IdentifierPhysical uint8 = 1 << 0

// Identifier is one level of an IdentifierTuple.
type Identifier struct {
	// IdKind indexes IdentifierNames.
	IdKind     uint8
	Flags      uint8
	LogicalID  uint32
	PhysicalID uint64
}

func (*Identifier) Kind() Kind { return KindIdentifier }
func (*Identifier) object() {}

func (i *Identifier) Fields() []Field {
	return []Field{
		{Name: "kind", Role: RoleKey, Value: i.IdKind},
		{Name: "logicalId", Role: RoleKey, Value: i.LogicalID},
		{Name: "flags", Role: RoleAttr, Value: i.Flags},
		{Name: "physicalId", Role: RoleAttr, Value: i.PhysicalID},
	}
}

func (i *Identifier) String() string {
	if i.Flags&IdentifierPhysical != 0 {
		return fmt.Sprintf("%d:%d[0x%x]", i.IdKind, i.LogicalID, i.PhysicalID)
	}
	return fmt.Sprintf("%d:%d", i.IdKind, i.LogicalID)
}

// ProfileValues maps context ids to {metric id → value} for one Profile.
// Metric ids are propagation metric ids, or statistic metric ids for the
// summary profile.
type ProfileValues struct {
	Block *sparse.Block
}

func (*ProfileValues) Kind() Kind { return KindProfileValues }
func (*ProfileValues) object() {}

func (v *ProfileValues) Fields() []Field {
	return []Field{{Name: "values", Role: RoleValues, Value: v.Block}}
}

// ContextDB is the content of cct.db. The values of context id i are at
// index i of Contexts.
type ContextDB struct {
	Contexts []*ContextValues
}

func (*ContextDB) Kind() Kind { return KindContextDB }
func (*ContextDB) object() {}

func (c *ContextDB) Fields() []Field {
	return []Field{{Name: "contexts", Role: RoleOwned, Value: objects(c.Contexts)}}
}

// ContextValues maps propagation metric ids to {profile index → value} for
// one calling context.
type ContextValues struct {
	CtxID uint32
	Block *sparse.Block
}

func (*ContextValues) Kind() Kind { return KindContextValues }
func (*ContextValues) object() {}

func (v *ContextValues) Fields() []Field {
	return []Field{
		{Name: "ctxId", Role: RoleInfo, Value: v.CtxID},
		{Name: "values", Role: RoleValues, Value: v.Block},
	}
}
