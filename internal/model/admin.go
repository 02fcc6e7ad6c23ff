package model

import (
	"sort"

	"github.com/ctessum/geom"
)

// Level is the nesting level of an administrative unit.
type Level string

const (
	LevelNational   Level = "national"
	LevelRegional   Level = "regional"
	LevelProvincial Level = "provincial"
)

// Levels lists the levels from the root down.
var Levels = []Level{LevelNational, LevelRegional, LevelProvincial}

// OutsideUnitID is the synthetic unit that collects track lying in no unit
// of a level (border and cross-border sections).
const OutsideUnitID = "outside"

// NationalID is the id of the root unit.
const NationalID = "IT"

// RegionID returns the unit id of a region name.
func RegionID(name string) string { return "reg:" + name }

// ProvinceID returns the unit id of a province name. Regions and provinces
// may share a name (Valle d'Aosta), so ids carry the level.
func ProvinceID(name string) string { return "prov:" + name }

// AdminUnit is an administrative polygon in the metric CRS.
type AdminUnit struct {
	ID       string
	Name     string
	Level    Level
	Parent   string // empty for the national unit
	Geometry geom.MultiPolygon
	AreaKm2  float64
}

// AdminTree holds the National → Regional → Provincial hierarchy.
type AdminTree struct {
	National string
	units    map[string]*AdminUnit
	children map[string][]string
}

// NewAdminTree indexes the given units. Exactly one national unit is expected;
// parents must reference units in the set.
func NewAdminTree(units []*AdminUnit) (*AdminTree, error) {
	t := &AdminTree{
		units:    make(map[string]*AdminUnit, len(units)),
		children: make(map[string][]string),
	}
	for _, u := range units {
		if _, dup := t.units[u.ID]; dup {
			return nil, NewTopologyError("boundaries", u.ID, "duplicate unit id")
		}
		t.units[u.ID] = u
		if u.Level == LevelNational {
			if t.National != "" {
				return nil, NewTopologyError("boundaries", u.ID, "more than one national unit")
			}
			t.National = u.ID
		}
	}
	if t.National == "" {
		return nil, NewTopologyError("boundaries", "", "no national unit")
	}
	for _, u := range units {
		if u.Level == LevelNational {
			continue
		}
		p, ok := t.units[u.Parent]
		if !ok {
			return nil, NewTopologyError("boundaries", u.ID, "parent "+u.Parent+" not found")
		}
		if !parentLevelOK(u.Level, p.Level) {
			return nil, NewTopologyError("boundaries", u.ID, "parent "+p.ID+" is "+string(p.Level))
		}
		t.children[p.ID] = append(t.children[p.ID], u.ID)
	}
	for id := range t.children {
		sort.Strings(t.children[id])
	}
	return t, nil
}

func parentLevelOK(child, parent Level) bool {
	switch child {
	case LevelRegional:
		return parent == LevelNational
	case LevelProvincial:
		return parent == LevelRegional
	}
	return false
}

// Unit returns the unit with the given id.
func (t *AdminTree) Unit(id string) (*AdminUnit, bool) {
	u, ok := t.units[id]
	return u, ok
}

// Children returns the ids of the direct children of id, sorted.
func (t *AdminTree) Children(id string) []string {
	return t.children[id]
}

// AtLevel returns all units of a level sorted by id.
func (t *AdminTree) AtLevel(l Level) []*AdminUnit {
	var out []*AdminUnit
	for _, u := range t.units {
		if u.Level == l {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Ancestors returns id followed by its parents up to the national unit.
func (t *AdminTree) Ancestors(id string) []string {
	var out []string
	for id != "" {
		u, ok := t.units[id]
		if !ok {
			break
		}
		out = append(out, id)
		id = u.Parent
	}
	return out
}

// Len returns the number of units.
func (t *AdminTree) Len() int { return len(t.units) }

// Municipality is a reference point used for accessibility, in the metric CRS.
type Municipality struct {
	ID        string
	Name      string
	Centroid  geom.Point
	Province  string // AdminUnit id
	Region    string // AdminUnit id
	CapitalOf []string
}

// InUnit reports whether the municipality lies in the given unit or the
// national root.
func (m Municipality) InUnit(unitID, national string) bool {
	return unitID == national || unitID == m.Province || unitID == m.Region
}

// IsCapitalOf reports whether m is the designated capital of unitID.
func (m Municipality) IsCapitalOf(unitID string) bool {
	for _, id := range m.CapitalOf {
		if id == unitID {
			return true
		}
	}
	return false
}
