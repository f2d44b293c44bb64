package facts

import (
	"strconv"
	"strings"
)

// Delta captures added and removed fact rows between two snapshots.
type Delta struct {
	Added   Tables `json:"added"`
	Removed Tables `json:"removed"`
}

// ComputeDelta computes row-level additions and removals between two snapshots.
func ComputeDelta(prev, next Tables) Delta {
	return Delta{
		Added:   diffTables(prev, next),
		Removed: diffTables(next, prev),
	}
}

// Empty reports whether the snapshots were identical
func (d Delta) Empty() bool {
	return d.Added.rows() == 0 && d.Removed.rows() == 0
}

func (t Tables) rows() int {
	return len(t.Drivers) + len(t.Uclasses) + len(t.Nodes) + len(t.Fields) + len(t.Phandles)
}

func diffTables(from, to Tables) Tables {
	out := emptyTables()

	out.Drivers = diffRows(from.Drivers, to.Drivers, func(r DriverRow) string {
		return key(r.Name, r.UclassID, strings.Join(r.Compatibles, ","), r.Phase, r.File,
			strconv.Itoa(r.Line), strconv.Itoa(r.Duplicates), strconv.FormatBool(r.Used))
	})
	out.Uclasses = diffRows(from.Uclasses, to.Uclasses, func(r UclassRow) string {
		return key(r.ID, r.Name, r.File, strconv.Itoa(r.Line), strconv.Itoa(r.Duplicates))
	})
	// Index is left out: inserting one node shifts every later index
	out.Nodes = diffRows(from.Nodes, to.Nodes, func(r NodeRow) string {
		return key(r.Path, r.VarName, strings.Join(r.Compatible, ","), r.Match, r.Driver, r.Struct,
			r.Uclass, strconv.Itoa(r.Seq))
	})
	out.Fields = diffRows(from.Fields, to.Fields, func(r FieldRow) string {
		return key(r.Struct, r.Name, r.Type, strconv.Itoa(r.Length), strconv.FormatBool(r.Phandle))
	})
	out.Phandles = diffRows(from.Phandles, to.Phandles, func(r PhandleRow) string {
		return key(r.Node, r.Prop, r.Target, strconv.Itoa(r.Args))
	})

	return out
}

func key(parts ...string) string {
	return strings.Join(parts, "|")
}

func diffRows[T any](from, to []T, key func(T) string) []T {
	fromSet := make(map[string]struct{}, len(from))
	for _, row := range from {
		fromSet[key(row)] = struct{}{}
	}
	diff := []T{}
	for _, row := range to {
		if _, ok := fromSet[key(row)]; !ok {
			diff = append(diff, row)
		}
	}
	return diff
}
