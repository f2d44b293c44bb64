package indexer

import (
	"sort"

	"github.com/robert-at-pretension-io/dtoc/internal/devicetree"
	"github.com/robert-at-pretension-io/dtoc/internal/extractor"
)

// Driver is the winning declaration for a driver name. Dups holds the
// other declarations of the same name that lost phase selection.
type Driver struct {
	extractor.Driver
	Dups []extractor.Driver
}

// Ambiguous reports whether the winner was chosen without a phase match
func (d *Driver) Ambiguous(phase string) bool {
	return len(d.Dups) > 0 && (phase == "" || d.Phase != phase)
}

// MatchKind says how a node's compatible list was resolved
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchCompatible
	MatchDriverName
	MatchAlias
)

func (k MatchKind) String() string {
	switch k {
	case MatchCompatible:
		return "compatible"
	case MatchDriverName:
		return "driver-name"
	case MatchAlias:
		return "alias"
	}
	return "none"
}

// Match is the result of resolving a compatible list
type Match struct {
	Kind MatchKind

	// Driver is nil when nothing matched, or when an alias names a
	// driver that was never declared
	Driver *Driver

	// Name is the struct name: the driver name, or the first compatible
	// string in C form when nothing matched
	Name string

	// Others are the C forms of the remaining compatible strings
	Others []string
}

// SymbolTable holds the driver-model declarations of every scanned file
type SymbolTable struct {
	// Phase is the build phase used to pick between duplicate drivers
	Phase string

	candidates map[string][]extractor.Driver
	drivers    map[string]*Driver
	compat     map[string]*Driver
	uclasses   map[string]*extractor.Uclass
	uclassDups map[string][]extractor.Uclass
	aliases    map[string]string
}

// NewSymbolTable returns an empty table for the given phase
func NewSymbolTable(phase string) *SymbolTable {
	return &SymbolTable{
		Phase:      phase,
		candidates: make(map[string][]extractor.Driver),
		drivers:    make(map[string]*Driver),
		compat:     make(map[string]*Driver),
		uclasses:   make(map[string]*extractor.Uclass),
		uclassDups: make(map[string][]extractor.Uclass),
		aliases:    make(map[string]string),
	}
}

// AddFacts merges one file's declarations. Call Resolve after the last file.
func (st *SymbolTable) AddFacts(f extractor.FileFacts) {
	for _, d := range f.Drivers {
		st.candidates[d.Name] = append(st.candidates[d.Name], d)
	}
	for i := range f.Uclasses {
		u := f.Uclasses[i]
		if _, dup := st.uclasses[u.ID]; dup {
			st.uclassDups[u.ID] = append(st.uclassDups[u.ID], u)
			continue
		}
		st.uclasses[u.ID] = &u
	}
	for _, a := range f.Aliases {
		if _, ok := st.aliases[a.Alias]; !ok {
			st.aliases[a.Alias] = a.Driver
		}
	}
}

// Resolve picks one declaration per driver name and builds the
// compatible-string index
func (st *SymbolTable) Resolve() {
	st.drivers = make(map[string]*Driver, len(st.candidates))
	for name, cands := range st.candidates {
		st.drivers[name] = pickDriver(cands, st.Phase)
	}

	st.compat = make(map[string]*Driver)
	for _, d := range st.Drivers() {
		for _, c := range d.Compat {
			if _, taken := st.compat[c.Name]; !taken {
				st.compat[c.Name] = d
			}
		}
	}
}

// pickDriver prefers a declaration for the target phase, then one with
// no phase, then the earliest by file and line
func pickDriver(cands []extractor.Driver, phase string) *Driver {
	sorted := append([]extractor.Driver(nil), cands...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].File != sorted[j].File {
			return sorted[i].File < sorted[j].File
		}
		return sorted[i].Line < sorted[j].Line
	})
	rank := func(d extractor.Driver) int {
		switch {
		case phase != "" && d.Phase == phase:
			return 0
		case d.Phase == "":
			return 1
		}
		return 2
	}
	best := 0
	for i := 1; i < len(sorted); i++ {
		if rank(sorted[i]) < rank(sorted[best]) {
			best = i
		}
	}
	out := &Driver{Driver: sorted[best]}
	for i, d := range sorted {
		if i != best {
			out.Dups = append(out.Dups, d)
		}
	}
	return out
}

// Driver returns the winning declaration for a driver name
func (st *SymbolTable) Driver(name string) (*Driver, bool) {
	d, ok := st.drivers[name]
	return d, ok
}

// Uclass returns the declaration for a uclass ID
func (st *SymbolTable) Uclass(id string) (*extractor.Uclass, bool) {
	u, ok := st.uclasses[id]
	return u, ok
}

// UclassDups returns the declarations that lost to the first one for id
func (st *SymbolTable) UclassDups(id string) []extractor.Uclass {
	return st.uclassDups[id]
}

// Drivers returns the winning declarations sorted by name
func (st *SymbolTable) Drivers() []*Driver {
	out := make([]*Driver, 0, len(st.drivers))
	for _, d := range st.drivers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Uclasses returns the uclass declarations sorted by ID
func (st *SymbolTable) Uclasses() []*extractor.Uclass {
	out := make([]*extractor.Uclass, 0, len(st.uclasses))
	for _, u := range st.uclasses {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Aliases returns the driver alias table: alias name to driver name
func (st *SymbolTable) Aliases() map[string]string {
	out := make(map[string]string, len(st.aliases))
	for k, v := range st.aliases {
		out[k] = v
	}
	return out
}

// Lookup resolves a compatible list in order. For each string it tries
// the compatible index, then a driver named after the string's C form,
// then the alias table; the first hit wins.
func (st *SymbolTable) Lookup(compats []string) Match {
	cnames := make([]string, len(compats))
	for i, c := range compats {
		cnames[i] = devicetree.CName(c)
	}
	others := func(name string) []string {
		var out []string
		for _, cn := range cnames {
			if cn != name {
				out = append(out, cn)
			}
		}
		return out
	}

	for i, compat := range compats {
		if d, ok := st.compat[compat]; ok {
			return Match{Kind: MatchCompatible, Driver: d, Name: d.Name, Others: others(d.Name)}
		}
		cn := cnames[i]
		if d, ok := st.drivers[cn]; ok {
			return Match{Kind: MatchDriverName, Driver: d, Name: d.Name, Others: others(d.Name)}
		}
		if target, ok := st.aliases[cn]; ok {
			d := st.drivers[target]
			return Match{Kind: MatchAlias, Driver: d, Name: target, Others: others(target)}
		}
	}

	if len(cnames) == 0 {
		return Match{Kind: MatchNone}
	}
	return Match{Kind: MatchNone, Name: cnames[0], Others: others(cnames[0])}
}
