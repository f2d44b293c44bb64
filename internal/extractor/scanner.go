package extractor

import "fmt"

type scanState int

const (
	stateIdle scanState = iota
	stateInBlock
)

// Member handlers for driver and uclass blocks. Auto members map the
// member name of a sizeof() initializer; macros map the DM_* helper.
var (
	driverAutoMembers = map[string]func(*Driver, TypeRef){
		"priv_auto":                          func(d *Driver, r TypeRef) { d.Priv = r },
		"plat_auto":                          func(d *Driver, r TypeRef) { d.Plat = r },
		"per_child_auto":                     func(d *Driver, r TypeRef) { d.ChildPriv = r },
		"per_child_plat_auto":                func(d *Driver, r TypeRef) { d.ChildPlat = r },
		"priv_auto_alloc_size":               func(d *Driver, r TypeRef) { d.Priv = r },
		"platdata_auto_alloc_size":           func(d *Driver, r TypeRef) { d.Plat = r },
		"per_child_auto_alloc_size":          func(d *Driver, r TypeRef) { d.ChildPriv = r },
		"per_child_platdata_auto_alloc_size": func(d *Driver, r TypeRef) { d.ChildPlat = r },
	}

	driverMacros = map[string]func(*Driver, string){
		"DM_PRIV":           func(d *Driver, a string) { d.Priv = parseTypeRef(a) },
		"DM_PLATDATA":       func(d *Driver, a string) { d.Plat = parseTypeRef(a) },
		"DM_CHILD_PRIV":     func(d *Driver, a string) { d.ChildPriv = parseTypeRef(a) },
		"DM_CHILD_PLATDATA": func(d *Driver, a string) { d.ChildPlat = parseTypeRef(a) },
		"DM_PHASE":          func(d *Driver, a string) { d.Phase = a },
		"DM_HEADER":         func(d *Driver, a string) { d.Headers = append(d.Headers, a) },
	}

	uclassAutoMembers = map[string]func(*Uclass, TypeRef){
		"priv_auto":                           func(u *Uclass, r TypeRef) { u.Priv = r },
		"per_device_auto":                     func(u *Uclass, r TypeRef) { u.PerDevPriv = r },
		"per_device_plat_auto":                func(u *Uclass, r TypeRef) { u.PerDevPlat = r },
		"per_child_auto":                      func(u *Uclass, r TypeRef) { u.PerChildPriv = r },
		"per_child_plat_auto":                 func(u *Uclass, r TypeRef) { u.PerChildPlat = r },
		"priv_auto_alloc_size":                func(u *Uclass, r TypeRef) { u.Priv = r },
		"per_device_auto_alloc_size":          func(u *Uclass, r TypeRef) { u.PerDevPriv = r },
		"per_device_platdata_auto_alloc_size": func(u *Uclass, r TypeRef) { u.PerDevPlat = r },
		"per_child_auto_alloc_size":           func(u *Uclass, r TypeRef) { u.PerChildPriv = r },
		"per_child_platdata_auto_alloc_size":  func(u *Uclass, r TypeRef) { u.PerChildPlat = r },
	}

	uclassMacros = map[string]func(*Uclass, string){
		"DM_PRIV":                func(u *Uclass, a string) { u.Priv = parseTypeRef(a) },
		"DM_PER_DEVICE_PRIV":     func(u *Uclass, a string) { u.PerDevPriv = parseTypeRef(a) },
		"DM_PER_DEVICE_PLATDATA": func(u *Uclass, a string) { u.PerDevPlat = parseTypeRef(a) },
		"DM_PER_CHILD_PRIV":      func(u *Uclass, a string) { u.PerChildPriv = parseTypeRef(a) },
		"DM_PER_CHILD_PLATDATA":  func(u *Uclass, a string) { u.PerChildPlat = parseTypeRef(a) },
	}
)

// scanner runs three small state machines over the logical lines of one
// file: compatible tables, driver blocks and uclass blocks. Only one
// block is open at a time.
type scanner struct {
	file   string
	facts  FileFacts
	tables map[string][]Compatible

	tableState scanState
	tableName  string
	tableLine  int
	tableRows  []Compatible

	driverState scanState
	driver      Driver
	ofMatch     string

	uclassState scanState
	uclass      Uclass
}

func scanSource(file, content string) (FileFacts, error) {
	s := &scanner{
		file:   file,
		facts:  FileFacts{File: file},
		tables: make(map[string][]Compatible),
	}
	for _, ln := range splitLogicalLines(content) {
		if err := s.feed(ln); err != nil {
			return FileFacts{File: file}, err
		}
	}
	if err := s.finish(); err != nil {
		return FileFacts{File: file}, err
	}
	return s.facts, nil
}

func (s *scanner) errorf(line int, format string, args ...any) error {
	return &ParseError{File: s.file, Line: line, Msg: fmt.Sprintf(format, args...)}
}

func (s *scanner) feed(ln logicalLine) error {
	switch {
	case s.driverState == stateInBlock:
		return s.feedDriver(ln)
	case s.uclassState == stateInBlock:
		return s.feedUclass(ln)
	case s.tableState == stateInBlock:
		s.feedTable(ln.Text)
		return nil
	}

	if m := matchIDTable(ln.Text); m != nil {
		s.tableState = stateInBlock
		s.tableName = m[0]
		s.tableLine = ln.Line
		s.tableRows = nil
		s.feedTable(m[1])
		return nil
	}
	if m := matchDriver(ln.Text); m != nil {
		s.driverState = stateInBlock
		s.driver = Driver{Name: m[0], File: s.file, Line: ln.Line}
		s.ofMatch = ""
		return nil
	}
	if m := matchUclass(ln.Text); m != nil {
		s.uclassState = stateInBlock
		s.uclass = Uclass{Name: m[0], File: s.file, Line: ln.Line}
		return nil
	}
	for _, pair := range matchDriverAliases(ln.Text) {
		s.facts.Aliases = append(s.facts.Aliases, DriverAlias{Driver: pair[0], Alias: pair[1], Line: ln.Line})
	}
	return nil
}

func (s *scanner) feedTable(text string) {
	s.tableRows = append(s.tableRows, matchCompatibles(text)...)
	if closesBlock(text) {
		s.tables[s.tableName] = s.tableRows
		s.tableState = stateIdle
	}
}

func (s *scanner) feedDriver(ln logicalLine) error {
	d := &s.driver
	if m := matchUclassID(ln.Text); m != nil {
		d.UclassID = m[0]
	} else if m := matchOfMatch(ln.Text); m != nil {
		s.ofMatch = m[0]
	} else if m := matchAutoSize(ln.Text); m != nil {
		if set, ok := driverAutoMembers[m[0]]; ok {
			set(d, TypeRef{Type: m[1]})
		}
	} else if m := matchDMMacro(ln.Text); m != nil {
		if set, ok := driverMacros[m[0]]; ok {
			set(d, m[1])
		}
	}
	if closesBlock(ln.Text) {
		return s.closeDriver()
	}
	return nil
}

// closeDriver keeps a driver only if it has a uclass and a non-empty
// compatible table; the table must already have been seen in this file
func (s *scanner) closeDriver() error {
	s.driverState = stateIdle
	d := s.driver
	if d.UclassID == "" {
		return nil
	}
	if s.ofMatch == "" {
		if d.Name == RootDriver {
			s.facts.Drivers = append(s.facts.Drivers, d)
		}
		return nil
	}
	rows, ok := s.tables[s.ofMatch]
	if !ok {
		return s.errorf(d.Line, "driver %s references unknown compatible table %s", d.Name, s.ofMatch)
	}
	if len(rows) == 0 {
		return nil
	}
	d.Compat = append([]Compatible(nil), rows...)
	s.facts.Drivers = append(s.facts.Drivers, d)
	return nil
}

func (s *scanner) feedUclass(ln logicalLine) error {
	u := &s.uclass
	if m := matchUclassID(ln.Text); m != nil {
		u.ID = m[0]
	} else if m := matchAutoSize(ln.Text); m != nil {
		if set, ok := uclassAutoMembers[m[0]]; ok {
			set(u, TypeRef{Type: m[1]})
		}
	} else if m := matchDMMacro(ln.Text); m != nil {
		if set, ok := uclassMacros[m[0]]; ok {
			set(u, m[1])
		}
	}
	if !closesBlock(ln.Text) {
		return nil
	}
	s.uclassState = stateIdle
	if u.ID == "" {
		return s.errorf(u.Line, "cannot parse uclass ID in uclass driver %s", u.Name)
	}
	s.facts.Uclasses = append(s.facts.Uclasses, *u)
	return nil
}

// finish rejects unterminated blocks
func (s *scanner) finish() error {
	switch {
	case s.driverState == stateInBlock:
		return s.errorf(s.driver.Line, "unterminated driver declaration %s", s.driver.Name)
	case s.uclassState == stateInBlock:
		return s.errorf(s.uclass.Line, "unterminated uclass declaration %s", s.uclass.Name)
	case s.tableState == stateInBlock:
		return s.errorf(s.tableLine, "unterminated compatible table %s", s.tableName)
	}
	return nil
}
