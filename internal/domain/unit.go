package domain

// UnitOption is one key/value line of a unit file section.
type UnitOption struct {
	Section string
	Name    string
	Value   string
}

// UnitFile is a synthesized supervisor unit ready for registration.
type UnitFile struct {
	Name    string // e.g. "hearth-app.service"
	Service string // service definition name
	Options []UnitOption
	Env     map[string]string // written to the unit's EnvironmentFile
	After   []string          // unit names this one is ordered after
}

// UnitState is the supervisor's view of a registered unit.
type UnitState struct {
	Name        string
	LoadState   string
	ActiveState string
	SubState    string
}

// Active reports whether the supervisor considers the unit running.
func (s UnitState) Active() bool {
	return s.ActiveState == "active"
}
