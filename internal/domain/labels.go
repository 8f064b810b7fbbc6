package domain

// Names and label keys used by hearth for host objects it manages.
const (
	// UnitPrefix prefixes every supervisor unit hearth generates.
	UnitPrefix = "hearth-"

	// LabelManaged marks networks and containers hearth created.
	LabelManaged = "hearth.managed"
)
