package orchestrate

import "shotty/src/fleet"

// Criterion selects the instances a run operates on. InstanceID takes
// precedence over Project; when both are empty every instance is selected.
type Criterion struct {
	InstanceID string
	Project    string
}

// Selector converts the criterion into a provider listing filter.
func (c Criterion) Selector() fleet.Selector {
	switch {
	case c.InstanceID != "":
		return fleet.Selector{InstanceIDs: []string{c.InstanceID}}
	case c.Project != "":
		return fleet.Selector{Tags: map[string]string{fleet.ProjectTag: c.Project}}
	default:
		return fleet.Selector{}
	}
}

// All reports whether the criterion selects every instance.
func (c Criterion) All() bool {
	return c.InstanceID == "" && c.Project == ""
}

func (c Criterion) String() string {
	switch {
	case c.InstanceID != "":
		return "instance=" + c.InstanceID
	case c.Project != "":
		return "project=" + c.Project
	default:
		return "all"
	}
}
