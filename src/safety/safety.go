package safety

import "errors"

// ErrSelectionRequired is returned when a mutating command names neither a
// project nor an instance and --force was not given.
var ErrSelectionRequired = errors.New("this command requires a project name or an instance id; use --force to act on every instance")

// Options are the global safety flags.
type Options struct {
	// DryRun reports planned actions without making changes.
	DryRun bool
	// Force allows acting on every instance when no selection is given.
	Force bool
}

// Gate decides whether a fleet-wide mutation may proceed. It never touches the
// provider, so a refused run makes no calls at all.
func Gate(project, instanceID string, force bool) error {
	if project != "" || instanceID != "" || force {
		return nil
	}
	return ErrSelectionRequired
}
