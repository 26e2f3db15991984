package orchestrate

import (
	"context"
	"fmt"
	"io"

	"shotty/src/fleet"
	"shotty/src/safety"
)

// PowerAction is a run-state change applied to selected instances.
type PowerAction string

const (
	PowerStop   PowerAction = "stop"
	PowerStart  PowerAction = "start"
	PowerReboot PowerAction = "reboot"
)

// PowerOutcome is the result for one instance.
type PowerOutcome struct {
	InstanceID string
	Err        error
}

// Power applies action to every selected instance without waiting for the
// new state. It is gated like a snapshot run and keeps going past
// per-instance failures.
func Power(ctx context.Context, f fleet.Fleet, c Criterion, force bool, action PowerAction, out io.Writer) ([]PowerOutcome, error) {
	if err := safety.Gate(c.Project, c.InstanceID, force); err != nil {
		return nil, err
	}
	var call func(context.Context, string) error
	var verb string
	switch action {
	case PowerStop:
		call, verb = f.StopInstance, "stopping"
	case PowerStart:
		call, verb = f.StartInstance, "starting"
	case PowerReboot:
		call, verb = f.RebootInstance, "rebooting"
	default:
		return nil, fmt.Errorf("unknown power action %q", action)
	}

	instances, err := Select(ctx, f, c)
	if err != nil {
		return nil, fmt.Errorf("selecting instances (%s): %w", c, err)
	}
	res := make([]PowerOutcome, 0, len(instances))
	for _, inst := range instances {
		if out != nil {
			fmt.Fprintf(out, "%s %s...\n", verb, inst.ID)
		}
		err := call(ctx, inst.ID)
		if err != nil && out != nil {
			fmt.Fprintf(out, " Could not %s %s: %v\n", action, inst.ID, err)
		}
		res = append(res, PowerOutcome{InstanceID: inst.ID, Err: err})
	}
	return res, nil
}
