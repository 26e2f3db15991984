package orchestrate

import (
	"context"

	"shotty/src/fleet"
)

// Select returns the candidate instances for c. Provider errors, including an
// unknown explicit instance id, are returned unchanged.
func Select(ctx context.Context, f fleet.Fleet, c Criterion) ([]fleet.Instance, error) {
	return f.Instances(ctx, c.Selector())
}
