package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenUnitSync/internal/provisioning/executor"
	"github.com/KevinKickass/OpenUnitSync/internal/provisioning/plan"
	"github.com/KevinKickass/OpenUnitSync/internal/provisioning/resolver"
	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

// execution is the mutable state of one Execute call.
type execution struct {
	engine    *Engine
	run       *Run
	builder   *types.ReportBuilder
	links     map[string]executor.Link
	dialErr   map[string]error
	resolvers map[uuid.UUID]*resolver.Resolver
	progress  tracker
	opWeight  float64
	// sendable holds the pairs whose delete succeeded.
	sendable map[string]bool
}

// computeWeights splits what the profile plan leaves of 100 evenly over
// the delete and send operations.
func (x *execution) computeWeights() {
	headroom := 100
	if x.run.plan != nil {
		headroom -= x.run.plan.Weight()
	}
	ops := 2 * len(x.run.units) * len(x.run.categories)
	if ops > 0 {
		x.opWeight = float64(headroom) / float64(ops)
	}
	x.sendable = make(map[string]bool)
}

func (x *execution) advance(weight float64, operation string) {
	x.engine.publish(x.run, x.progress.advance(weight), operation)
}

func (x *execution) record(res types.OperationResult) {
	x.builder.Add(res)
	if !res.Success {
		x.engine.logger.Warn("Operation failed",
			zap.String("run_id", x.run.ID.String()),
			zap.String("unit", res.UnitLabel),
			zap.String("category", res.Category),
			zap.String("operation", res.Operation),
			zap.String("message", res.Message))
	}
}

// link dials a unit once per run. A failed dial is remembered.
func (x *execution) link(ctx context.Context, unit types.NetworkUnit) (executor.Link, error) {
	key := unit.Key()
	if l, ok := x.links[key]; ok {
		return l, nil
	}
	if err, ok := x.dialErr[key]; ok {
		return nil, err
	}

	l, err := x.engine.dialer.Dial(ctx, unit)
	if err != nil {
		x.dialErr[key] = err
		return nil, err
	}
	x.links[key] = l
	return l, nil
}

func (x *execution) closeLinks() {
	for key, l := range x.links {
		if err := l.Close(); err != nil {
			x.engine.logger.Debug("Failed to close unit link", zap.String("unit", key), zap.Error(err))
		}
	}
}

func (x *execution) resolverFor(projectID uuid.UUID) executor.AddressResolver {
	r, ok := x.resolvers[projectID]
	if !ok {
		r = resolver.New(x.engine.items, projectID, resolver.NewAddressCache(), nil, x.engine.logger)
		x.resolvers[projectID] = r
	}
	return r
}

// writeProfile executes the plan against the single target. Every step is
// attempted and reported.
func (x *execution) writeProfile(ctx context.Context) {
	u := x.run.units[0]
	label := u.unit.Label()

	l, err := x.link(ctx, u.unit)
	if err != nil {
		x.record(types.OperationResult{
			UnitLabel: label,
			Category:  plan.ProfileCategory,
			Operation: types.OpConnect,
			Message:   err.Error(),
		})
		x.advance(float64(x.run.plan.Weight()), "Connection failed")
		return
	}

	for _, step := range x.run.plan.Steps {
		x.engine.publish(x.run, x.progress.percent, fmt.Sprintf("%s: %s", label, step.Label))

		count, err := x.engine.executor.Execute(ctx, l, step, x.resolverFor(u.profile.ProjectID))
		res := types.OperationResult{
			UnitLabel: label,
			Category:  step.CategoryName(),
			Operation: step.Kind.String(),
			Success:   err == nil,
			ItemCount: count,
		}
		if err != nil {
			res.Message = err.Error()
		} else if value, ok := step.Payload.(string); ok {
			x.run.applyIdentity(step.Kind, value)
		}
		x.record(res)
		x.advance(float64(step.Weight), step.Label)
	}
}

// deletePhase removes every selected category from every unit. A failed
// delete is reported and its pair is not sent.
func (x *execution) deletePhase(ctx context.Context) {
	for _, u := range x.run.units {
		label := u.unit.Label()
		l, dialErr := x.link(ctx, u.unit)

		for _, c := range x.run.categories {
			x.run.setPair(u.unit, c, types.PairDeleting)
			x.engine.publish(x.run, x.progress.percent, fmt.Sprintf("%s: deleting %s", label, c))

			err := dialErr
			if err == nil {
				_, err = x.engine.executor.Execute(ctx, l, plan.DeleteStep(c, 0), nil)
			}

			if err != nil {
				x.record(types.OperationResult{
					UnitLabel: label,
					Category:  c.String(),
					Operation: types.OpDelete,
					Message:   err.Error(),
				})
				x.run.setPair(u.unit, c, types.PairDone)
			} else {
				x.sendable[pairKey(u.unit, c)] = true
			}

			x.advance(x.opWeight, fmt.Sprintf("%s: deleted %s", label, c))
		}
	}
}

// sendPhase sends fresh records for every pair whose delete succeeded.
func (x *execution) sendPhase(ctx context.Context) {
	for _, u := range x.run.units {
		label := u.unit.Label()

		for _, c := range x.run.categories {
			if !x.sendable[pairKey(u.unit, c)] {
				x.advance(x.opWeight, fmt.Sprintf("%s: skipped %s", label, c))
				continue
			}

			x.run.setPair(u.unit, c, types.PairSending)
			records := u.profile.Records(c)
			x.engine.publish(x.run, x.progress.percent, fmt.Sprintf("%s: sending %d %s", label, len(records), c))

			l, err := x.link(ctx, u.unit)
			count := 0
			if err == nil {
				count, err = x.engine.executor.Execute(ctx, l, plan.SendStep(c, records, 0), x.resolverFor(u.profile.ProjectID))
			}

			res := types.OperationResult{
				UnitLabel: label,
				Category:  c.String(),
				Operation: types.OpSend,
				Success:   err == nil,
				ItemCount: count,
			}
			if err != nil {
				res.Message = err.Error()
			}
			x.record(res)
			x.run.setPair(u.unit, c, types.PairDone)

			x.advance(x.opWeight, fmt.Sprintf("%s: sent %s", label, c))
		}
	}
}
