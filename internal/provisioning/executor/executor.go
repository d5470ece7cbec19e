package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenUnitSync/internal/protocol"
	"github.com/KevinKickass/OpenUnitSync/internal/provisioning/batch"
	"github.com/KevinKickass/OpenUnitSync/internal/provisioning/plan"
	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

// Link is the command channel to one unit.
type Link interface {
	SetHardwareMode(ctx context.Context, mode types.UnitMode) error
	SetIOBatch(ctx context.Context, group types.IOGroup, batch []types.IOConfig) error
	SetRS485Channel(ctx context.Context, index int, cfg types.RS485Channel) error
	ChangeIP(ctx context.Context, ip string) error
	ChangeCanID(ctx context.Context, canID string) error
	DeleteCategory(ctx context.Context, c types.ConfigCategory) error
	SendCategory(ctx context.Context, c types.ConfigCategory, record protocol.WireRecord) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, unit types.NetworkUnit) (Link, error)
}

// AddressResolver maps device references to wire addresses.
type AddressResolver interface {
	Resolve(ctx context.Context, ref types.DeviceRef) (uint16, error)
}

type Config struct {
	Pacing          time.Duration
	IOBatchMaxBytes int
}

// StepExecutor runs single plan steps against a unit link.
type StepExecutor struct {
	config Config
	logger *zap.Logger
}

func NewStepExecutor(config Config, logger *zap.Logger) *StepExecutor {
	return &StepExecutor{
		config: config,
		logger: logger,
	}
}

// Execute runs step and returns the number of items written.
func (e *StepExecutor) Execute(ctx context.Context, link Link, step plan.Step, resolver AddressResolver) (int, error) {
	switch step.Kind {
	case plan.StepHardwareMode:
		return e.executeHardwareMode(ctx, link, step)
	case plan.StepIOConfig:
		return e.executeIOConfig(ctx, link, step)
	case plan.StepRS485:
		return e.executeRS485(ctx, link, step)
	case plan.StepIPChange:
		return e.executeIdentity(ctx, step, link.ChangeIP)
	case plan.StepCanIDChange:
		return e.executeIdentity(ctx, step, link.ChangeCanID)
	case plan.StepDeleteCategory:
		return 0, link.DeleteCategory(ctx, step.Category)
	case plan.StepSendCategory:
		return e.executeSendCategory(ctx, link, step, resolver)
	default:
		return 0, fmt.Errorf("unsupported step kind: %s", step.Kind)
	}
}

func (e *StepExecutor) executeHardwareMode(ctx context.Context, link Link, step plan.Step) (int, error) {
	mode, ok := step.Payload.(types.UnitMode)
	if !ok {
		return 0, fmt.Errorf("invalid hardware mode payload %T", step.Payload)
	}
	if err := link.SetHardwareMode(ctx, mode); err != nil {
		return 0, err
	}
	return 1, nil
}

func (e *StepExecutor) executeIOConfig(ctx context.Context, link Link, step plan.Step) (int, error) {
	io, ok := step.Payload.(plan.IOPayload)
	if !ok {
		return 0, fmt.Errorf("invalid I/O payload %T", step.Payload)
	}

	groups := []struct {
		group   types.IOGroup
		configs []types.IOConfig
	}{
		{types.IOGroupInputs, io.Inputs},
		{types.IOGroupOutputs, io.Outputs},
		{types.IOGroupAircon, io.Aircon},
	}

	written := 0
	var errs []error
	first := true

	for _, g := range groups {
		if len(g.configs) == 0 {
			continue
		}

		chunks, err := batch.SplitCBORArray(g.configs, e.config.IOBatchMaxBytes)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", g.group, err))
			continue
		}

		if !first {
			if err := batch.Sleep(ctx, e.config.Pacing); err != nil {
				return written, err
			}
		}
		first = false

		group := g.group
		res := batch.Send(ctx, chunks, e.config.Pacing, func(ctx context.Context, chunk []types.IOConfig) error {
			return link.SetIOBatch(ctx, group, chunk)
		})
		written += res.Records

		e.logger.Debug("I/O batch written",
			zap.String("group", group.String()),
			zap.Int("chunks", res.Chunks),
			zap.Int("sent", res.Sent))

		if err := res.Err(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", group, err))
		}
	}

	return written, errors.Join(errs...)
}

func (e *StepExecutor) executeRS485(ctx context.Context, link Link, step plan.Step) (int, error) {
	channels, ok := step.Payload.([]types.RS485Channel)
	if !ok {
		return 0, fmt.Errorf("invalid RS485 payload %T", step.Payload)
	}

	written := 0
	var errs []error
	for i, ch := range channels {
		if i > 0 {
			if err := batch.Sleep(ctx, e.config.Pacing); err != nil {
				return written, err
			}
		}
		if err := link.SetRS485Channel(ctx, ch.Index, ch); err != nil {
			errs = append(errs, fmt.Errorf("channel %d: %w", ch.Index, err))
			continue
		}
		written++
	}

	return written, errors.Join(errs...)
}

func (e *StepExecutor) executeIdentity(ctx context.Context, step plan.Step, change func(context.Context, string) error) (int, error) {
	value, ok := step.Payload.(string)
	if !ok {
		return 0, fmt.Errorf("invalid %s payload %T", step.Kind, step.Payload)
	}
	if err := change(ctx, value); err != nil {
		return 0, err
	}
	return 1, nil
}

// executeSendCategory sends every record. A failing record does not stop
// the remaining ones; the step fails if any record failed.
func (e *StepExecutor) executeSendCategory(ctx context.Context, link Link, step plan.Step, resolver AddressResolver) (int, error) {
	records, ok := step.Payload.([]types.CategoryRecord)
	if !ok {
		return 0, fmt.Errorf("invalid %s payload %T", step.Category, step.Payload)
	}

	sent := 0
	var errs []error
	for i, record := range records {
		if i > 0 {
			if err := batch.Sleep(ctx, e.config.Pacing); err != nil {
				return sent, err
			}
		}

		wire, err := e.wireRecord(ctx, record, resolver)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", record.Index, err))
			continue
		}

		if err := link.SendCategory(ctx, step.Category, wire); err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", record.Index, err))
			continue
		}
		sent++
	}

	return sent, errors.Join(errs...)
}

func (e *StepExecutor) wireRecord(ctx context.Context, record types.CategoryRecord, resolver AddressResolver) (protocol.WireRecord, error) {
	wire := protocol.WireRecord{
		Index: record.Index,
		Name:  record.Name,
		Data:  record.Data,
	}

	for _, ref := range record.Devices {
		if resolver == nil {
			return wire, fmt.Errorf("no resolver for device %s", ref.LogicalID)
		}
		addr, err := resolver.Resolve(ctx, ref)
		if err != nil {
			return wire, fmt.Errorf("resolve %s: %w", ref.LogicalID, err)
		}
		wire.Devices = append(wire.Devices, protocol.WireDevice{Kind: string(ref.Kind), Address: addr})
	}

	return wire, nil
}
