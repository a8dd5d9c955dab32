package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumirise/lumirise/internal/alarm"
)

// definitionLoader resolves an alarm id to its current Definition. Its
// implementation — relational lookup of the persisted AlarmSchedule /
// RampProfile rows — is out of scope (spec.md §1); this type exists only so
// Execute has a documented seam for whatever process owns that lookup.
type definitionLoader func(id uuid.UUID) (alarm.Definition, bool, error)

// alarmRegistry is the consumer-facing entry point of spec.md §6.2: one
// Execute(alarmId) per alarm, backed by a per-id state machine and a
// per-id lease so concurrent invocations for the same alarm are rejected
// rather than racing the device.
type alarmRegistry struct {
	executor *alarm.Executor
	logger   *zap.SugaredLogger
	load     definitionLoader

	mu       sync.Mutex
	machines map[uuid.UUID]*alarm.Machine
	leased   map[uuid.UUID]bool
}

func newAlarmRegistry(executor *alarm.Executor, logger *zap.SugaredLogger) *alarmRegistry {
	return &alarmRegistry{
		executor: executor,
		logger:   logger,
		load:     func(uuid.UUID) (alarm.Definition, bool, error) { return alarm.Definition{}, false, nil },
		machines: make(map[uuid.UUID]*alarm.Machine),
		leased:   make(map[uuid.UUID]bool),
	}
}

// Execute loads the alarm by id and runs it end to end. It returns early,
// with no state change, if the alarm is missing or disabled. Concurrent
// invocations for the same alarmId are rejected; the scheduler is expected
// to guarantee single dispatch, and the lease here is the second line of
// defense spec.md §6.2 allows for.
func (r *alarmRegistry) Execute(ctx context.Context, alarmID uuid.UUID) error {
	def, found, err := r.load(alarmID)
	if err != nil {
		return fmt.Errorf("load alarm %s: %w", alarmID, err)
	}
	if !found || !def.Enabled {
		return nil
	}

	r.mu.Lock()
	if r.leased[alarmID] {
		r.mu.Unlock()
		return fmt.Errorf("alarm %s is already executing", alarmID)
	}
	r.leased[alarmID] = true
	machine, ok := r.machines[alarmID]
	if !ok {
		machine = alarm.NewMachine(alarmID.String(), r.logger)
		r.machines[alarmID] = machine
	}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.leased, alarmID)
		r.mu.Unlock()
	}()

	switch machine.CurrentState() {
	case alarm.StateCompleted, alarm.StateInterrupted, alarm.StateFailed:
		if _, err := machine.Fire(alarm.TriggerReset, ""); err != nil {
			return fmt.Errorf("reset alarm %s for re-run: %w", alarmID, err)
		}
	}

	if _, err := machine.Fire(alarm.TriggerSchedulerTrigger, ""); err != nil {
		return fmt.Errorf("fire SchedulerTrigger for alarm %s: %w", alarmID, err)
	}
	if _, err := machine.Fire(alarm.TriggerStart, ""); err != nil {
		return fmt.Errorf("fire Start for alarm %s: %w", alarmID, err)
	}

	return r.executor.Execute(ctx, def, machine)
}
