// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mitigation

import (
	"sync"

	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/errors"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/internal/container"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/pipeline"
)

type (
	// StateQuerier resolves the current valve state for a sector. A failed
	// query must abort any decision that depends on current state.
	StateQuerier interface {
		ValveState(sectorID string) (pipeline.ValveState, error)
	}

	// ValveStore tracks the controller's view of each sector valve and
	// serializes mutating decisions per sector: at most one in-flight
	// mutating command per valve, whether cycle-triggered or API-triggered.
	ValveStore struct {
		valves container.SyncMap[string, *valve]
	}

	valve struct {
		// Held across the query-decide-publish sequence of one decision.
		mu    sync.Mutex
		state pipeline.ValveState
	}
)

// NewValveStore creates an empty valve store.
func NewValveStore() *ValveStore {
	return &ValveStore{valves: container.NewSyncMap[string, *valve]()}
}

// Observe records an externally observed valve state, such as a registration
// or a status echo. It does not count as a controller action.
func (s *ValveStore) Observe(state pipeline.ValveState) {
	v := s.valve(state.SectorID)
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state = state
}

// ValveState returns the current view of a sector valve. A valve that has
// never been observed is unknown, which is an error for decision purposes.
func (s *ValveStore) ValveState(sectorID string) (pipeline.ValveState, error) {
	v, ok := s.valves.Load(sectorID)
	if !ok {
		return pipeline.ValveState{}, &errors.Error{
			Kind:     errors.StateUnknown,
			Message:  "valve state has not been observed",
			SectorID: sectorID,
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state.State == pipeline.ValveUnknown {
		return pipeline.ValveState{}, &errors.Error{
			Kind:     errors.StateUnknown,
			Message:  "valve state has not been observed",
			SectorID: sectorID,
		}
	}
	return v.state, nil
}

// valve returns the entry for a sector, creating it if needed.
func (s *ValveStore) valve(sectorID string) *valve {
	v, _ := s.valves.LoadOrStore(sectorID, &valve{
		state: pipeline.ValveState{SectorID: sectorID},
	})
	return v
}
