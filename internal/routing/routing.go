// Package routing implements the routing planner: it walks
// the global execution order assigning monotonically increasing slot
// indices, deciding per input whether a consumer may mutate its stream in
// place or needs a private copy because a later consumer still needs the
// pre-mutation data.
package routing

import (
	"fmt"
	"sort"

	buildErrors "github.com/inivation/caer-mainloop/pkg/errors"
	"github.com/inivation/caer-mainloop/pkg/types"
)

// tapKey is the working index's key: a stream tapped at a specific point.
// afterModuleId == AnyID means the original producer.
type tapKey struct {
	sourceID      int16
	typeID        int16
	afterModuleID int16
}

// Plan assigns OutputSlots and InputSlots on every instance in order and
// returns the total slot count. order must already be a validated total
// order over every key of instances (internal/depgraph's output).
func Plan(order []int16, instances map[int16]*types.ModuleInstance, active map[types.StreamKey]*types.ActiveStream) (int, error) {
	working := make(map[tapKey]int)
	nextSlot := 0
	alloc := func() int {
		s := nextSlot
		nextSlot++
		return s
	}

	for _, id := range order {
		inst := instances[id]
		if inst == nil {
			return 0, buildErrors.NewCritical(buildErrors.CodeInternalInconsistency, "routing", "Plan",
				fmt.Sprintf("execution order references unknown module %d", id))
		}

		assignOutputSlots(inst, active, working, alloc)

		if err := assignInputSlots(inst, active, working, alloc); err != nil {
			return 0, err
		}
	}

	return nextSlot, nil
}

func assignOutputSlots(inst *types.ModuleInstance, active map[types.StreamKey]*types.ActiveStream, working map[tapKey]int, alloc func() int) {
	if inst.Kind == types.KindOutput {
		return
	}
	inst.OutputSlots = make(map[int16]int)
	for _, t := range inst.ParsedOutputTypes {
		key := types.StreamKey{SourceID: inst.ID, TypeID: t}
		if _, ok := active[key]; !ok {
			continue
		}
		slot := alloc()
		inst.OutputSlots[t] = slot
		working[tapKey{sourceID: inst.ID, typeID: t, afterModuleID: types.AnyID}] = slot
	}
}

func assignInputSlots(inst *types.ModuleInstance, active map[types.StreamKey]*types.ActiveStream, working map[tapKey]int, alloc func() int) error {
	if inst.Kind == types.KindInput {
		return nil
	}
	for _, srcID := range sortedSourceKeys(inst.ParsedInputWiring) {
		for _, in := range inst.ParsedInputWiring[srcID] {
			slot, err := resolveInputSlot(inst.ID, srcID, in, active, working, alloc)
			if err != nil {
				return err
			}
			inst.InputSlots = append(inst.InputSlots, slot)
		}
	}
	return nil
}

// resolveInputSlot implements the per-input half of the
// algorithm. A consumer that may mutate its input (CopyNeeded) always
// registers a fresh tap point under its own module ID once it has run,
// pointing wherever the (possibly copied) data now lives, so any later
// consumer tapping "after me" finds the right slot. A read-only consumer
// never registers a new tap point: it cannot have changed anything.
func resolveInputSlot(consumerID, sourceID int16, in types.OrderedInput, active map[types.StreamKey]*types.ActiveStream, working map[tapKey]int, alloc func() int) (types.InputSlot, error) {
	key := tapKey{sourceID: sourceID, typeID: in.TypeID, afterModuleID: in.AfterModuleID}
	oldSlot, ok := working[key]
	if !ok {
		return types.InputSlot{}, buildErrors.NewCritical(buildErrors.CodeInternalInconsistency, "routing", "resolveInputSlot",
			fmt.Sprintf("no working slot for (source=%d, type=%d, after=%d)", sourceID, in.TypeID, in.AfterModuleID)).
			WithMetadata("consumerId", consumerID)
	}

	if !in.CopyNeeded {
		return types.InputSlot{SourceID: sourceID, TypeID: in.TypeID, AfterModuleID: in.AfterModuleID, SlotIndex: oldSlot, CopyFrom: -1}, nil
	}

	stream := active[types.StreamKey{SourceID: sourceID, TypeID: in.TypeID}]
	slot := oldSlot
	copyFrom := -1
	if hasLaterSameTap(stream, consumerID, in.AfterModuleID) {
		slot = alloc()
		copyFrom = oldSlot
	}
	working[tapKey{sourceID: sourceID, typeID: in.TypeID, afterModuleID: consumerID}] = slot

	return types.InputSlot{SourceID: sourceID, TypeID: in.TypeID, AfterModuleID: in.AfterModuleID, SlotIndex: slot, CopyFrom: copyFrom}, nil
}

// hasLaterSameTap reports whether some consumer after consumerID in the
// stream's ordered user list taps the stream at the same afterModuleId.
// stream.Taps must already be in global execution order (internal/depgraph.Order
// rewrites it from parse order before Plan runs) so "later" here means
// "runs later", not "has a higher module ID".
func hasLaterSameTap(stream *types.ActiveStream, consumerID, afterModuleID int16) bool {
	if stream == nil {
		return false
	}
	idx := -1
	for i, t := range stream.Taps {
		if t.ModuleID == consumerID && t.AfterModuleID == afterModuleID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false
	}
	for _, t := range stream.Taps[idx+1:] {
		if t.AfterModuleID == afterModuleID {
			return true
		}
	}
	return false
}

func sortedSourceKeys(m map[int16][]types.OrderedInput) []int16 {
	ids := make([]int16, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
