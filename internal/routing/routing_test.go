package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inivation/caer-mainloop/pkg/types"
)

// TestPlanLinearPipeline reproduces the exact slot table from
// scenario 1: cam(1) outputs 0,1; filter(2) consumes both writable with no
// outputs; display(3) consumes both read-only.
func TestPlanLinearPipeline(t *testing.T) {
	instances := map[int16]*types.ModuleInstance{
		1: {ID: 1, Kind: types.KindInput, ParsedOutputTypes: []int16{0, 1}},
		2: {ID: 2, Kind: types.KindProcessor,
			ParsedInputWiring: map[int16][]types.OrderedInput{
				1: {{TypeID: 0, AfterModuleID: -1, CopyNeeded: true}, {TypeID: 1, AfterModuleID: -1, CopyNeeded: true}},
			}},
		3: {ID: 3, Kind: types.KindOutput,
			ParsedInputWiring: map[int16][]types.OrderedInput{
				1: {{TypeID: 0, AfterModuleID: -1, CopyNeeded: false}, {TypeID: 1, AfterModuleID: -1, CopyNeeded: false}},
			}},
	}
	active := map[types.StreamKey]*types.ActiveStream{
		{SourceID: 1, TypeID: 0}: {SourceID: 1, TypeID: 0, Users: []int16{2, 3}, Taps: []types.StreamTap{{ModuleID: 2, AfterModuleID: -1}, {ModuleID: 3, AfterModuleID: -1}}},
		{SourceID: 1, TypeID: 1}: {SourceID: 1, TypeID: 1, Users: []int16{2, 3}, Taps: []types.StreamTap{{ModuleID: 2, AfterModuleID: -1}, {ModuleID: 3, AfterModuleID: -1}}},
	}

	slotCount, err := Plan([]int16{1, 2, 3}, instances, active)
	require.NoError(t, err)

	assert.Equal(t, map[int16]int{0: 0, 1: 1}, instances[1].OutputSlots)

	filterIn := instances[2].InputSlots
	require.Len(t, filterIn, 2)
	assert.Equal(t, types.InputSlot{SourceID: 1, TypeID: 0, AfterModuleID: -1, SlotIndex: 2, CopyFrom: 0}, filterIn[0])
	assert.Equal(t, types.InputSlot{SourceID: 1, TypeID: 1, AfterModuleID: -1, SlotIndex: 3, CopyFrom: 1}, filterIn[1])

	displayIn := instances[3].InputSlots
	require.Len(t, displayIn, 2)
	assert.Equal(t, types.InputSlot{SourceID: 1, TypeID: 0, AfterModuleID: -1, SlotIndex: 0, CopyFrom: -1}, displayIn[0])
	assert.Equal(t, types.InputSlot{SourceID: 1, TypeID: 1, AfterModuleID: -1, SlotIndex: 1, CopyFrom: -1}, displayIn[1])

	assert.Equal(t, 4, slotCount)
}

// TestPlanTapPoint reproduces the tap-point scenario: sinkAfter(4) taps
// stream (1,0) after filter(2), read-only.
func TestPlanTapPoint(t *testing.T) {
	instances := map[int16]*types.ModuleInstance{
		1: {ID: 1, Kind: types.KindInput, ParsedOutputTypes: []int16{0, 1}},
		2: {ID: 2, Kind: types.KindProcessor,
			ParsedInputWiring: map[int16][]types.OrderedInput{
				1: {{TypeID: 0, AfterModuleID: -1, CopyNeeded: true}, {TypeID: 1, AfterModuleID: -1, CopyNeeded: true}},
			}},
		3: {ID: 3, Kind: types.KindOutput,
			ParsedInputWiring: map[int16][]types.OrderedInput{
				1: {{TypeID: 0, AfterModuleID: -1, CopyNeeded: false}, {TypeID: 1, AfterModuleID: -1, CopyNeeded: false}},
			}},
		4: {ID: 4, Kind: types.KindOutput,
			ParsedInputWiring: map[int16][]types.OrderedInput{
				1: {{TypeID: 0, AfterModuleID: 2, CopyNeeded: false}},
			}},
	}
	active := map[types.StreamKey]*types.ActiveStream{
		{SourceID: 1, TypeID: 0}: {SourceID: 1, TypeID: 0, Users: []int16{2, 3, 4},
			Taps: []types.StreamTap{{ModuleID: 2, AfterModuleID: -1}, {ModuleID: 3, AfterModuleID: -1}, {ModuleID: 4, AfterModuleID: 2}}},
		{SourceID: 1, TypeID: 1}: {SourceID: 1, TypeID: 1, Users: []int16{2, 3},
			Taps: []types.StreamTap{{ModuleID: 2, AfterModuleID: -1}, {ModuleID: 3, AfterModuleID: -1}}},
	}

	_, err := Plan([]int16{1, 2, 3, 4}, instances, active)
	require.NoError(t, err)

	filterIn := instances[2].InputSlots
	require.Len(t, filterIn, 2)
	assert.Equal(t, 0, filterIn[0].CopyFrom, "filter still copies: sink reads (1,0,-1) after it")
	newSlot := filterIn[0].SlotIndex

	sinkAfterIn := instances[4].InputSlots
	require.Len(t, sinkAfterIn, 1)
	assert.Equal(t, newSlot, sinkAfterIn[0].SlotIndex, "sinkAfter reads filter's mutated copy")
	assert.Equal(t, -1, sinkAfterIn[0].CopyFrom, "sinkAfter is read-only, no further copy")
}

// TestPlanReadOnlyConsumerNoNewTapPoint checks that a read-only input never
// registers a new mutation tap point: a second read-only consumer of the
// same tap must see the original slot.
func TestPlanReadOnlyConsumerNoNewTapPoint(t *testing.T) {
	instances := map[int16]*types.ModuleInstance{
		1: {ID: 1, Kind: types.KindInput, ParsedOutputTypes: []int16{0}},
		2: {ID: 2, Kind: types.KindOutput,
			ParsedInputWiring: map[int16][]types.OrderedInput{1: {{TypeID: 0, AfterModuleID: -1, CopyNeeded: false}}}},
		3: {ID: 3, Kind: types.KindOutput,
			ParsedInputWiring: map[int16][]types.OrderedInput{1: {{TypeID: 0, AfterModuleID: -1, CopyNeeded: false}}}},
	}
	active := map[types.StreamKey]*types.ActiveStream{
		{SourceID: 1, TypeID: 0}: {SourceID: 1, TypeID: 0, Users: []int16{2, 3},
			Taps: []types.StreamTap{{ModuleID: 2, AfterModuleID: -1}, {ModuleID: 3, AfterModuleID: -1}}},
	}

	slotCount, err := Plan([]int16{1, 2, 3}, instances, active)
	require.NoError(t, err)
	assert.Equal(t, 1, slotCount)
	assert.Equal(t, instances[2].InputSlots[0].SlotIndex, instances[3].InputSlots[0].SlotIndex)
}

// TestPlanInternalInconsistencyOnMissingWorkingSlot exercises the defensive
// failure path: a consumer referencing a tap point that was never produced.
func TestPlanInternalInconsistencyOnMissingWorkingSlot(t *testing.T) {
	instances := map[int16]*types.ModuleInstance{
		1: {ID: 1, Kind: types.KindInput, ParsedOutputTypes: []int16{0}},
		2: {ID: 2, Kind: types.KindOutput,
			ParsedInputWiring: map[int16][]types.OrderedInput{1: {{TypeID: 0, AfterModuleID: 99, CopyNeeded: false}}}},
	}
	active := map[types.StreamKey]*types.ActiveStream{
		{SourceID: 1, TypeID: 0}: {SourceID: 1, TypeID: 0, Users: []int16{2}, Taps: []types.StreamTap{{ModuleID: 2, AfterModuleID: 99}}},
	}

	_, err := Plan([]int16{1, 2}, instances, active)
	require.Error(t, err)
}
