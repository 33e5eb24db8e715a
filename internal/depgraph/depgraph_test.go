package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	buildErrors "github.com/inivation/caer-mainloop/pkg/errors"
	"github.com/inivation/caer-mainloop/pkg/types"
)

func instanceSet(ids ...int16) map[int16]*types.ModuleInstance {
	m := make(map[int16]*types.ModuleInstance, len(ids))
	for _, id := range ids {
		m[id] = &types.ModuleInstance{ID: id}
	}
	return m
}

func streamWithUsers(sourceID, typeID int16, taps ...types.StreamTap) *types.ActiveStream {
	s := &types.ActiveStream{SourceID: sourceID, TypeID: typeID, Taps: taps}
	for _, t := range taps {
		s.Users = append(s.Users, t.ModuleID)
	}
	return s
}

func tap(moduleID, afterModuleID int16) types.StreamTap {
	return types.StreamTap{ModuleID: moduleID, AfterModuleID: afterModuleID}
}

// TestOrderLinearPipeline reproduces the linear-pipeline scenario: cam(1) -> filter(2)
// -> display(3), both filter and display tapping the raw producer output.
func TestOrderLinearPipeline(t *testing.T) {
	active := map[types.StreamKey]*types.ActiveStream{
		{SourceID: 1, TypeID: 0}: streamWithUsers(1, 0, tap(2, -1), tap(3, -1)),
		{SourceID: 1, TypeID: 1}: streamWithUsers(1, 1, tap(2, -1), tap(3, -1)),
	}

	order, err := Order(instanceSet(1, 2, 3), active)
	require.NoError(t, err)
	assert.Equal(t, []int16{1, 2, 3}, order)
}

// TestOrderTapPoint reproduces the tap-point scenario: sinkAfter(4) taps
// stream (1,0) after filter(2) has modified it.
func TestOrderTapPoint(t *testing.T) {
	active := map[types.StreamKey]*types.ActiveStream{
		{SourceID: 1, TypeID: 0}: streamWithUsers(1, 0, tap(2, -1), tap(3, -1), tap(4, 2)),
		{SourceID: 1, TypeID: 1}: streamWithUsers(1, 1, tap(2, -1), tap(3, -1)),
	}

	order, err := Order(instanceSet(1, 2, 3, 4), active)
	require.NoError(t, err)
	assert.Equal(t, []int16{1, 2, 3, 4}, order, "3 (depth 2) must precede 4 (depth 3) since they are not siblings")
}

// TestOrderCrossStreamCycle reproduces the cross-stream-cycle scenario: two processors
// each depend on the other's output via a different stream.
func TestOrderCrossStreamCycle(t *testing.T) {
	active := map[types.StreamKey]*types.ActiveStream{
		{SourceID: 1, TypeID: 10}: streamWithUsers(1, 10, tap(2, -1)),
		{SourceID: 2, TypeID: 20}: streamWithUsers(2, 20, tap(1, -1)),
	}

	_, err := Order(instanceSet(1, 2), active)
	require.Error(t, err)
	be, ok := buildErrors.AsBuildError(err)
	require.True(t, ok)
	assert.Equal(t, buildErrors.CodeCrossStreamCycle, be.Code)
}

// TestOrderIntraStreamCycleSourceInOwnUsers covers the simplest form of
// the intra-stream-cycle scenario: a stream's source module appears among its own
// users, which can never be placed in a tree rooted at that same source.
func TestOrderIntraStreamCycleSourceInOwnUsers(t *testing.T) {
	active := map[types.StreamKey]*types.ActiveStream{
		{SourceID: 1, TypeID: 0}: streamWithUsers(1, 0, tap(1, -1)),
	}

	_, err := Order(instanceSet(1), active)
	require.Error(t, err)
	be, ok := buildErrors.AsBuildError(err)
	require.True(t, ok)
	assert.Equal(t, buildErrors.CodeIntraStreamCycle, be.Code)
}

// TestOrderIntraStreamCycleDuplicateUser covers the other per-stream cycle
// rule: no module ID may appear twice among a stream's users.
func TestOrderIntraStreamCycleDuplicateUser(t *testing.T) {
	active := map[types.StreamKey]*types.ActiveStream{
		{SourceID: 1, TypeID: 0}: streamWithUsers(1, 0, tap(2, -1), tap(2, 3), tap(3, -1)),
	}

	_, err := Order(instanceSet(1, 2, 3), active)
	require.Error(t, err)
	be, ok := buildErrors.AsBuildError(err)
	require.True(t, ok)
	assert.Equal(t, buildErrors.CodeIntraStreamCycle, be.Code)
}

// TestOrderUnresolvableAfterModuleReference covers a tap point whose
// afterModuleId never resolves to any module in the same stream's users,
// which would otherwise spin forever trying to place it.
func TestOrderUnresolvableAfterModuleReference(t *testing.T) {
	active := map[types.StreamKey]*types.ActiveStream{
		{SourceID: 1, TypeID: 0}: streamWithUsers(1, 0, tap(2, 99)),
	}

	_, err := Order(instanceSet(1, 2), active)
	require.Error(t, err)
	be, ok := buildErrors.AsBuildError(err)
	require.True(t, ok)
	assert.Equal(t, buildErrors.CodeIntraStreamCycle, be.Code)
}

// TestOrderIsTotalAndDependencySound checks the two universal invariants
// against a slightly larger graph with a shared consumer
// across multiple streams.
func TestOrderIsTotalAndDependencySound(t *testing.T) {
	active := map[types.StreamKey]*types.ActiveStream{
		{SourceID: 1, TypeID: 0}: streamWithUsers(1, 0, tap(3, -1)),
		{SourceID: 2, TypeID: 0}: streamWithUsers(2, 0, tap(3, -1), tap(4, -1)),
		{SourceID: 3, TypeID: 1}: streamWithUsers(3, 1, tap(4, -1)),
	}
	instances := instanceSet(1, 2, 3, 4)

	order, err := Order(instances, active)
	require.NoError(t, err)

	assert.Len(t, order, len(instances), "order totality: every module exactly once")
	seen := make(map[int16]bool)
	for _, id := range order {
		assert.False(t, seen[id], "module %d appeared twice", id)
		seen[id] = true
	}

	pos := make(map[int16]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos[1], pos[3], "1 produces what 3 consumes")
	assert.Less(t, pos[2], pos[3], "2 produces what 3 consumes")
	assert.Less(t, pos[2], pos[4], "2 produces what 4 consumes")
	assert.Less(t, pos[3], pos[4], "3 produces what 4 consumes")
}

// TestOrderDeterministicAcrossRebuilds checks the idempotence property from
// rebuilding from the same input yields byte-identical order.
func TestOrderDeterministicAcrossRebuilds(t *testing.T) {
	build := func() []int16 {
		active := map[types.StreamKey]*types.ActiveStream{
			{SourceID: 1, TypeID: 0}: streamWithUsers(1, 0, tap(2, -1), tap(3, -1), tap(4, 2)),
			{SourceID: 1, TypeID: 1}: streamWithUsers(1, 1, tap(2, -1), tap(3, -1)),
		}
		order, err := Order(instanceSet(1, 2, 3, 4), active)
		require.NoError(t, err)
		return order
	}

	first := build()
	second := build()
	assert.Equal(t, first, second)
}

// TestOrderRewritesStreamUsersIntoExecutionOrder checks that Order reorders
// a stream's Users/Taps to match the execution order it just computed,
// rather than leaving them in the ascending-consumer-ID parse order
// internal/streams.Derive initially assigns. Module 5 produces a stream
// that module 2 also consumes, forcing 5 before 2 in execution order even
// though 2's ID is lower and its tap on stream (1,0) was parsed first.
func TestOrderRewritesStreamUsersIntoExecutionOrder(t *testing.T) {
	stream10 := streamWithUsers(1, 0, tap(2, -1), tap(5, -1))
	active := map[types.StreamKey]*types.ActiveStream{
		{SourceID: 1, TypeID: 0}: stream10,
		{SourceID: 5, TypeID: 1}: streamWithUsers(5, 1, tap(2, -1)),
	}
	require.Equal(t, []int16{2, 5}, stream10.Users, "parse order before Order runs")

	order, err := Order(instanceSet(1, 2, 5), active)
	require.NoError(t, err)
	require.Equal(t, []int16{1, 5, 2}, order)

	assert.Equal(t, []int16{5, 2}, stream10.Users,
		"Users must be rewritten to execution order: 5 runs before 2")
	assert.Equal(t, []types.StreamTap{tap(5, -1), tap(2, -1)}, stream10.Taps,
		"Taps must be permuted the same way as Users")
}
