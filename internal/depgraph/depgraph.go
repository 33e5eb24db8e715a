// Package depgraph implements the dependency resolver: for
// each active stream it builds a per-stream dependency tree reflecting
// afterModuleId tap points, then merges every per-stream tree into one
// global tree via breadth-first traversal with dummy-node depth alignment,
// and reads the global execution order off the merged tree.
//
// Trees are represented as flat arenas (see tree.go) rather than owned
// pointers with back-references, per the re-implementation note in
// a depth-shift move during merge becomes a parent-field and
// children-slice rewrite instead of a recursive back-pointer update.
package depgraph

import (
	"sort"

	buildErrors "github.com/inivation/caer-mainloop/pkg/errors"
	"github.com/inivation/caer-mainloop/pkg/types"
)

// Order builds the global execution order from a set of active streams and
// the full module instance set. Streams are merged in ascending
// (sourceId, typeId) order for determinism: the resulting order depends
// only on the streams and their tap points, never on map iteration order.
//
// Every module in instances must appear in the result; a module reachable
// by neither a stream source nor a stream user indicates a bug upstream
// (internal/streams should already have rejected it as a dead input or an
// unreferenced output) and is reported as CodeInternalInconsistency rather
// than silently dropped.
func Order(instances map[int16]*types.ModuleInstance, active map[types.StreamKey]*types.ActiveStream) ([]int16, error) {
	global := newTree(globalRootID)
	index := make(map[int16]nodeID)

	for _, key := range sortedStreamKeys(active) {
		stream := active[key]
		local, err := buildPerStreamTree(stream)
		if err != nil {
			return nil, err
		}
		if err := mergeStreamTree(global, index, local); err != nil {
			return nil, err
		}
	}

	order := global.bfsOrder()

	if err := checkCompleteness(instances, order); err != nil {
		return nil, err
	}

	reorderStreamUsers(order, active)

	return order, nil
}

// reorderStreamUsers re-sorts every active stream's Users and Taps into the
// just-computed global execution order, replacing the ascending-module-ID
// parse order internal/streams.Derive originally assigned them. routing.Plan
// walks a stream's Taps to decide whether a mutating consumer needs a
// private copy, asking whether some "later" consumer still needs the
// pre-mutation data; "later" has to mean "runs later in order", not "has a
// higher module ID" -- those coincide only by accident. Rewritten after the
// per-stream trees are built, since buildPerStreamTree tolerates taps
// arriving in any order but routing's lookahead does not.
func reorderStreamUsers(order []int16, active map[types.StreamKey]*types.ActiveStream) {
	position := make(map[int16]int, len(order))
	for i, id := range order {
		position[id] = i
	}

	for _, stream := range active {
		sort.SliceStable(stream.Taps, func(i, j int) bool {
			return position[stream.Taps[i].ModuleID] < position[stream.Taps[j].ModuleID]
		})
		users := make([]int16, len(stream.Taps))
		for i, t := range stream.Taps {
			users[i] = t.ModuleID
		}
		stream.Users = users
	}
}

func checkCompleteness(instances map[int16]*types.ModuleInstance, order []int16) error {
	if len(order) != len(instances) {
		placed := make(map[int16]bool, len(order))
		for _, id := range order {
			placed[id] = true
		}
		for id := range instances {
			if !placed[id] {
				return buildErrors.NewCritical(buildErrors.CodeInternalInconsistency, "depgraph", "Order",
					"module did not appear in any active stream's dependency tree").
					WithMetadata("moduleId", id)
			}
		}
		return buildErrors.NewCritical(buildErrors.CodeInternalInconsistency, "depgraph", "Order",
			"execution order size does not match module count")
	}
	return nil
}

func sortedStreamKeys(active map[types.StreamKey]*types.ActiveStream) []types.StreamKey {
	keys := make([]types.StreamKey, 0, len(active))
	for k := range active {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].SourceID != keys[j].SourceID {
			return keys[i].SourceID < keys[j].SourceID
		}
		return keys[i].TypeID < keys[j].TypeID
	})
	return keys
}
