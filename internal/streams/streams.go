// Package streams derives the set of active event streams from a set of
// resolved module instances: the union of produced type IDs
// that are actually produced, each annotated with its ordered consumer
// list, with unused streams pruned and dead input modules rejected.
package streams

import (
	"fmt"
	"sort"

	buildErrors "github.com/inivation/caer-mainloop/pkg/errors"
	"github.com/inivation/caer-mainloop/pkg/types"
)

// Derive builds the active-stream set from instances (as produced by
// internal/wiring.Resolve). Streams with no users are pruned. If any Input
// module ends up with no surviving output stream, the build fails: that
// module is dead weight and almost certainly misconfigured.
func Derive(instances map[int16]*types.ModuleInstance) (map[types.StreamKey]*types.ActiveStream, error) {
	all := make(map[types.StreamKey]*types.ActiveStream)

	sourceIDs := sortedIDs(instances)

	for _, id := range sourceIDs {
		inst := instances[id]
		if inst.Kind == types.KindOutput {
			continue
		}
		for _, t := range inst.ParsedOutputTypes {
			key := types.StreamKey{SourceID: id, TypeID: t}
			all[key] = &types.ActiveStream{
				SourceID:          id,
				TypeID:            t,
				IsProcessorOutput: inst.Kind == types.KindProcessor,
			}
		}
	}

	for _, id := range sourceIDs {
		inst := instances[id]
		for _, srcID := range sortedSourceKeys(inst.ParsedInputWiring) {
			orderedInputs := inst.ParsedInputWiring[srcID]
			for _, in := range orderedInputs {
				key := types.StreamKey{SourceID: srcID, TypeID: in.TypeID}
				stream, ok := all[key]
				if !ok {
					return nil, buildErrors.New(buildErrors.CodeUnknownStream, "streams", "derive",
						fmt.Sprintf("module %q consumes (source=%d, type=%d) which is not produced by any module", inst.Name, srcID, in.TypeID))
				}
				stream.Users = append(stream.Users, id)
				stream.Taps = append(stream.Taps, types.StreamTap{ModuleID: id, AfterModuleID: in.AfterModuleID})
			}
		}
	}

	active := make(map[types.StreamKey]*types.ActiveStream)
	producedSurvives := make(map[int16]bool)
	for key, stream := range all {
		if len(stream.Users) == 0 {
			continue
		}
		active[key] = stream
		producedSurvives[key.SourceID] = true
	}

	for _, id := range sourceIDs {
		inst := instances[id]
		if inst.Kind != types.KindInput {
			continue
		}
		if !producedSurvives[id] {
			return nil, buildErrors.New(buildErrors.CodeDeadInputModule, "streams", "derive",
				fmt.Sprintf("input module %q has no surviving output stream", inst.Name)).
				WithMetadata("module", inst.Name)
		}
	}

	return active, nil
}

func sortedIDs(instances map[int16]*types.ModuleInstance) []int16 {
	ids := make([]int16, 0, len(instances))
	for id := range instances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedSourceKeys(m map[int16][]types.OrderedInput) []int16 {
	ids := make([]int16, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
