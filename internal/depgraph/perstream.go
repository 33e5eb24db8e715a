package depgraph

import (
	"fmt"

	buildErrors "github.com/inivation/caer-mainloop/pkg/errors"
	"github.com/inivation/caer-mainloop/pkg/types"
)

// buildPerStreamTree constructs the dependency tree for one active stream
// the root represents the stream's source module; depth-1
// children are every user tapping the raw producer output (afterModuleId ==
// -1); a user tapping after module w is placed as a child of w, however deep
// w itself ends up. Attachment is resolved iteratively rather than assuming
// taps arrive in topological order, since a later tap may reference an
// earlier one that the parser processed out of order.
func buildPerStreamTree(stream *types.ActiveStream) (*tree, error) {
	if err := checkStreamUserInvariants(stream); err != nil {
		return nil, err
	}

	t := newTree(stream.SourceID)
	attached := map[int16]nodeID{stream.SourceID: t.rootID()}

	pending := append([]types.StreamTap(nil), stream.Taps...)
	for len(pending) > 0 {
		progressed := false
		remaining := pending[:0]
		for _, tap := range pending {
			parentModuleID := tap.AfterModuleID
			if parentModuleID == types.AnyID {
				parentModuleID = stream.SourceID
			}
			parentNode, ok := attached[parentModuleID]
			if !ok {
				remaining = append(remaining, tap)
				continue
			}
			attached[tap.ModuleID] = t.addChild(parentNode, tap.ModuleID)
			progressed = true
		}
		pending = remaining
		if !progressed {
			return nil, intraStreamCycleError(stream, pending)
		}
	}

	return t, nil
}

// checkStreamUserInvariants enforces the two per-stream cycle rules from
// the source must not appear as its own user, and no module ID
// may appear twice among a stream's users (a module tapping the same stream
// at two distinct points cannot be placed unambiguously in a single tree and
// is rejected here rather than silently picking one).
func checkStreamUserInvariants(stream *types.ActiveStream) error {
	seen := make(map[int16]bool, len(stream.Users))
	for _, u := range stream.Users {
		if u == stream.SourceID {
			return buildErrors.New(buildErrors.CodeIntraStreamCycle, "depgraph", "buildPerStreamTree",
				fmt.Sprintf("stream (source=%d, type=%d): source appears among its own users", stream.SourceID, stream.TypeID)).
				WithMetadata("sourceId", stream.SourceID).WithMetadata("typeId", stream.TypeID)
		}
		if seen[u] {
			return buildErrors.New(buildErrors.CodeIntraStreamCycle, "depgraph", "buildPerStreamTree",
				fmt.Sprintf("stream (source=%d, type=%d): module %d taps this stream more than once", stream.SourceID, stream.TypeID, u)).
				WithMetadata("sourceId", stream.SourceID).WithMetadata("typeId", stream.TypeID).WithMetadata("moduleId", u)
		}
		seen[u] = true
	}
	return nil
}

func intraStreamCycleError(stream *types.ActiveStream, stuck []types.StreamTap) error {
	ids := make([]int16, len(stuck))
	for i, tap := range stuck {
		ids[i] = tap.ModuleID
	}
	return buildErrors.New(buildErrors.CodeIntraStreamCycle, "depgraph", "buildPerStreamTree",
		fmt.Sprintf("stream (source=%d, type=%d): unresolvable afterModuleId reference(s) among modules %v", stream.SourceID, stream.TypeID, ids)).
		WithMetadata("sourceId", stream.SourceID).WithMetadata("typeId", stream.TypeID)
}
