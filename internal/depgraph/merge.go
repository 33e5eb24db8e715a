package depgraph

import (
	"fmt"

	buildErrors "github.com/inivation/caer-mainloop/pkg/errors"
)

// globalRootID is the synthetic, non-module root of the merged tree: every
// stream source attaches to it as a depth-1 child, reusing the -1 sentinel
// that also marks dummy spacer links (bfsOrder starts at the root but leaves
// it out of the output by the same -1 check that drops dummy spacers).
const globalRootID int16 = dummyModuleID

// mergeStreamTree folds one per-stream tree into the global tree
// §4.F). It walks the per-stream tree breadth-first; the very first link
// merged is always (source, globalRoot), which is how a stream's source
// module gets placed in the global tree the first time any of its streams
// is merged, and is accepted unconditionally on every later stream that
// shares the same source.
func mergeStreamTree(global *tree, index map[int16]nodeID, local *tree) error {
	type pendingLink struct {
		localID        nodeID
		parentModuleID int16
		parentIsRoot   bool
	}

	queue := []pendingLink{{localID: local.rootID(), parentIsRoot: true}}
	for len(queue) > 0 {
		link := queue[0]
		queue = queue[1:]

		moduleID := local.get(link.localID).moduleID
		if err := applyLink(global, index, moduleID, link.parentModuleID, link.parentIsRoot); err != nil {
			return err
		}

		for _, c := range local.get(link.localID).children {
			queue = append(queue, pendingLink{localID: c, parentModuleID: moduleID})
		}
	}
	return nil
}

func applyLink(global *tree, index map[int16]nodeID, moduleID, parentModuleID int16, parentIsRoot bool) error {
	existing, present := index[moduleID]
	if !present {
		parentGlobal := global.rootID()
		if !parentIsRoot {
			parentGlobal = index[parentModuleID]
		}
		index[moduleID] = global.addChild(parentGlobal, moduleID)
		return nil
	}
	return reconcileExisting(global, index, moduleID, parentModuleID, parentIsRoot, existing)
}

// reconcileExisting implements rule 2 of the merge algorithm: x is already
// present in the global tree at depth d_x. If the per-stream parent is the
// synthetic root (this is a stream source being merged again) or isn't
// present in the global tree at all, x's existing position already
// satisfies every dependency this link could impose, so it's left alone.
// Otherwise x must sit strictly below its per-stream parent p; if it
// already does, nothing to do, otherwise x is pushed down via a dummy
// spacer chain.
func reconcileExisting(global *tree, index map[int16]nodeID, moduleID, parentModuleID int16, parentIsRoot bool, existing nodeID) error {
	if parentIsRoot {
		return nil
	}
	parentGlobal, parentPresent := index[parentModuleID]
	if !parentPresent {
		return nil
	}

	dx := global.get(existing).depth
	dp := global.get(parentGlobal).depth
	if dp < dx {
		return nil
	}

	if err := checkCrossStreamCycle(global, moduleID, parentModuleID, existing); err != nil {
		return err
	}

	pushDown(global, existing, dp+1)
	return nil
}

// checkCrossStreamCycle reports a cross-stream dependency cycle when p (x's
// parent in the stream being merged) is already a descendant of x in the
// global tree: an earlier stream established x before p, and this stream
// now demands p before x, which no single order can satisfy.
func checkCrossStreamCycle(global *tree, moduleID, parentModuleID int16, existing nodeID) error {
	for _, d := range global.descendants(existing) {
		if d == parentModuleID {
			return buildErrors.NewHigh(buildErrors.CodeCrossStreamCycle, "depgraph", "mergeStreamTree",
				fmt.Sprintf("modules %d and %d depend on each other across streams", moduleID, parentModuleID)).
				WithMetadata("moduleId", moduleID).WithMetadata("otherModuleId", parentModuleID)
		}
	}
	return nil
}

// pushDown moves x so it sits at newDepth without disturbing its real
// ancestry: x stays under its existing parent, but the edge between them is
// lengthened into a chain of dummy spacer nodes so x (and its whole
// subtree) ends up deeper. BFS groups nodes by depth regardless of what
// real module, if any, sits directly above them, so deepening x below its
// per-stream parent's depth is enough to guarantee that parent is dequeued
// first; x does not need to become its literal tree child.
//
// The spacer count is derived from first principles as newDepth - (x's
// current depth), the corrected form of the source algorithm's off-by-one
// dummy count, which computed one fewer spacer than needed
// whenever x had to move exactly one level.
func pushDown(global *tree, x nodeID, newDepth int) {
	oldDepth := global.get(x).depth
	oldParent := global.get(x).parent
	spacerCount := newDepth - oldDepth
	if spacerCount < 1 {
		spacerCount = 1
	}

	cur := oldParent
	for i := 0; i < spacerCount; i++ {
		cur = global.addChild(cur, dummyModuleID)
	}
	global.reparent(x, cur)
}
