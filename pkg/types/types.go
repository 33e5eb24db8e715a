// Package types defines the core data model shared across the mainloop:
// module kinds, stream declarations, parsed wiring, active streams, and the
// execution plan produced by a successful build.
//
// The types here are intentionally dumb value holders. All validation and
// derivation logic lives in the components that build these values
// (internal/validator, internal/wiring, internal/streams, internal/depgraph,
// internal/routing) so that this package stays free of import cycles and
// easy to reason about in isolation.
package types

import (
	"time"
)

// AnyID is the wildcard value for a stream type ID or an input count: "any".
const AnyID int16 = -1

// ModuleKind tags a module instance with its role in the data-flow graph.
type ModuleKind int

const (
	// KindInput modules produce streams only.
	KindInput ModuleKind = iota
	// KindOutput modules consume streams only; every declared input must be read-only.
	KindOutput
	// KindProcessor modules consume and optionally produce streams.
	KindProcessor
)

// String renders the module kind for logging and error messages.
func (k ModuleKind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindOutput:
		return "output"
	case KindProcessor:
		return "processor"
	default:
		return "unknown"
	}
}

// InputStreamDecl is one entry of a module's declared input stream array.
//
// TypeID of AnyID means "any type"; Number of AnyID means "any count". The
// array invariants (strict ascending TypeID, wildcard-implies-length-1) are
// enforced by internal/validator, not by this type.
type InputStreamDecl struct {
	TypeID   int16
	Number   int16
	ReadOnly bool
}

// OutputStreamDecl is one entry of a module's declared output stream array.
type OutputStreamDecl struct {
	TypeID int16
}

// LifecycleHooks mirrors a plugin's self-described callback table. Only Run
// is mandatory; the others are resolved to nil when the plugin doesn't
// implement them, exactly as the original descriptor allows.
type LifecycleHooks struct {
	Init         func() error
	Run          func() error
	ConfigUpdate func() error
	Exit         func() error
	Reset        func() error
}

// ModuleDescriptor is the self-describing metadata a plugin exposes through
// its single well-known exported symbol.
type ModuleDescriptor struct {
	APIVersion    uint32
	Name          string
	Kind          ModuleKind
	StateSize     uintptr
	Lifecycle     LifecycleHooks
	InputStreams  []InputStreamDecl
	OutputStreams []OutputStreamDecl
}

// OrderedInput is one parsed producer-clause entry from a module's
// moduleInput attribute: "take TypeID from the source this map is keyed by,
// tapped after AfterModuleID has modified it (AnyID meaning the original
// producer), with CopyNeeded inferred from the matching InputStreamDecl."
type OrderedInput struct {
	TypeID        int16
	AfterModuleID int16
	CopyNeeded    bool
}

// StreamKey identifies a logical event stream by its producing module and
// event type.
type StreamKey struct {
	SourceID int16
	TypeID   int16
}

// StreamTap is one consumer's attachment point on a stream: ModuleID taps
// the stream after AfterModuleID has (possibly) modified it, AnyID meaning
// the original producer.
type StreamTap struct {
	ModuleID      int16
	AfterModuleID int16
}

// ActiveStream is a stream with both a producer and at least one consumer in
// the current plan. internal/streams.Derive initially orders Users/Taps by
// parse order (ascending consumer module ID); internal/depgraph.Order
// rewrites both into the global execution order once it has been computed,
// since internal/routing's copy-vs-mutate decision depends on "later" meaning
// "runs later", not "has a higher module ID". Taps carries the same
// consumers paired with their afterModuleId attachment point.
type ActiveStream struct {
	SourceID          int16
	TypeID            int16
	IsProcessorOutput bool
	Users             []int16
	Taps              []StreamTap
}

// Key returns the stream's identity tuple.
func (s *ActiveStream) Key() StreamKey {
	return StreamKey{SourceID: s.SourceID, TypeID: s.TypeID}
}

// InputSlot is one resolved entry of a consumer's inputSlots array: the slot
// it reads from, and, if non-negative, the slot it was copied from because
// the consumer mutates in place and a later reader of the same tap point
// still needs the pre-mutation data.
type InputSlot struct {
	SourceID      int16
	TypeID        int16
	AfterModuleID int16
	SlotIndex     int
	CopyFrom      int
}

// ModuleInstance is one node of the data-flow graph: a loaded module plus
// everything the builder has derived about its wiring.
type ModuleInstance struct {
	ID         int16
	Name       string
	Kind       ModuleKind
	Descriptor *ModuleDescriptor

	// ParsedInputWiring maps each named producer module ID to the ordered
	// sequence of inputs this module takes from it, per the moduleInput
	// grammar.
	ParsedInputWiring map[int16][]OrderedInput

	// ParsedOutputTypes holds the moduleOutput attribute's parsed type list,
	// populated only when the descriptor declares a wildcard output type.
	ParsedOutputTypes []int16

	// OutputSlots maps a produced type ID to its routing slot index.
	OutputSlots map[int16]int

	// InputSlots is the ordered, fully resolved input routing table.
	InputSlots []InputSlot
}

// ExecutionPlan is the result of a successful build: a total order over
// module IDs honoring every cross-module dependency, plus the active-stream
// set and per-module routing tables needed by the (out-of-scope) dispatcher.
type ExecutionPlan struct {
	Order         []int16
	Modules       map[int16]*ModuleInstance
	ActiveStreams map[StreamKey]*ActiveStream
	SlotCount     int
	BuiltAt       time.Time
	BuildDuration time.Duration
}

// PlanSnapshot is an immutable, JSON-serializable rendering of an
// ExecutionPlan for the status API (internal/statusapi) and for comparing
// two builds for byte-identical-order idempotence tests.
type PlanSnapshot struct {
	Order         []int16              `json:"order"`
	Modules       []ModuleSnapshot     `json:"modules"`
	ActiveStreams []ActiveStreamView   `json:"active_streams"`
	SlotCount     int                  `json:"slot_count"`
	BuiltAt       time.Time            `json:"built_at"`
	BuildDuration time.Duration        `json:"build_duration_ns"`
}

// ModuleSnapshot is the JSON view of one ModuleInstance.
type ModuleSnapshot struct {
	ID         int16       `json:"id"`
	Name       string      `json:"name"`
	Kind       string      `json:"kind"`
	OutputSlots map[int16]int `json:"output_slots,omitempty"`
	InputSlots []InputSlot  `json:"input_slots,omitempty"`
}

// ActiveStreamView is the JSON view of one ActiveStream.
type ActiveStreamView struct {
	SourceID int16   `json:"source_id"`
	TypeID   int16   `json:"type_id"`
	Users    []int16 `json:"users"`
}

// Snapshot renders the plan into its JSON-friendly form.
func (p *ExecutionPlan) Snapshot() PlanSnapshot {
	snap := PlanSnapshot{
		Order:         append([]int16(nil), p.Order...),
		SlotCount:     p.SlotCount,
		BuiltAt:       p.BuiltAt,
		BuildDuration: p.BuildDuration,
	}
	for _, id := range p.Order {
		m := p.Modules[id]
		if m == nil {
			continue
		}
		snap.Modules = append(snap.Modules, ModuleSnapshot{
			ID:          m.ID,
			Name:        m.Name,
			Kind:        m.Kind.String(),
			OutputSlots: m.OutputSlots,
			InputSlots:  m.InputSlots,
		})
	}
	for _, s := range p.ActiveStreams {
		snap.ActiveStreams = append(snap.ActiveStreams, ActiveStreamView{
			SourceID: s.SourceID,
			TypeID:   s.TypeID,
			Users:    s.Users,
		})
	}
	return snap
}
