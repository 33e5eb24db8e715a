package wiring

import (
	"fmt"
	"sort"

	buildErrors "github.com/inivation/caer-mainloop/pkg/errors"
	"github.com/inivation/caer-mainloop/pkg/types"
)

// ModuleInput is everything Resolve needs about one module: its loaded
// descriptor plus the raw text of its moduleInput/moduleOutput attributes,
// as read off the configuration tree.
type ModuleInput struct {
	ID               int16
	Name             string
	Descriptor       *types.ModuleDescriptor
	ModuleInputText  string
	ModuleOutputText string
}

type moduleState struct {
	input       ModuleInput
	outputTypes map[int16]bool
	rawClauses  []ProducerClause
}

// Resolve parses every module's moduleInput/moduleOutput text, cross-checks
// module IDs and afterModuleId tap points against the rest of the set, and
// returns a populated ModuleInstance per module with ParsedInputWiring and
// ParsedOutputTypes filled in. Any violation of the parser contracts in
// fails the whole resolution; there is no partial result.
func Resolve(modules []ModuleInput) (map[int16]*types.ModuleInstance, error) {
	states := make(map[int16]*moduleState, len(modules))
	for _, m := range modules {
		states[m.ID] = &moduleState{input: m}
	}

	for _, st := range states {
		if err := resolveOutputTypes(st); err != nil {
			return nil, err
		}
	}

	for _, st := range states {
		if st.input.Descriptor.Kind == types.KindInput && st.input.ModuleInputText != "" {
			return nil, wiringError(buildErrors.CodeWiringParseError, st.input.Name,
				"an Input module must not have a moduleInput attribute")
		}
		clauses, err := ParseModuleInput(st.input.ModuleInputText)
		if err != nil {
			return nil, wiringError(buildErrors.CodeWiringParseError, st.input.Name, err.Error())
		}
		if err := checkDuplicateSources(clauses); err != nil {
			return nil, wiringError(buildErrors.CodeDuplicateProducerClause, st.input.Name, err.Error())
		}
		st.rawClauses = clauses
	}

	instances := make(map[int16]*types.ModuleInstance, len(states))
	for id, st := range states {
		inst := &types.ModuleInstance{
			ID:                id,
			Name:              st.input.Name,
			Kind:              st.input.Descriptor.Kind,
			Descriptor:        st.input.Descriptor,
			ParsedInputWiring: make(map[int16][]types.OrderedInput),
			ParsedOutputTypes: sortedTypeSet(st.outputTypes),
		}
		instances[id] = inst
	}

	for id, st := range states {
		inst := instances[id]
		for _, clause := range st.rawClauses {
			src, ok := states[clause.SourceModuleID]
			if !ok {
				return nil, wiringError(buildErrors.CodeUnknownModuleID, st.input.Name,
					fmt.Sprintf("moduleInput refers to unknown module id %d", clause.SourceModuleID))
			}
			if err := checkDuplicateTypePairs(clause); err != nil {
				return nil, wiringError(buildErrors.CodeDuplicateProducerClause, st.input.Name, err.Error())
			}

			for _, ts := range clause.Types {
				if !src.outputTypes[ts.TypeID] {
					return nil, wiringError(buildErrors.CodeUnknownStream, st.input.Name,
						fmt.Sprintf("module %d does not produce type %d", clause.SourceModuleID, ts.TypeID))
				}

				if ts.AfterModuleID != -1 {
					if err := checkAfterModule(states, clause.SourceModuleID, ts, st.input.Name); err != nil {
						return nil, err
					}
				}

				decl, ok := findDeclaredInputEntry(st.input.Descriptor, ts.TypeID)
				if !ok {
					return nil, wiringError(buildErrors.CodeCardinalityMismatch, st.input.Name,
						fmt.Sprintf("type %d wired in but not declared as an input of this module", ts.TypeID))
				}

				inst.ParsedInputWiring[clause.SourceModuleID] = append(inst.ParsedInputWiring[clause.SourceModuleID], types.OrderedInput{
					TypeID:        ts.TypeID,
					AfterModuleID: ts.AfterModuleID,
					CopyNeeded:    !decl.ReadOnly,
				})
			}
		}

		if err := checkCardinality(st.input.Name, st.input.Descriptor, inst.ParsedInputWiring); err != nil {
			return nil, err
		}
	}

	return instances, nil
}

func resolveOutputTypes(st *moduleState) error {
	desc := st.input.Descriptor
	st.outputTypes = make(map[int16]bool)

	if desc.Kind == types.KindOutput {
		return nil
	}
	if len(desc.OutputStreams) == 1 && desc.OutputStreams[0].TypeID == types.AnyID {
		ids, err := ParseModuleOutput(st.input.ModuleOutputText)
		if err != nil {
			return wiringError(buildErrors.CodeWiringParseError, st.input.Name, err.Error())
		}
		for _, id := range ids {
			st.outputTypes[id] = true
		}
		return nil
	}
	for _, d := range desc.OutputStreams {
		st.outputTypes[d.TypeID] = true
	}
	return nil
}

func checkDuplicateSources(clauses []ProducerClause) error {
	seen := make(map[int16]bool, len(clauses))
	for _, c := range clauses {
		if seen[c.SourceModuleID] {
			return fmt.Errorf("duplicate producer clause for module %d", c.SourceModuleID)
		}
		seen[c.SourceModuleID] = true
	}
	return nil
}

func checkDuplicateTypePairs(clause ProducerClause) error {
	type pair struct {
		typeID, after int16
	}
	seen := make(map[pair]bool, len(clause.Types))
	for _, ts := range clause.Types {
		p := pair{ts.TypeID, ts.AfterModuleID}
		if seen[p] {
			return fmt.Errorf("duplicate (typeId=%d, afterModuleId=%d) pair from producer %d", ts.TypeID, ts.AfterModuleID, clause.SourceModuleID)
		}
		seen[p] = true
	}
	return nil
}

func checkAfterModule(states map[int16]*moduleState, sourceID int16, ts TypeSpec, consumerName string) error {
	after, ok := states[ts.AfterModuleID]
	if !ok {
		return wiringError(buildErrors.CodeInvalidAfterModule, consumerName,
			fmt.Sprintf("afterModuleId %d does not exist", ts.AfterModuleID))
	}
	if after.input.Descriptor.Kind != types.KindProcessor {
		return wiringError(buildErrors.CodeInvalidAfterModule, consumerName,
			fmt.Sprintf("afterModuleId %d is not a Processor module", ts.AfterModuleID))
	}

	consumesStream := false
	for _, c := range after.rawClauses {
		if c.SourceModuleID != sourceID {
			continue
		}
		for _, afterTS := range c.Types {
			if afterTS.TypeID == ts.TypeID {
				consumesStream = true
				break
			}
		}
	}
	if !consumesStream {
		return wiringError(buildErrors.CodeInvalidAfterModule, consumerName,
			fmt.Sprintf("afterModuleId %d does not itself consume (source=%d, type=%d)", ts.AfterModuleID, sourceID, ts.TypeID))
	}

	decl, ok := findDeclaredInputEntry(after.input.Descriptor, ts.TypeID)
	if !ok || decl.ReadOnly {
		return wiringError(buildErrors.CodeInvalidAfterModule, consumerName,
			fmt.Sprintf("afterModuleId %d does not modify (source=%d, type=%d)", ts.AfterModuleID, sourceID, ts.TypeID))
	}
	return nil
}

// findDeclaredInputEntry returns the InputStreamDecl entry governing typeId:
// either the sole wildcard entry, or the exact-match entry.
func findDeclaredInputEntry(desc *types.ModuleDescriptor, typeID int16) (types.InputStreamDecl, bool) {
	if len(desc.InputStreams) == 1 && desc.InputStreams[0].TypeID == types.AnyID {
		return desc.InputStreams[0], true
	}
	for _, d := range desc.InputStreams {
		if d.TypeID == typeID {
			return d, true
		}
	}
	return types.InputStreamDecl{}, false
}

func checkCardinality(moduleName string, desc *types.ModuleDescriptor, wiring map[int16][]types.OrderedInput) error {
	counts := make(map[int16]int)
	total := 0
	for _, inputs := range wiring {
		for _, in := range inputs {
			counts[in.TypeID]++
			total++
		}
	}

	if len(desc.InputStreams) == 1 && desc.InputStreams[0].TypeID == types.AnyID {
		decl := desc.InputStreams[0]
		if decl.Number == types.AnyID {
			if total < 1 {
				return wiringError(buildErrors.CodeCardinalityMismatch, moduleName, "any-type/any-number input requires at least one connected input")
			}
			return nil
		}
		// any-type/1
		if total != 1 {
			return wiringError(buildErrors.CodeCardinalityMismatch, moduleName,
				fmt.Sprintf("any-type/1 input requires exactly one connected input, got %d", total))
		}
		return nil
	}

	for _, decl := range desc.InputStreams {
		c := counts[decl.TypeID]
		if decl.Number == types.AnyID {
			if c < 1 {
				return wiringError(buildErrors.CodeCardinalityMismatch, moduleName,
					fmt.Sprintf("type %d requires at least one connected input, got 0", decl.TypeID))
			}
			continue
		}
		if int16(c) != decl.Number {
			return wiringError(buildErrors.CodeCardinalityMismatch, moduleName,
				fmt.Sprintf("type %d requires exactly %d connected input(s), got %d", decl.TypeID, decl.Number, c))
		}
	}
	return nil
}

func sortedTypeSet(set map[int16]bool) []int16 {
	out := make([]int16, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func wiringError(code, moduleName, detail string) error {
	return buildErrors.New(code, "wiring", "resolve", fmt.Sprintf("module %q: %s", moduleName, detail)).
		WithMetadata("module", moduleName)
}
