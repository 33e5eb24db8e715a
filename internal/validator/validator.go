// Package validator enforces the structural invariants on a module
// descriptor's declared input and output stream arrays:
// ordering, wildcard discipline, and the per-kind rules that distinguish
// Input, Output, and Processor modules.
package validator

import (
	"fmt"

	buildErrors "github.com/inivation/caer-mainloop/pkg/errors"
	"github.com/inivation/caer-mainloop/pkg/types"
)

// ValidateDescriptor checks the structural invariants of a module
// descriptor in isolation (no wiring, no cross-module state). Violations
// are fatal for the current plan build and reported with the offending
// module name.
func ValidateDescriptor(moduleName string, desc *types.ModuleDescriptor) error {
	if err := validateInputStreams(moduleName, desc.InputStreams); err != nil {
		return err
	}
	if err := validateOutputStreams(moduleName, desc.OutputStreams); err != nil {
		return err
	}
	return validateKindInvariants(moduleName, desc)
}

func validateInputStreams(moduleName string, decls []types.InputStreamDecl) error {
	if len(decls) == 0 {
		return nil
	}
	if len(decls) == 1 && decls[0].TypeID == types.AnyID {
		if decls[0].Number != types.AnyID && decls[0].Number != 1 {
			return descriptorError(moduleName, "input stream declaration",
				fmt.Sprintf("wildcard typeId requires number in {-1, 1}, got %d", decls[0].Number))
		}
		return nil
	}
	for i, d := range decls {
		if d.TypeID == types.AnyID {
			return descriptorError(moduleName, "input stream declaration",
				"wildcard typeId (-1) is only valid as the sole entry in the array")
		}
		if i > 0 && decls[i-1].TypeID >= d.TypeID {
			return descriptorError(moduleName, "input stream declaration",
				fmt.Sprintf("typeId array is not strictly ascending at index %d (%d >= %d)", i, decls[i-1].TypeID, d.TypeID))
		}
	}
	return nil
}

func validateOutputStreams(moduleName string, decls []types.OutputStreamDecl) error {
	if len(decls) == 0 {
		return nil
	}
	if len(decls) == 1 && decls[0].TypeID == types.AnyID {
		return nil
	}
	for i, d := range decls {
		if d.TypeID == types.AnyID {
			return descriptorError(moduleName, "output stream declaration",
				"wildcard typeId (-1) is only valid as the sole entry in the array")
		}
		if i > 0 && decls[i-1].TypeID >= d.TypeID {
			return descriptorError(moduleName, "output stream declaration",
				fmt.Sprintf("typeId array is not strictly ascending at index %d (%d >= %d)", i, decls[i-1].TypeID, d.TypeID))
		}
	}
	return nil
}

func validateKindInvariants(moduleName string, desc *types.ModuleDescriptor) error {
	switch desc.Kind {
	case types.KindInput:
		if len(desc.InputStreams) != 0 {
			return descriptorError(moduleName, "kind invariant", "an Input module must not declare input streams")
		}
		if len(desc.OutputStreams) == 0 {
			return descriptorError(moduleName, "kind invariant", "an Input module must declare at least one output stream")
		}
	case types.KindOutput:
		if len(desc.OutputStreams) != 0 {
			return descriptorError(moduleName, "kind invariant", "an Output module must not declare output streams")
		}
		if len(desc.InputStreams) == 0 {
			return descriptorError(moduleName, "kind invariant", "an Output module must declare at least one input stream")
		}
		for _, d := range desc.InputStreams {
			if !d.ReadOnly {
				return descriptorError(moduleName, "kind invariant", "every input stream declared by an Output module must be read-only")
			}
		}
	case types.KindProcessor:
		if len(desc.InputStreams) == 0 {
			return descriptorError(moduleName, "kind invariant", "a Processor module must declare at least one input stream")
		}
		if len(desc.OutputStreams) == 0 {
			writable := false
			for _, d := range desc.InputStreams {
				if !d.ReadOnly {
					writable = true
					break
				}
			}
			if !writable {
				return descriptorError(moduleName, "kind invariant",
					"a Processor module with no declared outputs must have at least one writable input, otherwise it cannot affect anything")
			}
		}
	default:
		return descriptorError(moduleName, "kind invariant", fmt.Sprintf("unknown module kind %v", desc.Kind))
	}
	return nil
}

func descriptorError(moduleName, rule, detail string) error {
	return buildErrors.New(buildErrors.CodeDescriptorInvalid, "validator", "validateDescriptor",
		fmt.Sprintf("module %q: %s: %s", moduleName, rule, detail)).
		WithMetadata("module", moduleName).
		WithMetadata("rule", rule)
}
