package wiring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	buildErrors "github.com/inivation/caer-mainloop/pkg/errors"
	"github.com/inivation/caer-mainloop/pkg/types"
)

func inputModule(id int16, name string, outputs ...int16) ModuleInput {
	decls := make([]types.OutputStreamDecl, len(outputs))
	for i, t := range outputs {
		decls[i] = types.OutputStreamDecl{TypeID: t}
	}
	return ModuleInput{
		ID:   id,
		Name: name,
		Descriptor: &types.ModuleDescriptor{
			Kind:          types.KindInput,
			OutputStreams: decls,
		},
	}
}

func TestResolveLinearPipeline(t *testing.T) {
	source := inputModule(1, "camera", 1)

	processor := ModuleInput{
		ID:   2,
		Name: "filter",
		Descriptor: &types.ModuleDescriptor{
			Kind:          types.KindProcessor,
			InputStreams:  []types.InputStreamDecl{{TypeID: 1, Number: 1, ReadOnly: false}},
			OutputStreams: []types.OutputStreamDecl{{TypeID: 1}},
		},
		ModuleInputText: "1[1]",
	}

	sink := ModuleInput{
		ID:   3,
		Name: "display",
		Descriptor: &types.ModuleDescriptor{
			Kind:         types.KindOutput,
			InputStreams: []types.InputStreamDecl{{TypeID: 1, Number: 1, ReadOnly: true}},
		},
		ModuleInputText: "2[1]",
	}

	instances, err := Resolve([]ModuleInput{source, processor, sink})
	require.NoError(t, err)

	proc := instances[2]
	require.Contains(t, proc.ParsedInputWiring, int16(1))
	require.Len(t, proc.ParsedInputWiring[1], 1)
	assert.True(t, proc.ParsedInputWiring[1][0].CopyNeeded, "filter declares its input as writable")

	disp := instances[3]
	require.Contains(t, disp.ParsedInputWiring, int16(2))
	assert.False(t, disp.ParsedInputWiring[2][0].CopyNeeded, "display declares its input as read-only")
}

func TestResolveTapPointAfterModule(t *testing.T) {
	source := inputModule(1, "camera", 1)

	tapper := ModuleInput{
		ID:   2,
		Name: "filter",
		Descriptor: &types.ModuleDescriptor{
			Kind:          types.KindProcessor,
			InputStreams:  []types.InputStreamDecl{{TypeID: 1, Number: 1, ReadOnly: false}},
			OutputStreams: []types.OutputStreamDecl{{TypeID: 1}},
		},
		ModuleInputText: "1[1]",
	}

	downstream := ModuleInput{
		ID:   3,
		Name: "display",
		Descriptor: &types.ModuleDescriptor{
			Kind:         types.KindOutput,
			InputStreams: []types.InputStreamDecl{{TypeID: 1, Number: 1, ReadOnly: true}},
		},
		ModuleInputText: "1[1a2]",
	}

	instances, err := Resolve([]ModuleInput{source, tapper, downstream})
	require.NoError(t, err)

	disp := instances[3]
	require.Len(t, disp.ParsedInputWiring[1], 1)
	assert.Equal(t, int16(2), disp.ParsedInputWiring[1][0].AfterModuleID)
}

func TestResolveUnknownModuleID(t *testing.T) {
	source := inputModule(1, "camera", 1)
	sink := ModuleInput{
		ID:   3,
		Name: "display",
		Descriptor: &types.ModuleDescriptor{
			Kind:         types.KindOutput,
			InputStreams: []types.InputStreamDecl{{TypeID: 1, Number: 1, ReadOnly: true}},
		},
		ModuleInputText: "99[1]",
	}
	_, err := Resolve([]ModuleInput{source, sink})
	assertCode(t, err, buildErrors.CodeUnknownModuleID)
}

func TestResolveUnknownStream(t *testing.T) {
	source := inputModule(1, "camera", 1)
	sink := ModuleInput{
		ID:   3,
		Name: "display",
		Descriptor: &types.ModuleDescriptor{
			Kind:         types.KindOutput,
			InputStreams: []types.InputStreamDecl{{TypeID: 2, Number: 1, ReadOnly: true}},
		},
		ModuleInputText: "1[2]",
	}
	_, err := Resolve([]ModuleInput{source, sink})
	assertCode(t, err, buildErrors.CodeUnknownStream)
}

func TestResolveDuplicateProducerClause(t *testing.T) {
	source := inputModule(1, "camera", 1, 2)
	sink := ModuleInput{
		ID:   3,
		Name: "display",
		Descriptor: &types.ModuleDescriptor{
			Kind:         types.KindOutput,
			InputStreams: []types.InputStreamDecl{{TypeID: types.AnyID, Number: types.AnyID, ReadOnly: true}},
		},
		ModuleInputText: "1[1] 1[2]",
	}
	_, err := Resolve([]ModuleInput{source, sink})
	assertCode(t, err, buildErrors.CodeDuplicateProducerClause)
}

func TestResolveInvalidAfterModuleNotProcessor(t *testing.T) {
	source := inputModule(1, "camera", 1)
	otherSource := inputModule(2, "camera2", 1)
	sink := ModuleInput{
		ID:   3,
		Name: "display",
		Descriptor: &types.ModuleDescriptor{
			Kind:         types.KindOutput,
			InputStreams: []types.InputStreamDecl{{TypeID: 1, Number: 1, ReadOnly: true}},
		},
		ModuleInputText: "1[1a2]",
	}
	_, err := Resolve([]ModuleInput{source, otherSource, sink})
	assertCode(t, err, buildErrors.CodeInvalidAfterModule)
}

func TestResolveCardinalityMismatch(t *testing.T) {
	source := inputModule(1, "camera", 1)
	sink := ModuleInput{
		ID:   3,
		Name: "display",
		Descriptor: &types.ModuleDescriptor{
			Kind:         types.KindOutput,
			InputStreams: []types.InputStreamDecl{{TypeID: 1, Number: 2, ReadOnly: true}},
		},
		ModuleInputText: "1[1]",
	}
	_, err := Resolve([]ModuleInput{source, sink})
	assertCode(t, err, buildErrors.CodeCardinalityMismatch)
}

func TestResolveWildcardOutputFromModuleOutputText(t *testing.T) {
	source := ModuleInput{
		ID:   1,
		Name: "genericSource",
		Descriptor: &types.ModuleDescriptor{
			Kind:          types.KindInput,
			OutputStreams: []types.OutputStreamDecl{{TypeID: types.AnyID}},
		},
		ModuleOutputText: "1,2,3",
	}
	sink := ModuleInput{
		ID:   2,
		Name: "display",
		Descriptor: &types.ModuleDescriptor{
			Kind:         types.KindOutput,
			InputStreams: []types.InputStreamDecl{{TypeID: types.AnyID, Number: types.AnyID, ReadOnly: true}},
		},
		ModuleInputText: "1[2]",
	}
	instances, err := Resolve([]ModuleInput{source, sink})
	require.NoError(t, err)
	assert.Equal(t, []int16{1, 2, 3}, instances[1].ParsedOutputTypes)
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	be, ok := buildErrors.AsBuildError(err)
	require.True(t, ok, "expected a *errors.BuildError, got %T", err)
	assert.Equal(t, code, be.Code)
}
