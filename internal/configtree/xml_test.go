package configtree

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSampleTree() *Tree {
	tree := New(nil)
	root := tree.Root()

	mod := root.AddChild("moduleA")
	mod.CreateAttribute("enabled", TypeBool, true, Range{}, Flags{}, "")
	mod.CreateAttribute("width", TypeInt32, int32(640), Range{Min: int64(0), Max: int64(4096)}, Flags{}, "")
	mod.CreateAttribute("gain", TypeFloat32, float32(1.5), Range{Min: float64(0), Max: float64(10)}, Flags{}, "")
	mod.CreateAttribute("secretToken", TypeString, "xyz", Range{Min: int64(0), Max: int64(64)}, Flags{NoExport: true}, "")
	mod.CreateAttribute("serial", TypeString, "ABC123", Range{Min: int64(0), Max: int64(32)}, Flags{ReadOnly: true}, "")

	streams := mod.AddChild("streams")
	streams.CreateAttribute("count", TypeInt64, int64(2), Range{Min: int64(0), Max: int64(100)}, Flags{}, "")

	return tree
}

func TestXMLExportOmitsNoExport(t *testing.T) {
	tree := buildSampleTree()
	var buf bytes.Buffer
	require.NoError(t, Export(tree.Root(), &buf))
	assert.NotContains(t, buf.String(), "secretToken")
	assert.Contains(t, buf.String(), "width")
}

func TestXMLRoundTrip(t *testing.T) {
	src := buildSampleTree()
	var buf bytes.Buffer
	require.NoError(t, Export(src.Root(), &buf))

	dst := New(nil)
	err := Import(dst.Root(), bytes.NewReader(buf.Bytes()), ImportOptions{Strict: true, RootName: ""})
	require.NoError(t, err)

	mod, ok := dst.Root().GetChild("moduleA")
	require.True(t, ok)

	assert.Equal(t, true, mod.GetAttribute("enabled", TypeBool))
	assert.Equal(t, int32(640), mod.GetAttribute("width", TypeInt32))
	assert.Equal(t, float32(1.5), mod.GetAttribute("gain", TypeFloat32))
	assert.Equal(t, "ABC123", mod.GetAttribute("serial", TypeString))
	assert.False(t, mod.HasAttribute("secretToken"), "no-export attributes never round-trip")

	streams, ok := mod.GetChild("streams")
	require.True(t, ok)
	assert.Equal(t, int64(2), streams.GetAttribute("count", TypeInt64))
}

func TestXMLImportStrictModeRootNameMismatch(t *testing.T) {
	src := buildSampleTree()
	var buf bytes.Buffer
	require.NoError(t, Export(src.Root(), &buf))

	dst := New(nil)
	err := Import(dst.Root(), bytes.NewReader(buf.Bytes()), ImportOptions{Strict: true, RootName: "notTheRoot"})
	assert.Error(t, err)
}

func TestXMLImportToleratesUnknownNodesAndAttributes(t *testing.T) {
	doc := []byte(`<sshs version="1.0"><node name="" path="/"><node name="fresh" path="/fresh"><attr key="value" type="int">42</attr></node></node></sshs>`)

	dst := New(nil)
	require.NoError(t, Import(dst.Root(), bytes.NewReader(doc), ImportOptions{}))

	fresh, ok := dst.Root().GetChild("fresh")
	require.True(t, ok)
	assert.Equal(t, int32(42), fresh.GetAttribute("value", TypeInt32))

	snap, ok := fresh.AttributeSnapshot("value")
	require.True(t, ok)
	assert.True(t, snap.Flags.NoExport, "attributes created by import are flagged no-export")
}

func TestXMLImportSkipsOutOfRangeViolationsWithoutFailing(t *testing.T) {
	dst := New(nil)
	mod := dst.Root().AddChild("moduleA")
	mod.CreateAttribute("width", TypeInt32, int32(640), Range{Min: int64(0), Max: int64(1024)}, Flags{}, "")

	doc := []byte(`<sshs version="1.0"><node name="" path="/"><node name="moduleA" path="/moduleA"><attr key="width" type="int">99999</attr></node></node></sshs>`)
	err := Import(dst.Root(), bytes.NewReader(doc), ImportOptions{})
	require.NoError(t, err, "a per-attribute range violation must not fail the whole import")

	assert.Equal(t, int32(640), mod.GetAttribute("width", TypeInt32), "the offending attribute keeps its prior value")
}

func TestXMLImportMalformedRootAborts(t *testing.T) {
	dst := New(nil)
	err := Import(dst.Root(), bytes.NewReader([]byte("not xml at all")), ImportOptions{})
	assert.Error(t, err)
}
