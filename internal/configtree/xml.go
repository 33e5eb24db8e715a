package configtree

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/sirupsen/logrus"
)

// No third-party XML library is used here: none of the retrieved example
// repos import one, and encoding/xml's Marshal/Unmarshal with explicit
// struct tags is exactly the idiom the standard library was built for; see
// DESIGN.md for the full justification.

type xmlDocument struct {
	XMLName xml.Name `xml:"sshs"`
	Version string   `xml:"version,attr"`
	Root    xmlNode  `xml:"node"`
}

type xmlNode struct {
	Name     string     `xml:"name,attr"`
	Path     string     `xml:"path,attr"`
	Attrs    []xmlAttr  `xml:"attr"`
	Children []xmlNode  `xml:"node"`
}

type xmlAttr struct {
	Key   string `xml:"key,attr"`
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

// Export serializes the tree rooted at n to an `<sshs version="1.0">`
// document. Attributes flagged no-export are omitted.
func Export(root *Node, w io.Writer) error {
	doc := xmlDocument{
		Version: "1.0",
		Root:    buildXMLNode(root),
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("configtree: xml export: %w", err)
	}
	return nil
}

func buildXMLNode(n *Node) xmlNode {
	xn := xmlNode{Name: n.Name(), Path: n.Path()}
	for _, key := range n.AttributeKeys() {
		attr, ok := n.AttributeSnapshot(key)
		if !ok || attr.Flags.NoExport {
			continue
		}
		xn.Attrs = append(xn.Attrs, xmlAttr{
			Key:   key,
			Type:  attr.Type.String(),
			Value: formatValue(attr.Type, attr.Value),
		})
	}
	for _, child := range n.Children() {
		xn.Children = append(xn.Children, buildXMLNode(child))
	}
	return xn
}

// ImportOptions controls Import's strictness.
type ImportOptions struct {
	// Strict requires the document's root node name to equal RootName.
	Strict   bool
	RootName string
	Logger   *logrus.Logger
}

// Import reads an `<sshs>` document and applies it onto the tree rooted at
// target. Import is tolerant: unknown nodes are created on the fly;
// attributes that don't yet exist are created with the widest possible
// range for their type and flagged no-export; out-of-range or read-only
// violations on individual attributes are logged and skipped, not fatal.
// A malformed root aborts the import (returns an error) but never panics.
//
// All locks are released between reading bytes off r and
// applying the resulting attribute changes: the document is fully decoded
// into xmlDocument before any node or attribute is touched.
func Import(target *Node, r io.Reader, opts ImportOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	var doc xmlDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("configtree: xml import: malformed document: %w", err)
	}
	if doc.XMLName.Local != "sshs" {
		return fmt.Errorf("configtree: xml import: missing root <sshs> element")
	}
	if opts.Strict && doc.Root.Name != opts.RootName {
		return fmt.Errorf("configtree: xml import: strict mode root name mismatch: document has %q, expected %q", doc.Root.Name, opts.RootName)
	}

	applyXMLNode(target, doc.Root, logger)
	return nil
}

func applyXMLNode(n *Node, xn xmlNode, logger *logrus.Logger) {
	for _, xa := range xn.Attrs {
		applyXMLAttr(n, xa, logger)
	}
	for _, xc := range xn.Children {
		child := n.AddChild(xc.Name)
		applyXMLNode(child, xc, logger)
	}
}

func applyXMLAttr(n *Node, xa xmlAttr, logger *logrus.Logger) {
	attrType, ok := attrTypeFromXMLName(xa.Type)
	if !ok {
		logger.WithFields(logrus.Fields{
			"component": "configtree",
			"path":      n.Path(),
			"key":       xa.Key,
			"type":      xa.Type,
		}).Warn("xml import: unknown attribute type, skipping")
		return
	}

	value, err := parseValue(attrType, xa.Value)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"component": "configtree",
			"path":      n.Path(),
			"key":       xa.Key,
		}).WithError(err).Warn("xml import: malformed attribute value, skipping")
		return
	}

	if !n.HasAttribute(xa.Key) {
		n.CreateAttribute(xa.Key, attrType, value, widestRange(attrType), Flags{NoExport: true}, "")
		return
	}

	if err := n.PutAttribute(xa.Key, value); err != nil {
		logger.WithFields(logrus.Fields{
			"component": "configtree",
			"path":      n.Path(),
			"key":       xa.Key,
		}).WithError(err).Warn("xml import: attribute violation, skipping")
	}
}

func widestRange(t AttrType) Range {
	switch t {
	case TypeBool:
		return Range{}
	case TypeString:
		return Range{Min: int64(0), Max: int64(1 << 20)}
	case TypeInt8:
		return Range{Min: int64(-1 << 7), Max: int64(1<<7 - 1)}
	case TypeInt16:
		return Range{Min: int64(-1 << 15), Max: int64(1<<15 - 1)}
	case TypeInt32:
		return Range{Min: int64(-1 << 31), Max: int64(1<<31 - 1)}
	case TypeInt64:
		return Range{Min: int64(math.MinInt64), Max: int64(math.MaxInt64)}
	case TypeFloat32, TypeFloat64:
		return Range{Min: -math.MaxFloat64, Max: math.MaxFloat64}
	default:
		return Range{}
	}
}

func parseValue(t AttrType, raw string) (interface{}, error) {
	switch t {
	case TypeBool:
		return strconv.ParseBool(raw)
	case TypeInt8:
		v, err := strconv.ParseInt(raw, 10, 8)
		return int8(v), err
	case TypeInt16:
		v, err := strconv.ParseInt(raw, 10, 16)
		return int16(v), err
	case TypeInt32:
		v, err := strconv.ParseInt(raw, 10, 32)
		return int32(v), err
	case TypeInt64:
		v, err := strconv.ParseInt(raw, 10, 64)
		return v, err
	case TypeFloat32:
		v, err := strconv.ParseFloat(raw, 32)
		return float32(v), err
	case TypeFloat64:
		v, err := strconv.ParseFloat(raw, 64)
		return v, err
	case TypeString:
		return raw, nil
	default:
		return nil, fmt.Errorf("unsupported attribute type %v", t)
	}
}
