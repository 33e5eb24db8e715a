package configtree

import "fmt"

// AttrType is the fixed type tag of an attribute value. A given key has a
// single type for the lifetime of the tree.
type AttrType int

const (
	TypeBool AttrType = iota
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeString
)

// String renders the type the way the XML schema names it (
// "bool, byte, short, int, long, float, double, string").
func (t AttrType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt8:
		return "byte"
	case TypeInt16:
		return "short"
	case TypeInt32:
		return "int"
	case TypeInt64:
		return "long"
	case TypeFloat32:
		return "float"
	case TypeFloat64:
		return "double"
	case TypeString:
		return "string"
	default:
		return "unknown"
	}
}

func attrTypeFromXMLName(name string) (AttrType, bool) {
	switch name {
	case "bool":
		return TypeBool, true
	case "byte":
		return TypeInt8, true
	case "short":
		return TypeInt16, true
	case "int":
		return TypeInt32, true
	case "long":
		return TypeInt64, true
	case "float":
		return TypeFloat32, true
	case "double":
		return TypeFloat64, true
	case "string":
		return TypeString, true
	default:
		return 0, false
	}
}

// Flags are the per-attribute behavior modifiers.
type Flags struct {
	ReadOnly   bool
	NotifyOnly bool // only ever valid on TypeBool attributes
	NoExport   bool
}

// Range bounds an attribute's value: numeric min/max for numeric types, or
// a length bound (in Min/Max as int64-compatible values) for strings.
type Range struct {
	Min interface{}
	Max interface{}
}

// Attribute is one typed, ranged, flagged value stored on a ConfigNode.
// Access is always mediated by the owning node's transaction lock; an
// Attribute has no lock of its own.
type Attribute struct {
	Type        AttrType
	Value       interface{}
	Range       Range
	Flags       Flags
	Description string
}

func (a *Attribute) withinRange(v interface{}) bool {
	switch a.Type {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return false
		}
		minLen, _ := toInt64(a.Range.Min)
		maxLen, okMax := toInt64(a.Range.Max)
		l := int64(len(s))
		return l >= minLen && (!okMax || l <= maxLen)
	case TypeBool:
		return true
	default:
		fv, ok := toFloat64(v)
		if !ok {
			return false
		}
		minV, okMin := toFloat64(a.Range.Min)
		maxV, okMax := toFloat64(a.Range.Max)
		if okMin && fv < minV {
			return false
		}
		if okMax && fv > maxV {
			return false
		}
		return true
	}
}

func sameType(t AttrType, v interface{}) bool {
	switch t {
	case TypeBool:
		_, ok := v.(bool)
		return ok
	case TypeInt8:
		_, ok := v.(int8)
		return ok
	case TypeInt16:
		_, ok := v.(int16)
		return ok
	case TypeInt32:
		_, ok := v.(int32)
		return ok
	case TypeInt64:
		_, ok := v.(int64)
		return ok
	case TypeFloat32:
		_, ok := v.(float32)
		return ok
	case TypeFloat64:
		_, ok := v.(float64)
		return ok
	case TypeString:
		_, ok := v.(string)
		return ok
	default:
		return false
	}
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

func formatValue(t AttrType, v interface{}) string {
	switch t {
	case TypeBool:
		if v.(bool) {
			return "true"
		}
		return "false"
	case TypeString:
		return v.(string)
	default:
		return fmt.Sprintf("%v", v)
	}
}
