package column

import (
	"regexp"
	"strings"
)

// TypeTag is the decode family of a column, derived from its declared catalog type.
type TypeTag uint8

const (
	TypeUnsupported TypeTag = iota
	TypeString
	TypeBinary
	TypeNumeric
	TypeInteger
	TypeTemporal
	TypeRowID
)

func (t TypeTag) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeBinary:
		return "binary"
	case TypeNumeric:
		return "numeric"
	case TypeInteger:
		return "integer"
	case TypeTemporal:
		return "temporal"
	case TypeRowID:
		return "rowid"
	default:
		return "unsupported"
	}
}

type (
	// Descriptor is one projected column. Descriptors are built once per run and
	// shared read-only by every partition scan.
	Descriptor struct {
		Name         string
		DeclaredType string
		Tag          TypeTag
		// Position is the 1-based position within the projection
		Position int
	}

	// RawValue is a single cell as it came off the wire. A nil Bytes is SQL NULL.
	RawValue struct {
		Bytes  []byte
		Format int16
		OID    uint32
	}
)

const (
	TextFormat   int16 = 0
	BinaryFormat int16 = 1
)

var typeModifier = regexp.MustCompile(`\s*\(.*\)`)

var declaredTypes = map[string]TypeTag{
	"character varying": TypeString,
	"varchar":           TypeString,
	"character":         TypeString,
	"char":              TypeString,
	"bpchar":            TypeString,
	"text":              TypeString,
	"name":              TypeString,
	"citext":            TypeString,
	"string":            TypeString,
	"xml":               TypeString,
	"json":              TypeString,
	"jsonb":             TypeString,

	"bytea": TypeBinary,
	"bytes": TypeBinary,

	"numeric":          TypeNumeric,
	"decimal":          TypeNumeric,
	"real":             TypeNumeric,
	"double precision": TypeNumeric,
	"float4":           TypeNumeric,
	"float8":           TypeNumeric,
	"float":            TypeNumeric,

	"smallint": TypeInteger,
	"integer":  TypeInteger,
	"bigint":   TypeInteger,
	"int2":     TypeInteger,
	"int4":     TypeInteger,
	"int8":     TypeInteger,
	"int":      TypeInteger,

	"date":                        TypeTemporal,
	"timestamp":                   TypeTemporal,
	"timestamp without time zone": TypeTemporal,
	"timestamp with time zone":    TypeTemporal,
	"timestamptz":                 TypeTemporal,

	"tid": TypeRowID,
	"oid": TypeRowID,
}

// ParseTypeTag maps a catalog type name such as "character varying(4000)" to its tag.
// Names it does not know map to TypeUnsupported.
func ParseTypeTag(declared string) TypeTag {
	return declaredTypes[normalizeType(declared)]
}

func normalizeType(declared string) string {
	return strings.ToLower(strings.TrimSpace(typeModifier.ReplaceAllString(declared, "")))
}

// NewDescriptor builds a descriptor for the column at the given 1-based position.
func NewDescriptor(name, declaredType string, position int) Descriptor {
	return Descriptor{
		Name:         name,
		DeclaredType: declaredType,
		Tag:          ParseTypeTag(declaredType),
		Position:     position,
	}
}

// NeedsTextProjection is true for structured types that have to be selected
// through a ::text cast rather than as the raw column.
func (d Descriptor) NeedsTextProjection() bool {
	switch normalizeType(d.DeclaredType) {
	case "xml", "json", "jsonb":
		return true
	default:
		return false
	}
}
