package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type (
	// SchemaAccumulator grows a parquet-go JSON schema from flattened report rows.
	// Columns keep the order they were first seen in.
	SchemaAccumulator struct {
		fields []*SchemaField
		seen   map[string]bool
	}

	SchemaField struct {
		Name           string
		Type           string
		ConvertedType  string
		RepetitionType RepetitionType
		Encoding       string
	}

	jsonSchema struct {
		Tag    string        `json:",omitempty"`
		Fields []*jsonSchema `json:",omitempty"`
	}

	RepetitionType string
)

var (
	Optional RepetitionType = "OPTIONAL"
	Required RepetitionType = "REQUIRED"
)

func NewSchemaAccumulator() *SchemaAccumulator {
	return &SchemaAccumulator{seen: make(map[string]bool)}
}

// WriteRow adds any column of row not seen before. Keys are visited sorted so
// the schema does not depend on map order.
func (sa *SchemaAccumulator) WriteRow(row map[string]any) {
	keys := make([]string, 0, len(row))
	for key := range row {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if sa.seen[key] {
			continue
		}
		field := fieldFor(key, row[key])
		if field == nil {
			continue
		}
		sa.seen[key] = true
		sa.fields = append(sa.fields, field)
	}
}

// fieldFor returns nil for values it cannot type, like a JSON null, so a later
// row can still decide the column.
func fieldFor(key string, v any) *SchemaField {
	field := &SchemaField{Name: key, RepetitionType: Optional}
	switch v.(type) {
	case string:
		field.Type = "BYTE_ARRAY"
		field.ConvertedType = "UTF8"
		field.Encoding = "PLAIN"
	case bool:
		field.Type = "BOOLEAN"
	case float64:
		// every JSON number lands here
		field.Type = "DOUBLE"
	default:
		return nil
	}
	return field
}

func (sa *SchemaAccumulator) ColumnNames() []string {
	var cols []string
	for _, f := range sa.fields {
		cols = append(cols, f.Name)
	}
	return cols
}

func (f *SchemaField) tag() string {
	var tags []string
	if f.Type != "" {
		tags = append(tags, "type="+f.Type)
	}
	if f.ConvertedType != "" {
		tags = append(tags, "convertedtype="+f.ConvertedType)
	}
	if f.Encoding != "" {
		tags = append(tags, "encoding="+f.Encoding)
	}
	tags = append(tags, "name="+f.Name)
	if f.RepetitionType != "" {
		tags = append(tags, "repetitiontype="+string(f.RepetitionType))
	}
	return strings.Join(tags, ", ")
}

// SchemaString returns the schema in the JSON form parquet-go's JSON writer takes.
func (sa *SchemaAccumulator) SchemaString() (string, error) {
	root := jsonSchema{Tag: "name=parquet_go_root, repetitiontype=" + string(Required)}
	for _, f := range sa.fields {
		root.Fields = append(root.Fields, &jsonSchema{Tag: f.tag()})
	}
	b, err := json.Marshal(root)
	if err != nil {
		return "", fmt.Errorf("error in json.Marshal: %w", err)
	}
	return string(b), nil
}
