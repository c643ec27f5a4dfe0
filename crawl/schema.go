package crawl

import (
	"encoding/json"
	"fmt"
)

// Field types understood by the schema renderer.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
)

// SchemaField is one named, typed field of the extraction target.
type SchemaField struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Schema describes the structure the extraction engine should produce.
type Schema struct {
	Name   string        `yaml:"name" json:"name"`
	Fields []SchemaField `yaml:"fields" json:"fields"`
}

// DefaultSchema is the product tile shape: title, price and review count.
func DefaultSchema() Schema {
	return Schema{
		Name: "Light",
		Fields: []SchemaField{
			{Name: "title", Type: TypeString},
			{Name: "price", Type: TypeString},
			{Name: "reviews", Type: TypeInteger},
		},
	}
}

// FieldNames returns the schema field names in declaration order.
func (s Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Validate checks field names are unique and types are known.
func (s Schema) Validate() error {
	if len(s.Fields) == 0 {
		return fmt.Errorf("%w: schema has no fields", ErrInvalidTarget)
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("%w: schema field without a name", ErrInvalidTarget)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%w: duplicate schema field %q", ErrInvalidTarget, f.Name)
		}
		seen[f.Name] = struct{}{}
		switch f.Type {
		case TypeString, TypeInteger, TypeNumber, TypeBoolean:
		default:
			return fmt.Errorf("%w: field %q has unknown type %q", ErrInvalidTarget, f.Name, f.Type)
		}
	}
	return nil
}

type jsonSchemaProp struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type jsonSchemaDoc struct {
	Title      string                    `json:"title"`
	Type       string                    `json:"type"`
	Properties map[string]jsonSchemaProp `json:"properties"`
	Required   []string                  `json:"required"`
}

// JSONSchema renders s as a JSON Schema object for the extraction prompt.
func (s Schema) JSONSchema() json.RawMessage {
	doc := jsonSchemaDoc{
		Title:      s.Name,
		Type:       "object",
		Properties: make(map[string]jsonSchemaProp, len(s.Fields)),
		Required:   s.FieldNames(),
	}
	for _, f := range s.Fields {
		doc.Properties[f.Name] = jsonSchemaProp{
			Type:        f.Type,
			Title:       f.Name,
			Description: f.Description,
		}
	}
	// Only strings and maps of strings; Marshal cannot fail.
	b, _ := json.Marshal(doc)
	return b
}
