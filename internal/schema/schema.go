// Package schema turns declarative YAML field descriptors into immutable,
// typed schemas. Every other component treats field names, types and
// labels as data loaded here — adding a lab-specific column means editing
// a descriptor, not code.
package schema

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Datatype enumerates the value types a declared field may hold.
type Datatype string

const (
	TypeStr   Datatype = "str"
	TypeInt   Datatype = "int"
	TypeFloat Datatype = "float"
	TypeDate  Datatype = "date"
)

// FieldSpec is one declared column.
type FieldSpec struct {
	Attribute   string   // stable internal key, e.g. SAMPLE_ID
	SourceField string   // raw column name in the file
	Label       string   // human-readable
	Datatype    Datatype
	DateFormat  string // strptime-style, set iff Datatype == TypeDate
	Required    bool
	Identifier  bool // identifier fields are always required
}

// GoLayout returns the Go reference layout for a date field.
func (f FieldSpec) GoLayout() string { return strptimeToGoLayout(f.DateFormat) }

// SchemaError reports a malformed descriptor. Fatal: nothing is
// processed when a descriptor fails to load.
type SchemaError struct {
	Path string
	Msg  string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema %s: %s", e.Path, e.Msg)
}

// Schema is an ordered, immutable collection of FieldSpecs for one
// data-source kind.
type Schema struct {
	name       string
	fields     []FieldSpec
	byAttr     map[string]int
	identifier string
}

// Name returns the source kind the schema was loaded for.
func (s *Schema) Name() string { return s.name }

// Fields returns the specs in declaration order. The returned slice is a
// copy; the schema itself never changes after load.
func (s *Schema) Fields() []FieldSpec {
	out := make([]FieldSpec, len(s.fields))
	copy(out, s.fields)
	return out
}

// Resolve returns the spec for an attribute name, or nil when unknown.
func (s *Schema) Resolve(attribute string) *FieldSpec {
	i, ok := s.byAttr[strings.ToUpper(attribute)]
	if !ok {
		return nil
	}
	f := s.fields[i]
	return &f
}

// IdentifierField returns the designated identifier spec, or nil when the
// descriptor declares none.
func (s *Schema) IdentifierField() *FieldSpec {
	if s.identifier == "" {
		return nil
	}
	return s.Resolve(s.identifier)
}

// Len returns the number of declared fields.
func (s *Schema) Len() int { return len(s.fields) }

// descriptorEntry mirrors one YAML mapping value. Unknown keys are
// ignored for forward compatibility.
type descriptorEntry struct {
	Field      string `yaml:"field"`
	Label      string `yaml:"label"`
	Datatype   string `yaml:"datatype"`
	DateFormat string `yaml:"dateformat"`
	Required   bool   `yaml:"required"`
	Identifier bool   `yaml:"identifier"`
}

// Load parses a schema descriptor file.
//
// Descriptor format, one entry per attribute:
//
//	sample_id:
//	  field: study_id
//	  label: Sample ID
//	  datatype: str
//	  identifier: true
func Load(name, path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &SchemaError{Path: path, Msg: err.Error()}
	}
	return Parse(name, path, data)
}

// Parse builds a Schema from raw descriptor bytes. Split from Load so
// tests can feed synthetic descriptors without touching disk.
func Parse(name, path string, data []byte) (*Schema, error) {
	// Decode via yaml.Node to preserve declaration order; a plain map
	// would shuffle the columns on every load.
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &SchemaError{Path: path, Msg: err.Error()}
	}
	if len(root.Content) == 0 {
		return nil, &SchemaError{Path: path, Msg: "empty descriptor"}
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, &SchemaError{Path: path, Msg: "descriptor must be a mapping of attribute names"}
	}

	s := &Schema{name: name, byAttr: make(map[string]int)}
	seenFields := make(map[string]string)

	for i := 0; i+1 < len(doc.Content); i += 2 {
		keyNode, valNode := doc.Content[i], doc.Content[i+1]
		attr := strings.ToUpper(strings.TrimSpace(keyNode.Value))

		var entry descriptorEntry
		if err := valNode.Decode(&entry); err != nil {
			return nil, &SchemaError{Path: path, Msg: fmt.Sprintf("attribute %s: %v", attr, err)}
		}
		if entry.Field == "" {
			return nil, &SchemaError{Path: path, Msg: fmt.Sprintf("attribute %s: missing field name", attr)}
		}
		if _, dup := s.byAttr[attr]; dup {
			return nil, &SchemaError{Path: path, Msg: fmt.Sprintf("duplicate attribute %s", attr)}
		}
		if prev, dup := seenFields[entry.Field]; dup {
			return nil, &SchemaError{Path: path, Msg: fmt.Sprintf("field %q declared by both %s and %s", entry.Field, prev, attr)}
		}

		dt := TypeStr
		if entry.Datatype != "" {
			switch Datatype(entry.Datatype) {
			case TypeStr, TypeInt, TypeFloat, TypeDate:
				dt = Datatype(entry.Datatype)
			default:
				return nil, &SchemaError{Path: path, Msg: fmt.Sprintf("attribute %s: unknown datatype %q", attr, entry.Datatype)}
			}
		}
		if dt == TypeDate && entry.DateFormat == "" {
			return nil, &SchemaError{Path: path, Msg: fmt.Sprintf("attribute %s: date field requires a dateformat", attr)}
		}
		if dt != TypeDate && entry.DateFormat != "" {
			return nil, &SchemaError{Path: path, Msg: fmt.Sprintf("attribute %s: dateformat only valid for date fields", attr)}
		}

		spec := FieldSpec{
			Attribute:   attr,
			SourceField: entry.Field,
			Label:       entry.Label,
			Datatype:    dt,
			DateFormat:  entry.DateFormat,
			Required:    entry.Required || entry.Identifier,
			Identifier:  entry.Identifier,
		}
		if spec.Identifier {
			if s.identifier != "" {
				return nil, &SchemaError{Path: path, Msg: fmt.Sprintf("multiple identifier fields: %s and %s", s.identifier, attr)}
			}
			s.identifier = attr
		}

		s.byAttr[attr] = len(s.fields)
		s.fields = append(s.fields, spec)
		seenFields[entry.Field] = attr
	}

	if len(s.fields) == 0 {
		return nil, &SchemaError{Path: path, Msg: "descriptor declares no fields"}
	}
	return s, nil
}
