package schema

import (
	"strings"
	"testing"
)

const sampleDescriptor = `
sample_id:
  field: study_id
  label: Sample ID
  datatype: str
  identifier: true
collection_date:
  field: collected_on
  label: Collection Date
  datatype: date
  dateformat: "%Y/%m/%d"
  required: true
parasitaemia:
  field: parasitaemia_ul
  label: Parasitaemia (per uL)
  datatype: int
volume:
  field: volume_ml
  datatype: float
`

func TestParseKeepsDeclarationOrder(t *testing.T) {
	s, err := Parse("sample", "sample.yml", []byte(sampleDescriptor))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []string{"SAMPLE_ID", "COLLECTION_DATE", "PARASITAEMIA", "VOLUME"}
	fields := s.Fields()
	if len(fields) != len(want) {
		t.Fatalf("got %d fields, want %d", len(fields), len(want))
	}
	for i, attr := range want {
		if fields[i].Attribute != attr {
			t.Errorf("field %d: got %s, want %s", i, fields[i].Attribute, attr)
		}
	}
}

func TestParseIdentifierImpliesRequired(t *testing.T) {
	s, err := Parse("sample", "sample.yml", []byte(sampleDescriptor))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	id := s.IdentifierField()
	if id == nil {
		t.Fatal("no identifier field")
	}
	if id.Attribute != "SAMPLE_ID" {
		t.Errorf("identifier = %s, want SAMPLE_ID", id.Attribute)
	}
	if !id.Required {
		t.Error("identifier field should be required")
	}
}

func TestResolveIsCaseInsensitive(t *testing.T) {
	s, err := Parse("sample", "sample.yml", []byte(sampleDescriptor))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if spec := s.Resolve("parasitaemia"); spec == nil || spec.Datatype != TypeInt {
		t.Errorf("Resolve(parasitaemia) = %+v, want int field", spec)
	}
	if spec := s.Resolve("NO_SUCH"); spec != nil {
		t.Errorf("Resolve(NO_SUCH) = %+v, want nil", spec)
	}
}

func TestParseRejectsBadDescriptors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing field name",
			yaml: "a:\n  label: A\n",
			want: "missing field name",
		},
		{
			name: "duplicate attribute",
			yaml: "a:\n  field: x\nA:\n  field: y\n",
			want: "duplicate attribute",
		},
		{
			name: "colliding source fields",
			yaml: "a:\n  field: x\nb:\n  field: x\n",
			want: "declared by both",
		},
		{
			name: "unknown datatype",
			yaml: "a:\n  field: x\n  datatype: decimal\n",
			want: "unknown datatype",
		},
		{
			name: "date without format",
			yaml: "a:\n  field: x\n  datatype: date\n",
			want: "requires a dateformat",
		},
		{
			name: "dateformat on non-date",
			yaml: "a:\n  field: x\n  datatype: int\n  dateformat: \"%Y\"\n",
			want: "only valid for date fields",
		},
		{
			name: "two identifiers",
			yaml: "a:\n  field: x\n  identifier: true\nb:\n  field: y\n  identifier: true\n",
			want: "multiple identifier fields",
		},
		{
			name: "no fields",
			yaml: "{}\n",
			want: "declares no fields",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse("t", "t.yml", []byte(tc.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if _, ok := err.(*SchemaError); !ok {
				t.Fatalf("expected *SchemaError, got %T", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestStrptimeToGoLayout(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"%Y/%m/%d", "2006/01/02"},
		{"%d-%m-%Y", "02-01-2006"},
		{"%Y-%m-%dT%H:%M:%S", "2006-01-02T15:04:05"},
		{"%y%m%d", "060102"},
	}
	for _, tc := range cases {
		if got := strptimeToGoLayout(tc.in); got != tc.want {
			t.Errorf("strptimeToGoLayout(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
