package payload

import (
	"encoding/json"
	"testing"
)

func TestParseValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		fieldType FieldType
		stored    string
		present   bool
		wantKind  ValueKind
		wantJSON  string
	}{
		{
			name:      "plain text stays a string",
			fieldType: FieldText,
			stored:    "hello",
			present:   true,
			wantKind:  KindString,
			wantJSON:  `"hello"`,
		},
		{
			name:      "json array is parsed",
			fieldType: FieldMultiselect,
			stored:    `["a","b"]`,
			present:   true,
			wantKind:  KindArray,
			wantJSON:  `["a","b"]`,
		},
		{
			name:      "json object is parsed",
			fieldType: FieldMatrix,
			stored:    `{"row1":"col2"}`,
			present:   true,
			wantKind:  KindObject,
			wantJSON:  `{"row1":"col2"}`,
		},
		{
			name:      "array sniffing works for scalar field types too",
			fieldType: FieldText,
			stored:    `[1,2]`,
			present:   true,
			wantKind:  KindArray,
			wantJSON:  `[1,2]`,
		},
		{
			name:      "malformed json on compound field falls back to raw",
			fieldType: FieldMultiselect,
			stored:    `["broken`,
			present:   true,
			wantKind:  KindRaw,
			wantJSON:  `"[\"broken"`,
		},
		{
			name:      "malformed json on scalar field stays a string",
			fieldType: FieldText,
			stored:    `{not json`,
			present:   true,
			wantKind:  KindString,
			wantJSON:  `"{not json"`,
		},
		{
			name:      "numeric-looking string is not coerced",
			fieldType: FieldNumber,
			stored:    "42",
			present:   true,
			wantKind:  KindString,
			wantJSON:  `"42"`,
		},
		{
			name:     "absent value is null",
			present:  false,
			wantKind: KindNull,
			wantJSON: `null`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ParseValue(tt.fieldType, tt.stored, tt.present)
			if v.Kind() != tt.wantKind {
				t.Errorf("Kind() = %d, want %d", v.Kind(), tt.wantKind)
			}
			got, err := json.Marshal(v)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(got) != tt.wantJSON {
				t.Errorf("Marshal = %s, want %s", got, tt.wantJSON)
			}
		})
	}
}

func TestValueMarshalIsDeterministic(t *testing.T) {
	t.Parallel()

	v := ParseValue(FieldMatrix, `{"b":"2","a":"1","c":"3"}`, true)
	first, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if string(again) != string(first) {
			t.Fatalf("marshal varies between calls: %s vs %s", first, again)
		}
	}
}
