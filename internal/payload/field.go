package payload

// FieldType is the closed set of field types a form can carry.
type FieldType string

const (
	FieldText        FieldType = "text"
	FieldEmail       FieldType = "email"
	FieldPhone       FieldType = "phone"
	FieldNumber      FieldType = "number"
	FieldDate        FieldType = "date"
	FieldTime        FieldType = "time"
	FieldTextarea    FieldType = "textarea"
	FieldCheckbox    FieldType = "checkbox"
	FieldRadio       FieldType = "radio"
	FieldSelect      FieldType = "select"
	FieldMultiselect FieldType = "multiselect"
	FieldFile        FieldType = "file"
	FieldSignature   FieldType = "signature"
	FieldRating      FieldType = "rating"
	FieldSlider      FieldType = "slider"
	FieldMatrix      FieldType = "matrix"
	FieldDivider     FieldType = "divider"
	FieldHTML        FieldType = "html"
	FieldPagebreak   FieldType = "pagebreak"
	FieldSection     FieldType = "section"
	FieldCalculated  FieldType = "calculated"
)

var validFieldTypes = map[FieldType]struct{}{
	FieldText: {}, FieldEmail: {}, FieldPhone: {}, FieldNumber: {},
	FieldDate: {}, FieldTime: {}, FieldTextarea: {}, FieldCheckbox: {},
	FieldRadio: {}, FieldSelect: {}, FieldMultiselect: {}, FieldFile: {},
	FieldSignature: {}, FieldRating: {}, FieldSlider: {}, FieldMatrix: {},
	FieldDivider: {}, FieldHTML: {}, FieldPagebreak: {}, FieldSection: {},
	FieldCalculated: {},
}

// IsValid reports whether t is a member of the closed field type set.
func (t FieldType) IsValid() bool {
	_, ok := validFieldTypes[t]
	return ok
}

// expectsCompoundValue reports whether fields of this type store their value
// as a JSON array or object rather than a plain scalar.
func (t FieldType) expectsCompoundValue() bool {
	switch t {
	case FieldMultiselect, FieldMatrix, FieldCheckbox, FieldFile:
		return true
	default:
		return false
	}
}

// FieldDescriptor is the snapshot of a field taken at payload-build time.
// It does not track later edits to the field.
type FieldDescriptor struct {
	ID    string    `json:"id"`
	Label string    `json:"label"`
	Type  FieldType `json:"type"`
}
