// Package canonical defines the unified product record shared by every shop
// pipeline: a fixed 32-field template, validation against that template, drift
// analysis over record populations, and stable content hashing.
//
// The template is the single source of truth for field names, types, and
// defaults. Transformers produce records FROM this template and the validator
// checks records AGAINST it, so the two can never disagree about shape.
package canonical

// Record is a canonical product record keyed by template field name.
//
// A map is used instead of a struct because the template distinguishes three
// presence modes that a struct cannot express at once:
//   - required fields are always present with a typed value
//   - nullable fields are always present, typed or nil
//   - optional fields are either present-and-typed or absent entirely
//
// Absence (key missing) and null (key present, value nil) are distinct states.
type Record map[string]any

// Kind is the value type a template field accepts.
type Kind int

// Field value kinds. Arrays, objects, and functions are never valid at leaf
// positions of a canonical record.
const (
	Text Kind = iota
	Number
	Boolean
)

// String returns the kind name used in validation reports.
func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Number:
		return "number"
	case Boolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// Presence is a template field's presence mode.
type Presence int

// Presence modes, in decreasing strictness.
const (
	// Required fields are always present with a typed, non-nil value.
	Required Presence = iota
	// Nullable fields are always present; the value is typed or nil.
	Nullable
	// Optional fields may be absent; when present the value must be typed.
	Optional
)

// FieldSpec describes one field of the canonical template.
type FieldSpec struct {
	// Name is the canonical field name (snake_case, matches persisted columns).
	Name string
	// Kind is the accepted value type.
	Kind Kind
	// Presence is the field's presence mode.
	Presence Presence
	// Default is the value NewRecord fills in when the input does not supply
	// the field. Nil for nullable fields; unused for optional fields.
	Default any
}

// FieldCount is the number of fields in the canonical template.
const FieldCount = 32

// DefaultSchemaVersion tags records produced when no explicit schema version
// is configured. Processed rows are keyed per version so a newer template can
// coexist with already-persisted records.
const DefaultSchemaVersion = "1.0.0"

// fieldTable is the canonical template in declaration order. Identity fields
// first, then branding, packaging, quantity, price, promotion, parsed
// promotion, normalization, discount, availability.
var fieldTable = [FieldCount]FieldSpec{
	{Name: "unified_id", Kind: Text, Presence: Required, Default: ""},
	{Name: "shop_type", Kind: Text, Presence: Required, Default: ""},
	{Name: "title", Kind: Text, Presence: Required, Default: ""},
	{Name: "main_category", Kind: Text, Presence: Nullable},
	{Name: "brand", Kind: Text, Presence: Required, Default: ""},
	{Name: "image_url", Kind: Text, Presence: Required, Default: ""},
	{Name: "sales_unit_size", Kind: Text, Presence: Required, Default: ""},
	{Name: "quantity_amount", Kind: Number, Presence: Required, Default: float64(0)},
	{Name: "quantity_unit", Kind: Text, Presence: Required, Default: ""},
	{Name: "default_quantity_amount", Kind: Number, Presence: Optional},
	{Name: "default_quantity_unit", Kind: Text, Presence: Optional},
	{Name: "price_before_bonus", Kind: Number, Presence: Required, Default: float64(0)},
	{Name: "current_price", Kind: Number, Presence: Required, Default: float64(0)},
	{Name: "unit_price", Kind: Number, Presence: Optional},
	{Name: "unit_price_unit", Kind: Text, Presence: Optional},
	{Name: "is_promotion", Kind: Boolean, Presence: Required, Default: false},
	{Name: "promotion_type", Kind: Text, Presence: Required, Default: "none"},
	{Name: "promotion_mechanism", Kind: Text, Presence: Required, Default: "none"},
	{Name: "promotion_start_date", Kind: Text, Presence: Nullable},
	{Name: "promotion_end_date", Kind: Text, Presence: Nullable},
	{Name: "parsed_promotion_effective_unit_price", Kind: Number, Presence: Optional},
	{Name: "parsed_promotion_required_quantity", Kind: Number, Presence: Optional},
	{Name: "parsed_promotion_total_price", Kind: Number, Presence: Optional},
	{Name: "parsed_promotion_is_multi_purchase_required", Kind: Boolean, Presence: Optional},
	{Name: "normalized_quantity_amount", Kind: Number, Presence: Optional},
	{Name: "normalized_quantity_unit", Kind: Text, Presence: Optional},
	{Name: "conversion_factor", Kind: Number, Presence: Optional},
	{Name: "price_per_standard_unit", Kind: Number, Presence: Optional},
	{Name: "current_price_per_standard_unit", Kind: Number, Presence: Optional},
	{Name: "discount_absolute", Kind: Number, Presence: Optional},
	{Name: "discount_percentage", Kind: Number, Presence: Optional},
	{Name: "is_active", Kind: Boolean, Presence: Required, Default: true},
}

// fieldIndex provides O(1) field lookup during validation.
var fieldIndex = func() map[string]FieldSpec {
	idx := make(map[string]FieldSpec, FieldCount)
	for _, spec := range fieldTable {
		idx[spec.Name] = spec
	}

	return idx
}()

// Fields returns the template field specs in declaration order.
// The returned slice is a copy; callers may not mutate the template.
func Fields() []FieldSpec {
	specs := make([]FieldSpec, FieldCount)
	copy(specs, fieldTable[:])

	return specs
}

// Lookup returns the spec for a field name and whether the name is part of
// the template.
func Lookup(name string) (FieldSpec, bool) {
	spec, ok := fieldIndex[name]

	return spec, ok
}

// NewRecord builds a canonical record from a partial one.
//
// Required and nullable fields are always populated: from partial when it
// supplies a usable value, from template defaults otherwise (nullable fields
// default to nil). Optional fields are included only when partial supplies a
// non-nil value. Keys outside the template are dropped. The input is never
// mutated.
func NewRecord(partial Record) Record {
	record := make(Record, FieldCount)

	for _, spec := range fieldTable {
		value, present := partial[spec.Name]

		switch spec.Presence {
		case Required:
			if present && value != nil {
				record[spec.Name] = value
			} else {
				record[spec.Name] = spec.Default
			}
		case Nullable:
			if present {
				record[spec.Name] = value
			} else {
				record[spec.Name] = nil
			}
		case Optional:
			if present && value != nil {
				record[spec.Name] = value
			}
		}
	}

	return record
}

// EnsureComplete coerces arbitrary input into a complete canonical record.
//
// Accepts a Record, a plain map, or anything else (treated as empty). The
// result always satisfies the template's presence rules for required and
// nullable fields. The input is never mutated.
func EnsureComplete(input any) Record {
	switch v := input.(type) {
	case Record:
		return NewRecord(v)
	case map[string]any:
		return NewRecord(Record(v))
	default:
		return NewRecord(nil)
	}
}

// Clone returns a shallow copy of the record. Canonical records hold only
// primitive leaves, so a shallow copy is a full copy.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}

	dup := make(Record, len(r))
	for k, v := range r {
		dup[k] = v
	}

	return dup
}

// ShopType returns the record's shop_type field, or "" when unset.
func (r Record) ShopType() string {
	if v, ok := r["shop_type"].(string); ok {
		return v
	}

	return ""
}

// UnifiedIDField returns the record's unified_id field, or "" when unset.
func (r Record) UnifiedIDField() string {
	if v, ok := r["unified_id"].(string); ok {
		return v
	}

	return ""
}
