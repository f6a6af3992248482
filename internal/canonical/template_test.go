package canonical

import (
	"testing"
)

func TestFields_TableShape(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	specs := Fields()
	if len(specs) != FieldCount {
		t.Fatalf("Fields() returned %d specs, want %d", len(specs), FieldCount)
	}

	seen := make(map[string]bool, FieldCount)
	for _, spec := range specs {
		if spec.Name == "" {
			t.Error("template contains a field with empty name")
		}

		if seen[spec.Name] {
			t.Errorf("duplicate field name %q in template", spec.Name)
		}

		seen[spec.Name] = true

		if spec.Presence == Required && spec.Default == nil {
			t.Errorf("required field %q has nil default", spec.Name)
		}
	}

	if !seen["unified_id"] || !seen["is_active"] || !seen["promotion_type"] {
		t.Error("template is missing identity or availability fields")
	}
}

func TestNewRecord_Defaults(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	record := NewRecord(nil)

	tests := []struct {
		field string
		want  any
	}{
		{"shop_type", ""},
		{"brand", ""},
		{"quantity_amount", float64(0)},
		{"is_promotion", false},
		{"promotion_type", "none"},
		{"promotion_mechanism", "none"},
		{"is_active", true},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			got, present := record[tt.field]
			if !present {
				t.Fatalf("field %q absent from defaulted record", tt.field)
			}

			if got != tt.want {
				t.Errorf("field %q = %v, want %v", tt.field, got, tt.want)
			}
		})
	}

	// Nullable fields are present as nil; optional fields are absent.
	if v, present := record["main_category"]; !present || v != nil {
		t.Errorf("main_category = (%v, present=%v), want (nil, true)", v, present)
	}

	if _, present := record["unit_price"]; present {
		t.Error("optional unit_price should be absent from a defaulted record")
	}
}

func TestNewRecord_PartialValuesWin(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	partial := Record{
		"shop_type":     "ah",
		"title":         "Milk 1L",
		"current_price": 1.29,
		"unit_price":    1.29,
		"main_category": "Dairy",
		"bogus":         "dropped",
	}

	record := NewRecord(partial)

	if record["shop_type"] != "ah" || record["title"] != "Milk 1L" {
		t.Errorf("partial identity values not carried: %v", record)
	}

	if record["current_price"] != 1.29 {
		t.Errorf("current_price = %v, want 1.29", record["current_price"])
	}

	if record["unit_price"] != 1.29 {
		t.Errorf("optional unit_price = %v, want 1.29", record["unit_price"])
	}

	if record["main_category"] != "Dairy" {
		t.Errorf("main_category = %v, want Dairy", record["main_category"])
	}

	if _, present := record["bogus"]; present {
		t.Error("keys outside the template must be dropped")
	}

	// Input must not be mutated.
	if len(partial) != 6 {
		t.Errorf("input partial mutated, now has %d keys", len(partial))
	}
}

func TestNewRecord_NilRequiredFallsBackToDefault(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	record := NewRecord(Record{"brand": nil, "promotion_start_date": nil})

	if record["brand"] != "" {
		t.Errorf("nil required brand = %v, want default \"\"", record["brand"])
	}

	if v, present := record["promotion_start_date"]; !present || v != nil {
		t.Errorf("nullable promotion_start_date = (%v, %v), want (nil, true)", v, present)
	}
}

func TestEnsureComplete_ArbitraryInput(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name  string
		input any
	}{
		{"nil input", nil},
		{"plain map", map[string]any{"shop_type": "jumbo"}},
		{"record", Record{"shop_type": "aldi"}},
		{"scalar", 42},
	}

	validator := NewValidator()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := EnsureComplete(tt.input)

			report := validator.Validate(record, Options{AllowExtras: false, CheckTypes: true})
			if !report.OK {
				t.Errorf("EnsureComplete produced invalid record: missing=%v typeErrors=%v extras=%v",
					report.Missing, report.TypeErrors, report.Extras)
			}
		})
	}
}

func TestRecordClone(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	original := NewRecord(Record{"shop_type": "plus", "title": "Koffie"})

	cloned := original.Clone()
	cloned["title"] = "Thee"

	if original["title"] != "Koffie" {
		t.Errorf("mutating clone changed original: %v", original["title"])
	}

	var nilRecord Record
	if nilRecord.Clone() != nil {
		t.Error("cloning a nil record should return nil")
	}
}
