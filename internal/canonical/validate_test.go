package canonical

import (
	"testing"
)

// validRecord builds a record that satisfies the template, with a handful of
// optional fields populated the way shop transformers do.
func validRecord() Record {
	return NewRecord(Record{
		"unified_id":     "ah_1010_1.0.0",
		"shop_type":      "ah",
		"title":          "Milk 1L",
		"main_category":  "Dairy",
		"brand":          "B",
		"image_url":      "https://static.example/u.jpg",
		"quantity_amount": 1.0,
		"quantity_unit":  "l",
		"current_price":  1.29,
		"price_before_bonus": 1.49,
		"unit_price":     1.29,
		"unit_price_unit": "l",
	})
}

func TestValidate_CompleteRecordScoresOne(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	validator := NewValidator()

	report := validator.Validate(validRecord(), Options{AllowExtras: false, CheckTypes: true})

	if !report.OK {
		t.Fatalf("valid record rejected: missing=%v extras=%v typeErrors=%v",
			report.Missing, report.Extras, report.TypeErrors)
	}

	if report.Score != 1 {
		t.Errorf("score = %v, want 1", report.Score)
	}
}

func TestValidate_MissingRequiredField(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	record := validRecord()
	delete(record, "title")
	delete(record, "current_price")

	validator := NewValidator()

	report := validator.Validate(record, Options{AllowExtras: false, CheckTypes: true})

	if report.OK {
		t.Fatal("record with missing required fields accepted")
	}

	wantMissing := map[string]bool{"title": true, "current_price": true}
	for _, name := range report.Missing {
		if !wantMissing[name] {
			t.Errorf("unexpected missing field %q", name)
		}

		delete(wantMissing, name)
	}

	for name := range wantMissing {
		t.Errorf("field %q not reported missing", name)
	}

	if !report.MissingRequired() {
		t.Error("MissingRequired() = false, want true")
	}

	if report.Score >= 1 {
		t.Errorf("score = %v, want < 1", report.Score)
	}
}

func TestValidate_MissingNullableIsNotRequired(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	record := validRecord()
	delete(record, "main_category")

	validator := NewValidator()

	report := validator.Validate(record, Options{AllowExtras: false, CheckTypes: true})

	if report.OK {
		t.Fatal("record missing a nullable field accepted")
	}

	if len(report.Missing) != 1 || report.Missing[0] != "main_category" {
		t.Fatalf("missing = %v, want [main_category]", report.Missing)
	}

	// Nullable fields escalate presence, not severity.
	if report.MissingRequired() {
		t.Error("MissingRequired() = true for a nullable-only miss")
	}
}

func TestValidate_TypeErrors(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name    string
		field   string
		value   any
		wantGot string
	}{
		{"number as text", "current_price", "1.29", "text"},
		{"text as boolean", "title", true, "boolean"},
		{"array leaf", "image_url", []any{"u"}, "array"},
		{"object leaf", "brand", map[string]any{"name": "B"}, "object"},
		{"null on required", "title", nil, "null"},
	}

	validator := NewValidator()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := validRecord()
			record[tt.field] = tt.value

			report := validator.Validate(record, Options{AllowExtras: false, CheckTypes: true})

			if report.OK {
				t.Fatal("record with type error accepted")
			}

			if len(report.TypeErrors) != 1 {
				t.Fatalf("typeErrors = %v, want exactly one", report.TypeErrors)
			}

			typeErr := report.TypeErrors[0]
			if typeErr.Field != tt.field || typeErr.Got != tt.wantGot {
				t.Errorf("typeError = %+v, want field=%s got=%s", typeErr, tt.field, tt.wantGot)
			}
		})
	}
}

func TestValidate_NullOnNullableIsValid(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	record := validRecord()
	record["main_category"] = nil
	record["promotion_start_date"] = nil

	validator := NewValidator()

	report := validator.Validate(record, Options{AllowExtras: false, CheckTypes: true})
	if !report.OK {
		t.Errorf("null on nullable fields rejected: %+v", report.TypeErrors)
	}
}

func TestValidate_Extras(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	record := validRecord()
	record["foo"] = "bar"
	record["zzz"] = 1

	validator := NewValidator()

	strict := validator.Validate(record, Options{AllowExtras: false, CheckTypes: true})
	if strict.OK {
		t.Error("extras accepted with AllowExtras=false")
	}

	if len(strict.Extras) != 2 || strict.Extras[0] != "foo" || strict.Extras[1] != "zzz" {
		t.Errorf("extras = %v, want sorted [foo zzz]", strict.Extras)
	}

	lenient := validator.Validate(record, Options{AllowExtras: true, CheckTypes: true})
	if !lenient.OK {
		t.Error("extras rejected with AllowExtras=true")
	}

	if lenient.Score != 1 {
		t.Errorf("extras must not affect score: %v", lenient.Score)
	}
}

func TestValidate_SkipTypeChecking(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	record := validRecord()
	record["current_price"] = "not a number"

	validator := NewValidator()

	report := validator.Validate(record, Options{AllowExtras: false, CheckTypes: false})
	if !report.OK {
		t.Error("type checking performed despite CheckTypes=false")
	}
}

func TestValidate_NilRecord(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	validator := NewValidator()

	report := validator.Validate(nil, Options{AllowExtras: false, CheckTypes: true})

	if report.OK {
		t.Fatal("nil record accepted")
	}

	// 21 required + 4 nullable fields must all be reported missing.
	wantMissing := 0

	for _, spec := range Fields() {
		if spec.Presence != Optional {
			wantMissing++
		}
	}

	if len(report.Missing) != wantMissing {
		t.Errorf("missing count = %d, want %d", len(report.Missing), wantMissing)
	}

	if report.Score != float64(FieldCount-wantMissing)/float64(FieldCount) {
		t.Errorf("score = %v for nil record", report.Score)
	}
}

func TestValidate_TemplateRoundTrip(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	// Any record produced by NewRecord must validate, whatever the partial.
	partials := []Record{
		nil,
		{},
		{"shop_type": "kruidvat"},
		{"is_promotion": true, "promotion_type": "bonus", "discount_percentage": 25.0},
		{"quantity_amount": 6.0, "quantity_unit": "stuks", "conversion_factor": 1000.0},
	}

	validator := NewValidator()

	for _, partial := range partials {
		report := validator.Validate(NewRecord(partial), Options{AllowExtras: false, CheckTypes: true})
		if !report.OK {
			t.Errorf("NewRecord(%v) failed validation: missing=%v typeErrors=%v",
				partial, report.Missing, report.TypeErrors)
		}
	}
}
