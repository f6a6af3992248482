package canonical

import (
	"fmt"
	"sort"
)

// Options control a validation pass.
type Options struct {
	// AllowExtras accepts fields outside the template. Extras are still
	// reported, they just do not fail the record.
	AllowExtras bool
	// CheckTypes verifies present values against the template kinds.
	CheckTypes bool
}

// TypeError describes one field whose value does not match its template kind.
type TypeError struct {
	Field string
	Want  string
	Got   string
}

// String renders the type error for logs and issue aggregation.
func (e TypeError) String() string {
	return fmt.Sprintf("type error on %q: want %s, got %s", e.Field, e.Want, e.Got)
}

// Report is the outcome of validating one record against the template.
type Report struct {
	// OK is true when no required or nullable field is missing, no type error
	// was found, and extras are either absent or allowed.
	OK bool
	// Missing lists required and nullable fields absent from the record, in
	// template order.
	Missing []string
	// Extras lists record keys outside the template, sorted.
	Extras []string
	// TypeErrors lists fields whose present value has the wrong kind, in
	// template order.
	TypeErrors []TypeError
	// Score is (present − typeErrors) / 32, clamped to [0, 1]. Present counts
	// template fields that are either in the record or validly absent, so a
	// fully valid record always scores 1 even when optional fields are absent.
	Score float64
}

// MissingRequired reports whether any strictly required field is absent.
// Used by error classification: a missing required field escalates severity.
func (r *Report) MissingRequired() bool {
	for _, name := range r.Missing {
		if spec, ok := Lookup(name); ok && spec.Presence == Required {
			return true
		}
	}

	return false
}

// Validator checks canonical records against the template.
//
// Validation is a single linear pass over the static field table with O(1)
// presence lookups; it never blocks and is safe for concurrent use.
type Validator struct{}

// NewValidator creates a template validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks a record against the 32-field template.
//
// Presence rules: required and nullable fields must be present (nullable may
// be nil); optional fields may be absent. Type rules (when opts.CheckTypes):
// present values must match the field kind; nil is only valid on nullable
// fields; arrays, objects, and functions are never valid.
//
// A nil record reports every required and nullable field as missing.
func (v *Validator) Validate(record Record, opts Options) *Report {
	report := &Report{
		Missing:    []string{},
		Extras:     []string{},
		TypeErrors: []TypeError{},
	}

	for _, spec := range fieldTable {
		value, present := record[spec.Name]

		if !present {
			if spec.Presence != Optional {
				report.Missing = append(report.Missing, spec.Name)
			}

			continue
		}

		if !opts.CheckTypes {
			continue
		}

		if value == nil {
			if spec.Presence != Nullable {
				report.TypeErrors = append(report.TypeErrors, TypeError{
					Field: spec.Name,
					Want:  spec.Kind.String(),
					Got:   "null",
				})
			}

			continue
		}

		if !kindAccepts(spec.Kind, value) {
			report.TypeErrors = append(report.TypeErrors, TypeError{
				Field: spec.Name,
				Want:  spec.Kind.String(),
				Got:   valueKindName(value),
			})
		}
	}

	for name := range record {
		if _, ok := fieldIndex[name]; !ok {
			report.Extras = append(report.Extras, name)
		}
	}
	// Map iteration order is random; reports must be deterministic.
	sort.Strings(report.Extras)

	present := FieldCount - len(report.Missing)

	score := float64(present-len(report.TypeErrors)) / float64(FieldCount)
	if score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}

	report.Score = score
	report.OK = len(report.Missing) == 0 &&
		len(report.TypeErrors) == 0 &&
		(opts.AllowExtras || len(report.Extras) == 0)

	return report
}

// kindAccepts reports whether a non-nil value matches a template kind.
func kindAccepts(kind Kind, value any) bool {
	switch kind {
	case Text:
		_, ok := value.(string)

		return ok
	case Number:
		return isNumber(value)
	case Boolean:
		_, ok := value.(bool)

		return ok
	default:
		return false
	}
}

// isNumber accepts the numeric representations records are built from:
// float64 from JSON decoding plus the integer types produced in code.
func isNumber(value any) bool {
	switch value.(type) {
	case float64, float32, int, int32, int64:
		return true
	default:
		return false
	}
}

// valueKindName names a value's kind for type-error reports.
func valueKindName(value any) string {
	switch value.(type) {
	case string:
		return "text"
	case float64, float32, int, int32, int64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any, Record:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}
