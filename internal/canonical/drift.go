package canonical

import (
	"fmt"
	"sort"
)

// FieldDrift summarizes one template field's presence across a record set.
type FieldDrift struct {
	// Present is the number of records carrying the field.
	Present int
	// Rate is Present divided by the record count, in [0, 1].
	Rate float64
}

// Issue is one aggregated validation finding across a record set.
type Issue struct {
	// Description is a stable, human-readable finding, e.g.
	// `missing required field "title"` or `extra field "foo"`.
	Description string
	// Count is the number of records exhibiting the finding.
	Count int
}

// DriftReport summarizes how a population of records deviates from the
// template: per-field presence rates plus the most frequent issues.
type DriftReport struct {
	Records int
	Fields  map[string]FieldDrift
	Issues  []Issue
}

// Drift analyzes a record set against the template.
//
// Every record is validated with extras reported and types checked; findings
// are aggregated by description and the topN most frequent are returned
// (topN <= 0 returns all). Ties break alphabetically so reports are stable.
func (v *Validator) Drift(records []Record, topN int) *DriftReport {
	report := &DriftReport{
		Records: len(records),
		Fields:  make(map[string]FieldDrift, FieldCount),
		Issues:  []Issue{},
	}

	presence := make(map[string]int, FieldCount)
	counts := make(map[string]int)

	for _, record := range records {
		for _, spec := range fieldTable {
			if _, ok := record[spec.Name]; ok {
				presence[spec.Name]++
			}
		}

		result := v.Validate(record, Options{AllowExtras: true, CheckTypes: true})

		for _, name := range result.Missing {
			counts[fmt.Sprintf("missing required field %q", name)]++
		}

		for _, typeErr := range result.TypeErrors {
			counts[typeErr.String()]++
		}

		for _, name := range result.Extras {
			counts[fmt.Sprintf("extra field %q", name)]++
		}
	}

	for _, spec := range fieldTable {
		drift := FieldDrift{Present: presence[spec.Name]}
		if report.Records > 0 {
			drift.Rate = float64(drift.Present) / float64(report.Records)
		}

		report.Fields[spec.Name] = drift
	}

	issues := make([]Issue, 0, len(counts))
	for description, count := range counts {
		issues = append(issues, Issue{Description: description, Count: count})
	}

	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Count != issues[j].Count {
			return issues[i].Count > issues[j].Count
		}

		return issues[i].Description < issues[j].Description
	})

	if topN > 0 && len(issues) > topN {
		issues = issues[:topN]
	}

	report.Issues = issues

	return report
}
