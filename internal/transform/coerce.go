package transform

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/supermarket-io/processor/internal/canonical"
)

// Sentinel errors shared by the shop transformers.
var (
	// ErrNotAnObject is returned when raw_data is not a JSON object.
	ErrNotAnObject = errors.New("raw data is not an object")
	// ErrNoExternalID is returned when no external id could be extracted.
	ErrNoExternalID = errors.New("no external id in raw data")
	// ErrMissingField is returned when a required source field is absent.
	ErrMissingField = errors.New("missing required source field")
)

// stringField reads a string value, rendering numbers as integer strings so
// numeric ids come out as "1010", not "1010.000000".
func stringField(raw map[string]any, key string) string {
	switch v := raw[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}

		return strconv.FormatFloat(v, 'g', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

// numberField reads a numeric value as float64.
func numberField(raw map[string]any, key string) (float64, bool) {
	switch v := raw[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// boolField reads a boolean value.
func boolField(raw map[string]any, key string) (bool, bool) {
	v, ok := raw[key].(bool)

	return v, ok
}

// firstNonEmpty extracts the first non-empty string among the given keys.
func firstNonEmpty(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		if v := stringField(raw, key); v != "" {
			return v
		}
	}

	return ""
}

// parsePrice accepts a price as a number or a numeric string, tolerating a
// comma decimal separator and a leading euro sign.
func parsePrice(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		cleaned := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v), "€"))
		cleaned = strings.ReplaceAll(cleaned, ",", ".")

		parsed, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}

		return parsed, true
	default:
		return 0, false
	}
}

// priceField reads a price from one key.
func priceField(raw map[string]any, key string) (float64, bool) {
	value, ok := raw[key]
	if !ok {
		return 0, false
	}

	return parsePrice(value)
}

// centsToEuros converts an integer cent amount to euros.
func centsToEuros(cents float64) float64 {
	return cents / 100
}

// firstImageURL picks an image URL from the shapes shops use: a plain string,
// a list of strings, or a list of {url, width} objects where the widest image
// wins.
func firstImageURL(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		var (
			bestURL   string
			bestWidth float64 = -1
		)

		for _, entry := range v {
			switch e := entry.(type) {
			case string:
				if bestURL == "" {
					bestURL = strings.TrimSpace(e)
					bestWidth = 0
				}
			case map[string]any:
				url := stringField(e, "url")
				if url == "" {
					continue
				}

				width, _ := numberField(e, "width")
				if width > bestWidth {
					bestURL = url
					bestWidth = width
				}
			}
		}

		return bestURL
	default:
		return ""
	}
}

// quantityPattern matches a leading amount plus unit, as in "500 g", "1l",
// "6 x 150 ml" (the per-item part is matched after the multiplier).
var quantityPattern = regexp.MustCompile(`(?i)(?:(\d+)\s*x\s*)?(\d+(?:[.,]\d+)?)\s*([a-z]+)`)

// parseQuantity splits a sales unit size like "500 g" or "1,5 l" into amount
// and unit. Multipliers ("6 x 150 ml") multiply out. Returns (0, "") when the
// string has no parsable quantity.
func parseQuantity(salesUnitSize string) (float64, string) {
	match := quantityPattern.FindStringSubmatch(salesUnitSize)
	if match == nil {
		return 0, ""
	}

	amount, err := strconv.ParseFloat(strings.ReplaceAll(match[2], ",", "."), 64)
	if err != nil {
		return 0, ""
	}

	if match[1] != "" {
		multiplier, err := strconv.ParseFloat(match[1], 64)
		if err == nil {
			amount *= multiplier
		}
	}

	return amount, strings.ToLower(match[3])
}

// standardUnits maps source units onto the standard unit used for price
// comparison, with the factor that converts an amount into it.
var standardUnits = map[string]struct {
	unit   string
	factor float64
}{
	"g":     {unit: "kg", factor: 0.001},
	"gr":    {unit: "kg", factor: 0.001},
	"gram":  {unit: "kg", factor: 0.001},
	"kg":    {unit: "kg", factor: 1},
	"ml":    {unit: "l", factor: 0.001},
	"cl":    {unit: "l", factor: 0.01},
	"l":     {unit: "l", factor: 1},
	"liter": {unit: "l", factor: 1},
	"stuk":  {unit: "piece", factor: 1},
	"stuks": {unit: "piece", factor: 1},
	"st":    {unit: "piece", factor: 1},
	"piece": {unit: "piece", factor: 1},
	"wasb":  {unit: "wash", factor: 1},
}

// applyQuantity fills the quantity block and, when the unit maps onto a
// standard one, the normalization and per-standard-unit price fields.
func applyQuantity(record canonical.Record, salesUnitSize string, priceBefore, current float64) {
	record["sales_unit_size"] = salesUnitSize

	amount, unit := parseQuantity(salesUnitSize)
	if amount <= 0 || unit == "" {
		return
	}

	record["quantity_amount"] = amount
	record["quantity_unit"] = unit

	standard, ok := standardUnits[unit]
	if !ok {
		return
	}

	normalized := amount * standard.factor
	if normalized <= 0 {
		return
	}

	record["normalized_quantity_amount"] = normalized
	record["normalized_quantity_unit"] = standard.unit
	record["conversion_factor"] = standard.factor

	if priceBefore > 0 {
		record["price_per_standard_unit"] = roundPrice(priceBefore / normalized)
	}

	if current > 0 {
		record["current_price_per_standard_unit"] = roundPrice(current / normalized)
	}
}

// applyPromotion fills the promotion block and keeps the promotion invariants
// intact: a promoted record gets a non-"none" type and a current price capped
// at the pre-bonus price; an unpromoted record gets type "none". Only an
// explicit shop signal marks a promotion; a bare price gap does not.
// Discount fields are derived when a real discount exists.
func applyPromotion(record canonical.Record, promoted bool, promoType, mechanism, startDate, endDate string) {
	priceBefore, _ := record["price_before_bonus"].(float64)
	current, _ := record["current_price"].(float64)

	if !promoted {
		record["is_promotion"] = false
		record["promotion_type"] = "none"
		record["promotion_mechanism"] = "none"
		record["promotion_start_date"] = nil
		record["promotion_end_date"] = nil

		return
	}

	if current > priceBefore {
		record["price_before_bonus"] = current
		priceBefore = current
	}

	if promoType == "" || promoType == "none" {
		promoType = "discount"
	}

	if mechanism == "" {
		mechanism = promoType
	}

	record["is_promotion"] = true
	record["promotion_type"] = promoType
	record["promotion_mechanism"] = mechanism

	if startDate != "" {
		record["promotion_start_date"] = startDate
	} else {
		record["promotion_start_date"] = nil
	}

	if endDate != "" {
		record["promotion_end_date"] = endDate
	} else {
		record["promotion_end_date"] = nil
	}

	discount := priceBefore - current
	record["discount_absolute"] = roundPrice(discount)

	if priceBefore > 0 {
		record["discount_percentage"] = roundPrice(discount / priceBefore * 100)
	}
}

// parseUnitPrice splits a unit price description like "€2.58/kg" or
// "2,58 per liter" into price and unit.
func parseUnitPrice(desc string) (float64, string, bool) {
	desc = strings.TrimSpace(desc)

	var pricePart, unitPart string

	switch {
	case strings.Contains(desc, "/"):
		parts := strings.SplitN(desc, "/", 2)
		pricePart, unitPart = parts[0], parts[1]
	case strings.Contains(desc, " per "):
		parts := strings.SplitN(desc, " per ", 2)
		pricePart, unitPart = parts[0], parts[1]
	default:
		return 0, "", false
	}

	price, ok := parsePrice(pricePart)
	if !ok {
		return 0, "", false
	}

	return price, strings.ToLower(strings.TrimSpace(unitPart)), true
}

// roundPrice rounds to two decimals, the precision every shop reports in.
func roundPrice(v float64) float64 {
	return math.Round(v*100) / 100
}

// missingField builds the error for an absent required source field.
func missingField(name string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, name)
}
