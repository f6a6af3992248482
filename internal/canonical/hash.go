package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Sentinel errors for content hashing.
var (
	// ErrNilRecord is returned when hashing a nil record.
	ErrNilRecord = errors.New("record cannot be nil")
	// ErrUnhashableValue is returned when a record carries a non-primitive
	// leaf (array, object, or unsupported Go type).
	ErrUnhashableValue = errors.New("record value is not a hashable primitive")
)

// UnifiedID builds the identity key of a processed record:
// <shop>_<external_id>_<schema_version>, e.g. "ah_1010_1.0.0".
func UnifiedID(shopType, externalID, schemaVersion string) string {
	return fmt.Sprintf("%s_%s_%s", shopType, externalID, schemaVersion)
}

// ContentHash computes a stable SHA-256 over a canonical record.
//
// Stability contract: two records that are equal under deep value comparison
// produce the same hash regardless of field order or integer-versus-float
// representation of numeric values. Keys are sorted, strings are quoted,
// and numbers are normalized to float64 before formatting, so "2" the int
// and "2.0" the float collapse to the same bytes.
func ContentHash(record Record) (string, error) {
	if record == nil {
		return "", ErrNilRecord
	}

	keys := make([]string, 0, len(record))
	for key := range record {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	var builder strings.Builder

	for _, key := range keys {
		encoded, err := encodePrimitive(record[key])
		if err != nil {
			return "", fmt.Errorf("%w: field %q", err, key)
		}

		builder.WriteString(key)
		builder.WriteByte('=')
		builder.WriteString(encoded)
		builder.WriteByte(';')
	}

	sum := sha256.Sum256([]byte(builder.String()))

	return hex.EncodeToString(sum[:]), nil
}

// encodePrimitive renders a record leaf into its canonical byte form.
func encodePrimitive(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "null", nil
	case string:
		return strconv.Quote(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 64), nil
	case int:
		return strconv.FormatFloat(float64(v), 'g', -1, 64), nil
	case int32:
		return strconv.FormatFloat(float64(v), 'g', -1, 64), nil
	case int64:
		return strconv.FormatFloat(float64(v), 'g', -1, 64), nil
	default:
		return "", ErrUnhashableValue
	}
}
