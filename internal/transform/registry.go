// Package transform maps raw shop payloads onto the canonical product
// template. One transformer per supported shop; all of them share the
// coercion helpers in coerce.go and report through the same Outcome shape.
package transform

import (
	"fmt"
	"sort"

	"github.com/supermarket-io/processor/internal/canonical"
	"github.com/supermarket-io/processor/internal/job"
)

// Outcome is the result of transforming one raw row. Transformers never
// panic for recoverable conditions; every failure mode is expressed here.
type Outcome struct {
	// Record is the canonical record, nil when the row failed or was skipped.
	Record canonical.Record
	// ExternalID is the shop-native product identifier, set whenever it could
	// be extracted, even on failed rows.
	ExternalID string
	// Err describes the failure; nil on success and on skipped rows.
	Err error
	// ErrorType classifies the failure using the processing-error kinds.
	ErrorType string
	// Severity is the failure's severity level.
	Severity string
	// Skipped marks rows the transformer recognized and explicitly declined,
	// such as products delisted upstream. Skipped rows carry no error.
	Skipped bool
}

// failure builds a failed outcome with its severity derived from the kind.
func failure(externalID, errorType string, missingRequired bool, err error) Outcome {
	return Outcome{
		ExternalID: externalID,
		Err:        err,
		ErrorType:  errorType,
		Severity:   job.SeverityFor(errorType, missingRequired),
	}
}

// skipped builds a declined outcome.
func skipped(externalID string) Outcome {
	return Outcome{ExternalID: externalID, Skipped: true}
}

// Transformer converts one shop's raw payloads into canonical records.
type Transformer interface {
	// Shop returns the shop type this transformer handles.
	Shop() string
	// Transform maps one raw payload. The returned record, when present, is
	// complete under the canonical template.
	Transform(raw map[string]any) Outcome
}

// Registry resolves transformers by shop type. Built once at startup and
// immutable afterwards, so lookups need no locking.
type Registry struct {
	transformers map[string]Transformer
}

// New builds the registry with every supported shop registered.
func New() *Registry {
	transformers := []Transformer{
		&ahTransformer{},
		&jumboTransformer{},
		&aldiTransformer{},
		&plusTransformer{},
		&kruidvatTransformer{},
	}

	byShop := make(map[string]Transformer, len(transformers))
	for _, t := range transformers {
		byShop[t.Shop()] = t
	}

	return &Registry{transformers: byShop}
}

// ForShop returns the transformer for a shop type.
func (r *Registry) ForShop(shopType string) (Transformer, error) {
	t, ok := r.transformers[shopType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", job.ErrUnknownShop, shopType)
	}

	return t, nil
}

// Shops lists the registered shop types, sorted.
func (r *Registry) Shops() []string {
	shops := make([]string, 0, len(r.transformers))
	for shop := range r.transformers {
		shops = append(shops, shop)
	}

	sort.Strings(shops)

	return shops
}
