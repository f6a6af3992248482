package transform

import (
	"github.com/supermarket-io/processor/internal/canonical"
	"github.com/supermarket-io/processor/internal/job"
)

// kruidvatTransformer maps Kruidvat payloads. Identity comes from productId;
// prices arrive nested under price.current / price.original.
type kruidvatTransformer struct{}

func (t *kruidvatTransformer) Shop() string { return "kruidvat" }

func (t *kruidvatTransformer) Transform(raw map[string]any) Outcome {
	if raw == nil {
		return failure("", job.ErrorTypeValidation, true, ErrNotAnObject)
	}

	externalID := stringField(raw, "productId")
	if externalID == "" {
		return failure("", job.ErrorTypeValidation, true, ErrNoExternalID)
	}

	if stock := stringField(raw, "stockStatus"); stock == "outOfStock" {
		return skipped(externalID)
	}

	title := firstNonEmpty(raw, "name", "title")
	if title == "" {
		return failure(externalID, job.ErrorTypeValidation, true, missingField("name"))
	}

	price, _ := raw["price"].(map[string]any)

	currentPrice, ok := priceField(price, "current")
	if !ok {
		return failure(externalID, job.ErrorTypeValidation, true, missingField("price.current"))
	}

	priceBefore := currentPrice
	promoted := false

	if original, ok := priceField(price, "original"); ok && original > currentPrice {
		priceBefore = original
		promoted = true
	}

	record := canonical.NewRecord(canonical.Record{
		"shop_type":          "kruidvat",
		"title":              title,
		"brand":              stringField(raw, "brand"),
		"image_url":          firstImageURL(raw["images"]),
		"price_before_bonus": priceBefore,
		"current_price":      currentPrice,
		"is_active":          true,
	})

	if category := stringField(raw, "category"); category != "" {
		record["main_category"] = category
	}

	applyQuantity(record, stringField(raw, "contentSize"), priceBefore, currentPrice)

	applyPromotion(record, promoted,
		stringField(raw, "promotionType"),
		stringField(raw, "promotionDescription"),
		stringField(raw, "promotionStartDate"),
		stringField(raw, "promotionEndDate"))

	return Outcome{Record: record, ExternalID: externalID}
}
