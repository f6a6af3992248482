package transform

import (
	"github.com/supermarket-io/processor/internal/canonical"
	"github.com/supermarket-io/processor/internal/job"
)

// plusTransformer maps PLUS payloads. Identity comes from productNumber;
// promotions arrive as an originalPrice above the current price plus a promo
// window.
type plusTransformer struct{}

func (t *plusTransformer) Shop() string { return "plus" }

func (t *plusTransformer) Transform(raw map[string]any) Outcome {
	if raw == nil {
		return failure("", job.ErrorTypeValidation, true, ErrNotAnObject)
	}

	externalID := stringField(raw, "productNumber")
	if externalID == "" {
		return failure("", job.ErrorTypeValidation, true, ErrNoExternalID)
	}

	if status := stringField(raw, "status"); status == "DELISTED" {
		return skipped(externalID)
	}

	title := firstNonEmpty(raw, "name", "title")
	if title == "" {
		return failure(externalID, job.ErrorTypeValidation, true, missingField("name"))
	}

	currentPrice, ok := priceField(raw, "currentPrice")
	if !ok {
		return failure(externalID, job.ErrorTypeValidation, true, missingField("currentPrice"))
	}

	priceBefore := currentPrice
	promoted := false

	if original, ok := priceField(raw, "originalPrice"); ok && original > currentPrice {
		priceBefore = original
		promoted = true
	}

	record := canonical.NewRecord(canonical.Record{
		"shop_type":          "plus",
		"title":              title,
		"brand":              stringField(raw, "brand"),
		"image_url":          firstImageURL(raw["imageURL"]),
		"price_before_bonus": priceBefore,
		"current_price":      currentPrice,
		"is_active":          true,
	})

	if category := stringField(raw, "mainCategory"); category != "" {
		record["main_category"] = category
	}

	applyQuantity(record, stringField(raw, "unitSize"), priceBefore, currentPrice)

	applyPromotion(record, promoted,
		stringField(raw, "promotionLabel"),
		stringField(raw, "promotionMechanism"),
		stringField(raw, "promotionStart"),
		stringField(raw, "promotionEnd"))

	return Outcome{Record: record, ExternalID: externalID}
}
