package transform

import (
	"github.com/supermarket-io/processor/internal/canonical"
	"github.com/supermarket-io/processor/internal/job"
)

// jumboTransformer maps Jumbo payloads. Identity comes from productId with a
// sku fallback; prices arrive as integer cents under prices.price /
// prices.promotionalPrice.
type jumboTransformer struct{}

func (t *jumboTransformer) Shop() string { return "jumbo" }

func (t *jumboTransformer) Transform(raw map[string]any) Outcome {
	if raw == nil {
		return failure("", job.ErrorTypeValidation, true, ErrNotAnObject)
	}

	externalID := firstNonEmpty(raw, "productId", "sku")
	if externalID == "" {
		return failure("", job.ErrorTypeValidation, true, ErrNoExternalID)
	}

	if available, ok := boolField(raw, "available"); ok && !available {
		return skipped(externalID)
	}

	title := stringField(raw, "title")
	if title == "" {
		return failure(externalID, job.ErrorTypeValidation, true, missingField("title"))
	}

	listPrice, ok := jumboPrice(raw, "price")
	if !ok {
		return failure(externalID, job.ErrorTypeValidation, true, missingField("prices.price"))
	}

	currentPrice, promoted := jumboPrice(raw, "promotionalPrice")
	if !promoted {
		currentPrice = listPrice
	}

	record := canonical.NewRecord(canonical.Record{
		"shop_type":          "jumbo",
		"title":              title,
		"brand":              stringField(raw, "brand"),
		"image_url":          firstImageURL(raw["imageInfo"]),
		"price_before_bonus": listPrice,
		"current_price":      currentPrice,
		"is_active":          true,
	})

	if category := stringField(raw, "topLevelCategory"); category != "" {
		record["main_category"] = category
	}

	applyQuantity(record, stringField(raw, "quantity"), listPrice, currentPrice)

	promo, _ := raw["promotion"].(map[string]any)
	applyPromotion(record, promoted,
		stringField(promo, "name"),
		firstNonEmpty(promo, "tags", "mechanism"),
		stringField(promo, "fromDate"),
		stringField(promo, "toDate"))

	return Outcome{Record: record, ExternalID: externalID}
}

// jumboPrice reads prices.<key>.amount, an integer cent value.
func jumboPrice(raw map[string]any, key string) (float64, bool) {
	prices, ok := raw["prices"].(map[string]any)
	if !ok {
		return 0, false
	}

	entry, ok := prices[key].(map[string]any)
	if !ok {
		return 0, false
	}

	cents, ok := numberField(entry, "amount")
	if !ok {
		return 0, false
	}

	return centsToEuros(cents), true
}
