package transform

import (
	"github.com/supermarket-io/processor/internal/canonical"
	"github.com/supermarket-io/processor/internal/job"
)

// aldiTransformer maps ALDI payloads. Identity comes from articleNumber;
// a reduced price under priceReduced marks a promotion against oldPrice.
type aldiTransformer struct{}

func (t *aldiTransformer) Shop() string { return "aldi" }

func (t *aldiTransformer) Transform(raw map[string]any) Outcome {
	if raw == nil {
		return failure("", job.ErrorTypeValidation, true, ErrNotAnObject)
	}

	externalID := stringField(raw, "articleNumber")
	if externalID == "" {
		return failure("", job.ErrorTypeValidation, true, ErrNoExternalID)
	}

	if soldOut, ok := boolField(raw, "isSoldOut"); ok && soldOut {
		return skipped(externalID)
	}

	title := firstNonEmpty(raw, "title", "name")
	if title == "" {
		return failure(externalID, job.ErrorTypeValidation, true, missingField("title"))
	}

	price, ok := priceField(raw, "price")
	if !ok {
		return failure(externalID, job.ErrorTypeValidation, true, missingField("price"))
	}

	currentPrice := price
	priceBefore := price
	promoted := false

	if reduced, ok := priceField(raw, "priceReduced"); ok && reduced > 0 && reduced < price {
		currentPrice = reduced
		promoted = true
	} else if old, ok := priceField(raw, "oldPrice"); ok && old > price {
		priceBefore = old
		promoted = true
	}

	record := canonical.NewRecord(canonical.Record{
		"shop_type":          "aldi",
		"title":              title,
		"brand":              stringField(raw, "brandName"),
		"image_url":          firstImageURL(raw["primaryImage"]),
		"price_before_bonus": priceBefore,
		"current_price":      currentPrice,
		"is_active":          true,
	})

	if category := stringField(raw, "categoryName"); category != "" {
		record["main_category"] = category
	}

	applyQuantity(record, firstNonEmpty(raw, "salesUnit", "unitOfSale"), priceBefore, currentPrice)

	if desc := stringField(raw, "basePriceText"); desc != "" {
		if unitPrice, unit, ok := parseUnitPrice(desc); ok {
			record["unit_price"] = unitPrice
			record["unit_price_unit"] = unit
		}
	}

	applyPromotion(record, promoted,
		stringField(raw, "promotionType"),
		stringField(raw, "promotionText"),
		stringField(raw, "priceValidFrom"),
		stringField(raw, "priceValidUntil"))

	return Outcome{Record: record, ExternalID: externalID}
}
