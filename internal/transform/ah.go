package transform

import (
	"github.com/supermarket-io/processor/internal/canonical"
	"github.com/supermarket-io/processor/internal/job"
)

// ahTransformer maps Albert Heijn webshop payloads. Identity comes from
// webshopId; bonus pricing arrives as priceBeforeBonus/currentPrice with a
// bonusMechanism string when a promotion runs.
type ahTransformer struct{}

func (t *ahTransformer) Shop() string { return "ah" }

func (t *ahTransformer) Transform(raw map[string]any) Outcome {
	if raw == nil {
		return failure("", job.ErrorTypeValidation, true, ErrNotAnObject)
	}

	externalID := stringField(raw, "webshopId")
	if externalID == "" {
		return failure("", job.ErrorTypeValidation, true, ErrNoExternalID)
	}

	availability := stringField(raw, "orderAvailabilityStatus")
	currentPrice, hasCurrent := priceField(raw, "currentPrice")

	// Products pulled from the assortment arrive without price data; those
	// rows are declined, not failed.
	if availability == "UNAVAILABLE" && !hasCurrent {
		return skipped(externalID)
	}

	title := stringField(raw, "title")
	if title == "" {
		return failure(externalID, job.ErrorTypeValidation, true, missingField("title"))
	}

	if !hasCurrent {
		return failure(externalID, job.ErrorTypeValidation, true, missingField("currentPrice"))
	}

	priceBefore, hasBefore := priceField(raw, "priceBeforeBonus")
	if !hasBefore {
		priceBefore = currentPrice
	}

	record := canonical.NewRecord(canonical.Record{
		"shop_type":          "ah",
		"title":              title,
		"brand":              stringField(raw, "brand"),
		"image_url":          firstImageURL(raw["images"]),
		"price_before_bonus": priceBefore,
		"current_price":      currentPrice,
		"is_active":          availability == "" || availability == "IN_ASSORTMENT",
	})

	if category := stringField(raw, "mainCategory"); category != "" {
		record["main_category"] = category
	}

	applyQuantity(record, stringField(raw, "salesUnitSize"), priceBefore, currentPrice)

	if desc := stringField(raw, "unitPriceDescription"); desc != "" {
		if price, unit, ok := parseUnitPrice(desc); ok {
			record["unit_price"] = price
			record["unit_price_unit"] = unit
		}
	}

	isBonus, _ := boolField(raw, "isBonus")
	applyPromotion(record, isBonus,
		stringField(raw, "promotionType"),
		stringField(raw, "bonusMechanism"),
		stringField(raw, "bonusStartDate"),
		stringField(raw, "bonusEndDate"))

	return Outcome{Record: record, ExternalID: externalID}
}
