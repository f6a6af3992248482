package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJumboTransform(t *testing.T) {
	raw := map[string]any{
		"productId": "67890PAK",
		"title":     "Verse melk",
		"brand":     "Jumbo",
		"quantity":  "1,5 l",
		"imageInfo": []any{map[string]any{"url": "img", "width": float64(360)}},
		"prices": map[string]any{
			"price":            map[string]any{"amount": float64(189)},
			"promotionalPrice": map[string]any{"amount": float64(149)},
		},
		"promotion": map[string]any{
			"name":     "bonus",
			"fromDate": "2026-08-20",
			"toDate":   "2026-08-27",
		},
		"topLevelCategory": "Zuivel",
	}

	outcome := New().mustShop(t, "jumbo").Transform(raw)
	require.NoError(t, outcome.Err)
	assert.Equal(t, "67890PAK", outcome.ExternalID)

	record := outcome.Record
	validateComplete(t, record)

	// Cent amounts come out in euros.
	assert.InDelta(t, 1.89, record["price_before_bonus"], 0.001)
	assert.InDelta(t, 1.49, record["current_price"], 0.001)
	assert.Equal(t, true, record["is_promotion"])
	assert.Equal(t, "bonus", record["promotion_type"])
	assert.Equal(t, "2026-08-20", record["promotion_start_date"])
	assert.InDelta(t, 1.5, record["quantity_amount"], 0.001)
	assert.Equal(t, "l", record["quantity_unit"])
}

func TestJumboExternalIDFallsBackToSKU(t *testing.T) {
	raw := map[string]any{
		"sku":    "SKU-1",
		"title":  "Kaas",
		"prices": map[string]any{"price": map[string]any{"amount": float64(499)}},
	}

	outcome := New().mustShop(t, "jumbo").Transform(raw)
	require.NoError(t, outcome.Err)
	assert.Equal(t, "SKU-1", outcome.ExternalID)
	assert.Equal(t, false, outcome.Record["is_promotion"])
}

func TestJumboSkipsUnavailable(t *testing.T) {
	outcome := New().mustShop(t, "jumbo").Transform(map[string]any{
		"productId": "p1",
		"available": false,
	})

	assert.True(t, outcome.Skipped)
}

func TestJumboMissingPrice(t *testing.T) {
	outcome := New().mustShop(t, "jumbo").Transform(map[string]any{
		"productId": "p1",
		"title":     "Melk",
	})

	require.ErrorIs(t, outcome.Err, ErrMissingField)
}

func TestAldiTransform(t *testing.T) {
	raw := map[string]any{
		"articleNumber": "000123",
		"title":         "Hazelnoten",
		"brandName":     "Trader",
		"price":         "2,99",
		"priceReduced":  1.99,
		"primaryImage":  "https://img/1.jpg",
		"salesUnit":     "200 g",
		"categoryName":  "Noten",
		"basePriceText": "€9.95/kg",
	}

	outcome := New().mustShop(t, "aldi").Transform(raw)
	require.NoError(t, outcome.Err)
	assert.Equal(t, "000123", outcome.ExternalID)

	record := outcome.Record
	validateComplete(t, record)

	assert.InDelta(t, 2.99, record["price_before_bonus"], 0.001)
	assert.InDelta(t, 1.99, record["current_price"], 0.001)
	assert.Equal(t, true, record["is_promotion"])
	assert.InDelta(t, 9.95, record["unit_price"], 0.001)
	assert.Equal(t, "kg", record["unit_price_unit"])

	// 200 g normalizes to 0.2 kg.
	assert.InDelta(t, 0.2, record["normalized_quantity_amount"], 0.001)
	assert.Equal(t, "kg", record["normalized_quantity_unit"])
	assert.InDelta(t, 14.95, record["price_per_standard_unit"], 0.01)
}

func TestAldiSkipsSoldOut(t *testing.T) {
	outcome := New().mustShop(t, "aldi").Transform(map[string]any{
		"articleNumber": "9",
		"isSoldOut":     true,
	})

	assert.True(t, outcome.Skipped)
}

func TestPlusTransform(t *testing.T) {
	raw := map[string]any{
		"productNumber":      "556677",
		"name":               "Pindakaas",
		"brand":              "Plus",
		"currentPrice":       2.49,
		"originalPrice":      2.99,
		"imageURL":           "https://img/pk.jpg",
		"unitSize":           "350 g",
		"mainCategory":       "Broodbeleg",
		"promotionLabel":     "weekend deal",
		"promotionMechanism": "25% korting",
		"promotionStart":     "2026-08-22",
		"promotionEnd":       "2026-08-24",
	}

	outcome := New().mustShop(t, "plus").Transform(raw)
	require.NoError(t, outcome.Err)
	assert.Equal(t, "556677", outcome.ExternalID)

	record := outcome.Record
	validateComplete(t, record)

	assert.Equal(t, true, record["is_promotion"])
	assert.Equal(t, "weekend deal", record["promotion_type"])
	assert.Equal(t, "25% korting", record["promotion_mechanism"])
	assert.InDelta(t, 0.50, record["discount_absolute"], 0.001)
	assert.InDelta(t, 16.72, record["discount_percentage"], 0.01)
}

func TestPlusSkipsDelisted(t *testing.T) {
	outcome := New().mustShop(t, "plus").Transform(map[string]any{
		"productNumber": "1",
		"status":        "DELISTED",
	})

	assert.True(t, outcome.Skipped)
}

func TestKruidvatTransform(t *testing.T) {
	raw := map[string]any{
		"productId": "kv-889",
		"name":      "Shampoo",
		"brand":     "Elseve",
		"price": map[string]any{
			"current":  3.99,
			"original": 5.49,
		},
		"images":      []any{"https://img/s.jpg"},
		"contentSize": "250 ml",
		"category":    "Haarverzorging",
	}

	outcome := New().mustShop(t, "kruidvat").Transform(raw)
	require.NoError(t, outcome.Err)
	assert.Equal(t, "kv-889", outcome.ExternalID)

	record := outcome.Record
	validateComplete(t, record)

	assert.InDelta(t, 5.49, record["price_before_bonus"], 0.001)
	assert.InDelta(t, 3.99, record["current_price"], 0.001)
	assert.Equal(t, true, record["is_promotion"])
	assert.Equal(t, "https://img/s.jpg", record["image_url"])
	assert.InDelta(t, 0.25, record["normalized_quantity_amount"], 0.001)
	assert.Equal(t, "l", record["normalized_quantity_unit"])
}

func TestKruidvatSkipsOutOfStock(t *testing.T) {
	outcome := New().mustShop(t, "kruidvat").Transform(map[string]any{
		"productId":   "kv-1",
		"stockStatus": "outOfStock",
	})

	assert.True(t, outcome.Skipped)
}

func TestExternalIDExtractionRules(t *testing.T) {
	tests := []struct {
		shop string
		raw  map[string]any
		want string
	}{
		{shop: "ah", raw: map[string]any{"webshopId": float64(1010)}, want: "1010"},
		{shop: "jumbo", raw: map[string]any{"productId": "p1", "sku": "s1"}, want: "p1"},
		{shop: "jumbo", raw: map[string]any{"sku": "s1"}, want: "s1"},
		{shop: "aldi", raw: map[string]any{"articleNumber": "a1"}, want: "a1"},
		{shop: "plus", raw: map[string]any{"productNumber": "n1"}, want: "n1"},
		{shop: "kruidvat", raw: map[string]any{"productId": "k1"}, want: "k1"},
	}

	registry := New()

	for _, tt := range tests {
		t.Run(tt.shop+"/"+tt.want, func(t *testing.T) {
			outcome := registry.mustShop(t, tt.shop).Transform(tt.raw)
			assert.Equal(t, tt.want, outcome.ExternalID)
		})
	}
}
