package domain

import (
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/astralisone/astralis-agency-server-sub001/pkg/errors"
)

// Cart limits.
const (
	MaxQuantityPerItem = 100
	MaxItemsPerCart    = 50
	// MaxUnitPriceCents is 100,000.00 USD.
	MaxUnitPriceCents = 100_000_00
)

// CurrencyUSD is the only currency the storefront sells in.
const CurrencyUSD = "USD"

// CartLineItem is one product line in a cart. UnitPrice is in cents.
type CartLineItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	ImageURL  string `json:"image_url,omitempty"`
}

// LineTotal returns UnitPrice * Quantity in cents.
func (i CartLineItem) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// Cart is the shopping cart owned by one session. Items keep insertion order
// for display; totals are always derived from them.
type Cart struct {
	SessionID string         `json:"session_id"`
	Items     []CartLineItem `json:"items"`
	Currency  string         `json:"currency"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// NewCart returns an empty cart for sessionID expiring ttl after now.
func NewCart(sessionID string, now time.Time, ttl time.Duration) *Cart {
	return &Cart{
		SessionID: sessionID,
		Items:     []CartLineItem{},
		Currency:  CurrencyUSD,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Subtotal calculates the sum of all line totals in cents.
func (c *Cart) Subtotal() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.LineTotal()
	}
	return total
}

// ItemCount returns the total quantity across all lines.
func (c *Cart) ItemCount() int {
	var count int
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// FindItemIndex returns the index of the line with the given ID, or -1.
func (c *Cart) FindItemIndex(id string) int {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// AddItem inserts item, or merges it into the existing line with the same ID
// by summing quantities. A merge refreshes name, price and image from item.
// Quantities below 1 are treated as 1.
func (c *Cart) AddItem(item CartLineItem) error {
	if item.ID == "" {
		return apperrors.InvalidInput("item id is required")
	}
	if item.UnitPrice < 0 {
		return apperrors.InvalidInput("unit price must not be negative")
	}
	if item.UnitPrice > MaxUnitPriceCents {
		return apperrors.InvalidInput(fmt.Sprintf("unit price must not exceed %d cents", MaxUnitPriceCents))
	}
	if item.Quantity < 1 {
		item.Quantity = 1
	}

	if idx := c.FindItemIndex(item.ID); idx >= 0 {
		newQty := c.Items[idx].Quantity + item.Quantity
		if newQty > MaxQuantityPerItem {
			return apperrors.InvalidInput(fmt.Sprintf("combined quantity must not exceed %d", MaxQuantityPerItem))
		}
		item.Quantity = newQty
		c.Items[idx] = item
		return nil
	}

	if item.Quantity > MaxQuantityPerItem {
		return apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerItem))
	}
	if len(c.Items) >= MaxItemsPerCart {
		return apperrors.InvalidInput(fmt.Sprintf("cart must not contain more than %d items", MaxItemsPerCart))
	}
	c.Items = append(c.Items, item)
	return nil
}

// UpdateQuantity sets the quantity of line id. Values below 1 are clamped to 1;
// removing a line takes an explicit RemoveItem.
func (c *Cart) UpdateQuantity(id string, quantity int) error {
	idx := c.FindItemIndex(id)
	if idx < 0 {
		return apperrors.NotFound("cart item", id)
	}
	if quantity > MaxQuantityPerItem {
		return apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerItem))
	}
	c.Items[idx].Quantity = max(quantity, 1)
	return nil
}

// RemoveItem deletes line id and reports whether it was present.
func (c *Cart) RemoveItem(id string) bool {
	idx := c.FindItemIndex(id)
	if idx < 0 {
		return false
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	return true
}

// Clear removes every line.
func (c *Cart) Clear() {
	c.Items = []CartLineItem{}
}

// Touch marks the cart as modified at now and extends its expiry.
func (c *Cart) Touch(now time.Time, ttl time.Duration) {
	c.UpdatedAt = now
	c.ExpiresAt = now.Add(ttl)
}

// Snapshot returns a copy of the lines that later cart mutations cannot change.
func (c *Cart) Snapshot() []CartLineItem {
	items := make([]CartLineItem, len(c.Items))
	copy(items, c.Items)
	return items
}

// MarshalJSON adds the derived total and item_count. Both are ignored when
// the cart is decoded again.
func (c *Cart) MarshalJSON() ([]byte, error) {
	type cartAlias Cart
	return json.Marshal(struct {
		*cartAlias
		Total     int64 `json:"total"`
		ItemCount int   `json:"item_count"`
	}{
		cartAlias: (*cartAlias)(c),
		Total:     c.Subtotal(),
		ItemCount: c.ItemCount(),
	})
}
