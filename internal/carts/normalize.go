package carts

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
)

// RawItem is an unvalidated line item as received from the storefront.
type RawItem struct {
	ProductID string
	Name      string
	UnitPrice int64
	Quantity  int
}

type WarningKind string

const (
	WarningBlankProductID      WarningKind = "blank_product_id"
	WarningNonPositiveQuantity WarningKind = "non_positive_quantity"
	WarningNegativeUnitPrice   WarningKind = "negative_unit_price"
	WarningPriceConflict       WarningKind = "price_conflict"
)

// ValidationWarning records a dropped line item or a data-quality observation.
type ValidationWarning struct {
	Index     int         `json:"index"`
	ProductID string      `json:"productId,omitempty"`
	Kind      WarningKind `json:"kind"`
	Message   string      `json:"message"`
}

// Dropped reports whether the warning removed the item from the cart.
func (w ValidationWarning) Dropped() bool {
	return w.Kind != WarningPriceConflict
}

// NormalizedCart is the canonical form of a cart payload.
type NormalizedCart struct {
	Items       []LineItem
	ContentHash string
	TotalValue  int64
	Warnings    []ValidationWarning
}

func (c NormalizedCart) IsEmpty() bool {
	return len(c.Items) == 0
}

// EmptyCartError is returned when every supplied line item was rejected.
type EmptyCartError struct {
	Warnings []ValidationWarning
}

func (e *EmptyCartError) Error() string {
	return fmt.Sprintf("cart has no valid line items (%d rejected)", len(e.Warnings))
}

// Normalize validates, merges and orders raw line items. Items sharing a
// product id are merged by summing quantities; on a unit price conflict the
// later entry wins. When nothing survives validation an *EmptyCartError is
// returned.
func Normalize(raw []RawItem) (NormalizedCart, error) {
	var warnings []ValidationWarning
	merged := map[string]*LineItem{}

	for idx, item := range raw {
		productID := strings.TrimSpace(item.ProductID)
		switch {
		case productID == "":
			warnings = append(warnings, ValidationWarning{Index: idx, Kind: WarningBlankProductID, Message: "product id is blank"})
			continue
		case item.Quantity <= 0:
			warnings = append(warnings, ValidationWarning{Index: idx, ProductID: productID, Kind: WarningNonPositiveQuantity, Message: fmt.Sprintf("quantity %d must be positive", item.Quantity)})
			continue
		case item.UnitPrice < 0:
			warnings = append(warnings, ValidationWarning{Index: idx, ProductID: productID, Kind: WarningNegativeUnitPrice, Message: fmt.Sprintf("unit price %d must not be negative", item.UnitPrice)})
			continue
		}

		name := strings.TrimSpace(item.Name)
		existing, ok := merged[productID]
		if !ok {
			merged[productID] = &LineItem{ProductID: productID, Name: name, UnitPrice: item.UnitPrice, Quantity: item.Quantity}
			continue
		}
		if existing.UnitPrice != item.UnitPrice {
			warnings = append(warnings, ValidationWarning{
				Index:     idx,
				ProductID: productID,
				Kind:      WarningPriceConflict,
				Message:   fmt.Sprintf("unit price changed from %d to %d", existing.UnitPrice, item.UnitPrice),
			})
			existing.UnitPrice = item.UnitPrice
		}
		if name != "" {
			existing.Name = name
		}
		existing.Quantity += item.Quantity
	}

	if len(merged) == 0 {
		return NormalizedCart{}, &EmptyCartError{Warnings: warnings}
	}

	items := make([]LineItem, 0, len(merged))
	for _, item := range merged {
		items = append(items, *item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

	var total int64
	for _, item := range items {
		total += item.Subtotal()
	}
	return NormalizedCart{
		Items:       items,
		ContentHash: ContentHash(items),
		TotalValue:  total,
		Warnings:    warnings,
	}, nil
}

// ContentHash fingerprints (productId, quantity, unitPrice) tuples of items
// already in canonical order. It is used for change detection only.
func ContentHash(items []LineItem) string {
	h := fnv.New64a()
	for _, item := range items {
		h.Write([]byte(item.ProductID))
		h.Write([]byte{0x1f})
		h.Write([]byte(strconv.Itoa(item.Quantity)))
		h.Write([]byte{0x1f})
		h.Write([]byte(strconv.FormatInt(item.UnitPrice, 10)))
		h.Write([]byte{0x1e})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
