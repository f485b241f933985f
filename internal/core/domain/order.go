package domain

import (
	"sort"
	"time"
)

type OrderLine struct {
	SkuID    string `json:"skuId"`
	Quantity int    `json:"quantity"`
}

// AllocationRequest is the input to Allocate. It is not persisted; its effect
// is the ledger mutation plus one audit entry per SKU.
type AllocationRequest struct {
	TenantID     string
	OrderID      string
	Location     string
	Lines        []OrderLine
	ActingUserID string
}

func (r AllocationRequest) Validate() error {
	if r.TenantID == "" || r.OrderID == "" || r.Location == "" {
		return NewValidation("tenant, order and location are required")
	}
	if len(r.Lines) == 0 {
		return NewValidation("at least one line is required")
	}
	return ValidateLines(r.Lines)
}

func ValidateLines(lines []OrderLine) error {
	for _, l := range lines {
		if l.SkuID == "" {
			return NewValidation("line sku is required")
		}
		if l.Quantity <= 0 {
			return NewValidation("line quantity must be positive")
		}
	}
	return nil
}

// MergeLines sums quantities of repeated SKUs and orders the result by SKU so
// that every transaction locks rows in the same order.
func MergeLines(lines []OrderLine) []OrderLine {
	totals := make(map[string]int, len(lines))
	for _, l := range lines {
		totals[l.SkuID] += l.Quantity
	}
	merged := make([]OrderLine, 0, len(totals))
	for sku, qty := range totals {
		merged = append(merged, OrderLine{SkuID: sku, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].SkuID < merged[j].SkuID })
	return merged
}

type AllocationDetail struct {
	SkuID      string `json:"skuId"`
	Required   int    `json:"required"`
	Available  int    `json:"available"`
	Sufficient bool   `json:"sufficient"`
}

type AllocationCheck struct {
	OrderID     string             `json:"orderId"`
	Location    string             `json:"location"`
	CanAllocate bool               `json:"canAllocate"`
	Details     []AllocationDetail `json:"details"`
}

// LineResult reports what a release or fulfillment actually moved for one SKU.
type LineResult struct {
	SkuID     string `json:"skuId"`
	Requested int    `json:"requested"`
	Applied   int    `json:"applied"`
}

// SalesSample is one fulfilled order line, as read from order history.
type SalesSample struct {
	SkuID       string
	OrderID     string
	Quantity    int
	FulfilledAt time.Time
}

type Product struct {
	SkuID    string `json:"skuId"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Brand    string `json:"brand"`
}
