package domain

import (
	"time"

	"github.com/google/uuid"
)

// Bucket names the ledger counter an event moved.
type Bucket string

const (
	BucketOnHand    Bucket = "on_hand"
	BucketAllocated Bucket = "allocated"
)

// AdjustmentEvent is an append-only audit entry. It is written in the same
// transaction as the ledger change it describes.
type AdjustmentEvent struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenantId"`
	SkuID         string     `json:"skuId"`
	Location      string     `json:"location"`
	Bucket        Bucket     `json:"bucket"`
	QuantityDelta int        `json:"quantityDelta"`
	ReasonCode    ReasonCode `json:"reasonCode"`
	OrderID       string     `json:"orderId,omitempty"`
	ActingUserID  string     `json:"actingUserId,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func NewAdjustmentEvent(key RecordKey, bucket Bucket, delta int, reason ReasonCode, orderID, actingUserID string, now time.Time) AdjustmentEvent {
	return AdjustmentEvent{
		ID:            uuid.NewString(),
		TenantID:      key.TenantID,
		SkuID:         key.SkuID,
		Location:      key.Location,
		Bucket:        bucket,
		QuantityDelta: delta,
		ReasonCode:    reason,
		OrderID:       orderID,
		ActingUserID:  actingUserID,
		CreatedAt:     now,
	}
}
