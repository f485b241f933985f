package domain

import "time"

// RecordKey identifies one ledger row.
type RecordKey struct {
	TenantID string
	SkuID    string
	Location string
}

type InventoryRecord struct {
	TenantID  string    `json:"tenantId"`
	SkuID     string    `json:"skuId"`
	Location  string    `json:"location"`
	OnHand    int       `json:"onHand"`
	Allocated int       `json:"allocated"`
	Version   int       `json:"version"` // optimistic locking
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func NewInventoryRecord(key RecordKey, now time.Time) *InventoryRecord {
	return &InventoryRecord{
		TenantID:  key.TenantID,
		SkuID:     key.SkuID,
		Location:  key.Location,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (r InventoryRecord) Key() RecordKey {
	return RecordKey{TenantID: r.TenantID, SkuID: r.SkuID, Location: r.Location}
}

// Available can be negative while a correction is in flight.
func (r InventoryRecord) Available() int {
	return r.OnHand - r.Allocated
}
