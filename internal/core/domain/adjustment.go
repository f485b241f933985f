package domain

import "fmt"

// Adjustment is a manual on-hand change submitted by operator tooling.
type Adjustment struct {
	TenantID      string
	SkuID         string
	Location      string
	QuantityDelta int
	Reason        ReasonCode
	ActingUserID  string
}

func (a Adjustment) Key() RecordKey {
	return RecordKey{TenantID: a.TenantID, SkuID: a.SkuID, Location: a.Location}
}

func (a Adjustment) Validate() error {
	if a.TenantID == "" || a.SkuID == "" || a.Location == "" {
		return NewValidation("tenant, sku and location are required")
	}
	if !a.Reason.IsManual() {
		return NewInvalidAdjustment(fmt.Sprintf("reason code %s is not allowed for manual adjustments", a.Reason))
	}
	if a.QuantityDelta == 0 {
		return NewInvalidAdjustment("quantity delta must be non-zero")
	}
	return nil
}
