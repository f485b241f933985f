package domain

import "fmt"

// ReasonCode is the closed set of causes an audit entry can carry.
type ReasonCode uint8

const (
	reasonUnknown ReasonCode = iota
	ReasonReceiving
	ReasonDamage
	ReasonCorrection
	ReasonCycleCount
	ReasonReturn
	ReasonAllocation
	ReasonRelease
	ReasonFulfillment
)

var reasonNames = map[ReasonCode]string{
	ReasonReceiving:   "RECEIVING",
	ReasonDamage:      "DAMAGE",
	ReasonCorrection:  "CORRECTION",
	ReasonCycleCount:  "CYCLE_COUNT",
	ReasonReturn:      "RETURN",
	ReasonAllocation:  "ALLOCATION",
	ReasonRelease:     "RELEASE",
	ReasonFulfillment: "FULFILLMENT",
}

func (r ReasonCode) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsManual reports whether operators may submit the code through Adjust.
// Allocation, release and fulfillment entries are written by the engines only.
func (r ReasonCode) IsManual() bool {
	switch r {
	case ReasonReceiving, ReasonDamage, ReasonCorrection, ReasonCycleCount, ReasonReturn:
		return true
	}
	return false
}

func (r ReasonCode) Valid() bool {
	_, ok := reasonNames[r]
	return ok
}

func ParseReasonCode(s string) (ReasonCode, error) {
	for code, name := range reasonNames {
		if name == s {
			return code, nil
		}
	}
	return reasonUnknown, NewInvalidAdjustment(fmt.Sprintf("unknown reason code %q", s))
}

func (r ReasonCode) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid reason code %d", r)
	}
	return []byte(r.String()), nil
}

func (r *ReasonCode) UnmarshalText(text []byte) error {
	code, err := ParseReasonCode(string(text))
	if err != nil {
		return err
	}
	*r = code
	return nil
}
