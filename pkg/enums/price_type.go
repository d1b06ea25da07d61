package enums

import "fmt"

// PriceType describes how a listing is priced.
type PriceType string

const (
	PriceTypeFixed PriceType = "fixed"
	PriceTypeOffer PriceType = "offer"
)

var validPriceTypes = []PriceType{
	PriceTypeFixed,
	PriceTypeOffer,
}

// String implements fmt.Stringer.
func (p PriceType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PriceType.
func (p PriceType) IsValid() bool {
	for _, candidate := range validPriceTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePriceType converts raw input into a PriceType.
func ParsePriceType(value string) (PriceType, error) {
	for _, candidate := range validPriceTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid price type %q", value)
}
