package domain

// Tier is the ordered size class shared by vehicles and slots.
// A slot accepts any vehicle of its own tier or smaller.
type Tier int

const (
	TierSmall Tier = iota
	TierMedium
	TierLarge
)

// ParseTier maps the wire representation ("small", "medium", "large") to a Tier.
func ParseTier(s string) (Tier, bool) {
	switch s {
	case "small":
		return TierSmall, true
	case "medium":
		return TierMedium, true
	case "large":
		return TierLarge, true
	}
	return 0, false
}

func (t Tier) String() string {
	switch t {
	case TierSmall:
		return "small"
	case TierMedium:
		return "medium"
	case TierLarge:
		return "large"
	}
	return "unknown"
}

// Fits reports whether a slot of this tier can take a vehicle of the given tier.
func (t Tier) Fits(vehicle Tier) bool {
	return t >= vehicle
}
