// Package tiers defines the subscription tier descriptors that govern per-caller
// monthly request ceilings. Descriptors are static configuration: the billing
// system decides which tier an account is on, this package decides what that
// tier allows.
package tiers

// Unlimited is the sentinel monthly limit meaning "no ceiling". The quota
// tracker never touches the counter store for an unlimited tier.
const Unlimited = -1

// Tier describes one subscription level.
type Tier struct {
	Name                string `json:"name"`
	MonthlyRequestLimit int64  `json:"monthly_request_limit"`
	// MaxQRCodes is the dynamic-resource ceiling enforced by the dashboard
	// CRUD layer, not by the API gate. Carried here so one descriptor serves
	// both surfaces.
	MaxQRCodes int `json:"max_qr_codes"`
}

// IsUnlimited reports whether the tier has no monthly request ceiling.
func (t Tier) IsUnlimited() bool {
	return t.MonthlyRequestLimit == Unlimited
}

var (
	// Free is the default tier for accounts without an active subscription.
	Free = Tier{Name: "free", MonthlyRequestLimit: 500, MaxQRCodes: 10}

	// Pro is the individual paid tier.
	Pro = Tier{Name: "pro", MonthlyRequestLimit: 25000, MaxQRCodes: 250}

	// Business has no monthly request ceiling.
	Business = Tier{Name: "business", MonthlyRequestLimit: Unlimited, MaxQRCodes: 5000}
)

var byName = map[string]Tier{
	Free.Name:     Free,
	Pro.Name:      Pro,
	Business.Name: Business,
}

// ByName resolves a tier descriptor from its name. Unknown or empty names
// resolve to Free so a missing or malformed billing record degrades to the
// most restrictive ceiling rather than an error.
func ByName(name string) Tier {
	if t, ok := byName[name]; ok {
		return t
	}
	return Free
}
