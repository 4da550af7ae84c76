package commission

import "math"

// Rate is the platform's fixed cut of every bid amount.
const Rate = 0.30

// Breakdown is the derived commission split for a bid amount. It is computed
// on demand and never persisted on its own.
type Breakdown struct {
	CommissionAmount float64 `json:"commission_amount"`
	DriverEarnings   float64 `json:"driver_earnings"`
	PlatformFee      float64 `json:"platform_fee"`
}

// Calculate splits amount into platform commission and driver earnings.
// Both values are floored (not rounded) to 2 decimals; reconciliation
// downstream depends on reproducing this exactly.
func Calculate(amount float64) Breakdown {
	c := floor2(amount * Rate)
	e := floor2(amount - c)
	return Breakdown{CommissionAmount: c, DriverEarnings: e, PlatformFee: c}
}

func floor2(v float64) float64 { return math.Floor(v*100) / 100 }
