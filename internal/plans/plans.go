// Package plans holds the size-class catalog: hourly and monthly rates plus
// the bandwidth allowance included with each size.
package plans

// OverageRate is the per-GB overage multiplier applied to the monthly price
// in dollars. 100 GB over on a $10/mo plan costs 100 * 10 * 0.005 = $5.00.
const OverageRate = 0.005

type Plan struct {
	Slug         string
	HourlyCents  int64
	MonthlyCents int64
	BandwidthGB  float64
	VCPUs        int
	MemoryMB     int
	DiskGB       int
}

// MonthlyDollars is the monthly price in floating dollars, used for overage
// arithmetic before the final amount is rounded back to cents.
func (p Plan) MonthlyDollars() float64 {
	return float64(p.MonthlyCents) / 100
}

// Catalog maps size slugs to plans. Lookups on unknown slugs fall back to
// Default so a stale or mistyped slug still meters instead of billing zero.
type Catalog struct {
	plans   map[string]Plan
	Default Plan
}

func NewCatalog(defaultPlan Plan, plans ...Plan) *Catalog {
	c := &Catalog{plans: make(map[string]Plan, len(plans)), Default: defaultPlan}
	for _, p := range plans {
		c.plans[p.Slug] = p
	}
	return c
}

// Lookup returns the plan for slug, or the default plan when unrecognized.
func (c *Catalog) Lookup(slug string) Plan {
	if p, ok := c.plans[slug]; ok {
		return p
	}
	return c.Default
}

// Known reports whether slug is a real catalog entry.
func (c *Catalog) Known(slug string) bool {
	_, ok := c.plans[slug]
	return ok
}

// DefaultCatalog mirrors the reseller's droplet lineup.
func DefaultCatalog() *Catalog {
	basic := Plan{Slug: "s-1vcpu-1gb", HourlyCents: 1, MonthlyCents: 700, BandwidthGB: 1000, VCPUs: 1, MemoryMB: 1024, DiskGB: 25}
	return NewCatalog(basic,
		basic,
		Plan{Slug: "s-1vcpu-2gb", HourlyCents: 2, MonthlyCents: 1400, BandwidthGB: 2000, VCPUs: 1, MemoryMB: 2048, DiskGB: 50},
		Plan{Slug: "s-2vcpu-2gb", HourlyCents: 3, MonthlyCents: 2100, BandwidthGB: 3000, VCPUs: 2, MemoryMB: 2048, DiskGB: 60},
		Plan{Slug: "s-2vcpu-4gb", HourlyCents: 5, MonthlyCents: 3500, BandwidthGB: 4000, VCPUs: 2, MemoryMB: 4096, DiskGB: 80},
		Plan{Slug: "s-4vcpu-8gb", HourlyCents: 10, MonthlyCents: 7000, BandwidthGB: 5000, VCPUs: 4, MemoryMB: 8192, DiskGB: 160},
	)
}
