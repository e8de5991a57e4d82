package models

import (
	"time"

	"github.com/lib/pq"
)

// CostCycle is the billing period of a license cost.
type CostCycle string

const (
	CostCycleMonthly CostCycle = "MONTHLY"
	CostCycleYearly  CostCycle = "YEARLY"
	CostCycleOnce    CostCycle = "ONCE"
)

// Software is a licensed product tracked in the inventory.
type Software struct {
	ID                string         `db:"id" json:"id"`
	Name              string         `db:"name" json:"name"`
	Description       *string        `db:"description" json:"description,omitempty"`
	Version           *string        `db:"version" json:"version,omitempty"`
	Vendor            *string        `db:"vendor" json:"vendor,omitempty"`
	ManagerID         string         `db:"manager_id" json:"manager_id"`
	LicenseCost       *float64       `db:"license_cost" json:"license_cost,omitempty"`
	CostCycle         *CostCycle     `db:"cost_cycle" json:"cost_cycle,omitempty"`
	DepartmentIDs     pq.StringArray `db:"department_ids" json:"department_ids"`
	TotalLicenses     int            `db:"total_licenses" json:"total_licenses"`
	UsedLicenses      int            `db:"used_licenses" json:"used_licenses"`
	IsActive          bool           `db:"is_active" json:"is_active"`
	LicenseExpiryDate *time.Time     `db:"license_expiry_date" json:"license_expiry_date,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// AvailableLicenses returns the number of unassigned seats.
func (s *Software) AvailableLicenses() int {
	return s.TotalLicenses - s.UsedLicenses
}

// UsagePercent returns the share of used seats, 0 when no seats exist.
func (s *Software) UsagePercent() float64 {
	if s.TotalLicenses <= 0 {
		return 0
	}
	return float64(s.UsedLicenses) / float64(s.TotalLicenses) * 100
}

// SoftwareFilter selects active software.
type SoftwareFilter struct {
	ManagerID string
	Limit     int
	Offset    int
}

// SoftwareCostSummary aggregates license spend across active software.
type SoftwareCostSummary struct {
	TotalCost       float64 `json:"total_cost"`
	MonthlyEstimate float64 `json:"monthly_estimate"`
	YearlyEstimate  float64 `json:"yearly_estimate"`
	SoftwareCount   int     `json:"software_count"`
}

// CostBucket is the summed license cost of active software sharing a cost cycle.
type CostBucket struct {
	CostCycle *CostCycle `db:"cost_cycle"`
	Total     float64    `db:"total_cost"`
	Count     int        `db:"software_count"`
}

// SummarizeCosts folds per-cycle buckets into monthly and yearly estimates.
// One-off purchases are amortised over three years.
func SummarizeCosts(buckets []CostBucket) SoftwareCostSummary {
	var summary SoftwareCostSummary
	for _, b := range buckets {
		summary.TotalCost += b.Total
		summary.SoftwareCount += b.Count
		if b.CostCycle == nil {
			continue
		}
		switch *b.CostCycle {
		case CostCycleMonthly:
			summary.MonthlyEstimate += b.Total
			summary.YearlyEstimate += b.Total * 12
		case CostCycleYearly:
			summary.MonthlyEstimate += b.Total / 12
			summary.YearlyEstimate += b.Total
		case CostCycleOnce:
			summary.YearlyEstimate += b.Total / 3
		}
	}
	return summary
}
