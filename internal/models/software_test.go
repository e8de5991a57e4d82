package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func cycle(c CostCycle) *CostCycle { return &c }

func TestSummarizeCosts(t *testing.T) {
	summary := SummarizeCosts([]CostBucket{
		{CostCycle: cycle(CostCycleMonthly), Total: 100, Count: 2},
		{CostCycle: cycle(CostCycleYearly), Total: 1200, Count: 1},
		{CostCycle: cycle(CostCycleOnce), Total: 900, Count: 3},
		{CostCycle: nil, Total: 50, Count: 1},
	})

	assert.InDelta(t, 2250, summary.TotalCost, 0.0001)
	assert.InDelta(t, 200, summary.MonthlyEstimate, 0.0001)
	assert.InDelta(t, 1200+1200+300, summary.YearlyEstimate, 0.0001)
	assert.Equal(t, 7, summary.SoftwareCount)
}

func TestSoftwareUsage(t *testing.T) {
	s := Software{TotalLicenses: 40, UsedLicenses: 38}
	assert.Equal(t, 2, s.AvailableLicenses())
	assert.InDelta(t, 95, s.UsagePercent(), 0.0001)
	assert.Zero(t, (&Software{}).UsagePercent())
}

func TestRoleSet(t *testing.T) {
	set := RoleSet{RoleUser, RoleSoftwareManager}
	assert.True(t, set.Intersects([]Role{RoleAdmin, RoleSoftwareManager}))
	assert.False(t, set.Intersects([]Role{RoleAdmin}))
	assert.False(t, RoleSet{}.Intersects([]Role{RoleUser}))
	assert.Equal(t, RoleSoftwareManager, set.Highest())
	assert.Equal(t, RoleUser, RoleSet{"GUEST"}.Highest())
	assert.False(t, Role("GUEST").Valid())
}

func TestRoleSetScan(t *testing.T) {
	var set RoleSet
	assert.NoError(t, set.Scan([]byte(`{ADMIN,USER}`)))
	assert.Equal(t, RoleSet{RoleAdmin, RoleUser}, set)

	v, err := RoleSet{RoleNoticeManager}.Value()
	assert.NoError(t, err)
	assert.Equal(t, `{"NOTICE_MANAGER"}`, v)
}
