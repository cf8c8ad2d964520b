// Package quota implements per-user monthly generation accounting with
// plan-derived limits and a calendar-month reset.
package quota

import (
	"time"

	"prdgen/pkg/domain"
)

// Monthly generation limits per plan. ENTERPRISE is effectively unlimited.
const (
	FreeLimit       = 5
	ProLimit        = 50
	EnterpriseLimit = 999999
)

// PlanLimit returns the monthly limit for a plan. Unknown plan values fall
// back to the FREE limit.
func PlanLimit(plan domain.Plan) int {
	switch plan {
	case domain.PlanPro:
		return ProLimit
	case domain.PlanEnterprise:
		return EnterpriseLimit
	default:
		return FreeLimit
	}
}

// Rollover resets the counter when now falls in a different calendar month or
// year than the account's reset date. This is a month-boundary comparison, not
// an elapsed-duration check: an account last reset on the 1st rolls over the
// instant the calendar month changes.
func Rollover(acct domain.UsageAccount, now time.Time) domain.UsageAccount {
	if acct.MonthResetDate.Month() == now.Month() && acct.MonthResetDate.Year() == now.Year() {
		return acct
	}
	acct.GenerationsThisMonth = 0
	acct.MonthResetDate = now
	return acct
}

// Admit applies the rollover and evaluates admission against the plan limit.
// The returned account reflects any rollover and must be persisted by the
// caller even when admission is denied.
func Admit(acct domain.UsageAccount, now time.Time) (bool, domain.UsageAccount) {
	acct = Rollover(acct, now)
	return acct.GenerationsThisMonth < PlanLimit(acct.Plan), acct
}

// Consume charges one generation against the account. Call only after a
// successful, validated generation: failures never consume quota.
func Consume(acct domain.UsageAccount) domain.UsageAccount {
	acct.GenerationsThisMonth++
	return acct
}

// NewAccount builds the lazily-created account for first-time users.
func NewAccount(userID, email string, now time.Time) domain.UsageAccount {
	return domain.UsageAccount{
		UserID:         userID,
		Email:          email,
		Plan:           domain.PlanFree,
		MonthResetDate: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
