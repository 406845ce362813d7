package loan

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ajoflow/coop-core/internal/domain"
)

// maxScheduleMonths caps reducing-balance iteration so a payment that
// barely covers interest cannot loop unbounded.
const maxScheduleMonths = 360

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
	one     = decimal.NewFromInt(1)
)

type ScheduleEntry struct {
	Month     int
	Interest  int64
	Principal int64
	Balance   int64
}

// monthlyRate converts an annual percentage rate to a monthly fraction.
func monthlyRate(annualRate decimal.Decimal) decimal.Decimal {
	return annualRate.Div(hundred).Div(twelve)
}

// Schedule projects a reducing-balance repayment schedule: each month the
// payment first covers interest on the remaining balance, and the rest
// retires principal.
func Schedule(principal int64, annualRate decimal.Decimal, payment int64) ([]ScheduleEntry, error) {
	if principal <= 0 || payment <= 0 {
		return nil, fmt.Errorf("Schedule: %w", domain.ErrInvalidAmount)
	}

	rate := monthlyRate(annualRate)
	pay := decimal.NewFromInt(payment)
	balance := decimal.NewFromInt(principal)

	var entries []ScheduleEntry
	for month := 1; balance.IsPositive(); month++ {
		if month > maxScheduleMonths {
			return nil, fmt.Errorf("Schedule: exceeds %d months: %w", maxScheduleMonths, domain.ErrPaymentTooSmall)
		}

		interest := balance.Mul(rate).Round(0)
		if pay.LessThanOrEqual(interest) {
			return nil, fmt.Errorf("Schedule: %w", domain.ErrPaymentTooSmall)
		}

		principalPart := pay.Sub(interest)
		if principalPart.GreaterThan(balance) {
			principalPart = balance
		}
		balance = balance.Sub(principalPart)

		entries = append(entries, ScheduleEntry{
			Month:     month,
			Interest:  interest.IntPart(),
			Principal: principalPart.IntPart(),
			Balance:   balance.IntPart(),
		})
	}
	return entries, nil
}

// MinimumPayment returns the closed-form annuity payment
// P·r·(1+r)^n / ((1+r)^n − 1) rounded to minor units. A zero rate
// degenerates to straight-line principal.
func MinimumPayment(principal int64, annualRate decimal.Decimal, months int) (int64, error) {
	if principal <= 0 {
		return 0, fmt.Errorf("MinimumPayment: %w", domain.ErrInvalidAmount)
	}
	if months <= 0 {
		return 0, fmt.Errorf("MinimumPayment: months: %w", domain.ErrInvalidAmount)
	}

	p := decimal.NewFromInt(principal)
	n := decimal.NewFromInt(int64(months))

	rate := monthlyRate(annualRate)
	if rate.IsZero() {
		return p.Div(n).Ceil().IntPart(), nil
	}

	compound := one.Add(rate).Pow(n)
	payment := p.Mul(rate).Mul(compound).Div(compound.Sub(one))
	return payment.Round(0).IntPart(), nil
}

// TotalRepayable is the flat-interest amount owed over the loan's life:
// principal plus simple interest at the annual rate for the term.
func TotalRepayable(principal int64, annualRate decimal.Decimal, months int) int64 {
	p := decimal.NewFromInt(principal)
	interest := p.Mul(annualRate).Div(hundred).Mul(decimal.NewFromInt(int64(months))).Div(twelve)
	return p.Add(interest.Round(0)).IntPart()
}

// ExtensionCharge is the simple-interest charge for a default extension:
// outstanding × rate × (months/12).
func ExtensionCharge(outstanding int64, annualRate decimal.Decimal, months int) int64 {
	o := decimal.NewFromInt(outstanding)
	charge := o.Mul(annualRate).Div(hundred).Mul(decimal.NewFromInt(int64(months))).Div(twelve)
	return charge.Round(0).IntPart()
}

// SplitRepayment allocates a payment between principal and interest using
// the loan's original ratio: principal = amount·L/T, interest = remainder.
// The ratio is deliberately not recomputed against the remaining balance.
func SplitRepayment(amount, principal, totalRepayable int64) (principalPortion, interestPortion int64) {
	if totalRepayable <= 0 {
		return amount, 0
	}
	a := decimal.NewFromInt(amount)
	ratio := decimal.NewFromInt(principal).Div(decimal.NewFromInt(totalRepayable))
	principalPortion = a.Mul(ratio).Round(0).IntPart()
	interestPortion = amount - principalPortion
	return principalPortion, interestPortion
}
