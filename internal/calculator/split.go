package calculator

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
)

// PersonSplit represents the calculated share of an expense for one person
type PersonSplit struct {
	Subtotal money.Amount
	Total    money.Amount
}

// Item represents a single line item on the expense
type Item struct {
	Description string
	Amount      money.Amount
	AssignedTo  []string
}

// CalculateSplit computes how much each participant consumed of an expense,
// scaling item subtotals up (or down) to the expense total:
// person_total = person_subtotal × total / subtotal, floored to minor units.
// Leftover minor units are handed out one at a time in participant order,
// so the totals always add up to total exactly.
func CalculateSplit(items []Item, total, subtotal money.Amount, participants []string) (map[string]*PersonSplit, error) {
	if subtotal.IsZero() {
		return nil, fmt.Errorf("%w: subtotal cannot be zero", models.ErrInvalidSplit)
	}
	if len(participants) == 0 {
		return nil, fmt.Errorf("%w: must have at least one participant", models.ErrInvalidSplit)
	}

	people := slices.Clone(participants)
	slices.Sort(people)
	people = slices.Compact(people)

	splits := make(map[string]*PersonSplit, len(people))
	for _, p := range people {
		splits[p] = &PersonSplit{}
	}

	// If no items, split the total equally among all participants
	if len(items) == 0 {
		subParts := subtotal.SplitEvenly(len(people))
		totalParts := total.SplitEvenly(len(people))
		for i, p := range people {
			splits[p].Subtotal = subParts[i]
			splits[p].Total = totalParts[i]
		}
		return splits, nil
	}

	amounts := make([]money.Amount, len(items))
	for i, item := range items {
		if len(item.AssignedTo) == 0 {
			return nil, fmt.Errorf("%w: item %q is not assigned", models.ErrInvalidSplit, item.Description)
		}
		amounts[i] = item.Amount
	}
	itemsTotal, err := money.Sum(amounts...)
	if err != nil {
		return nil, fmt.Errorf("%w: items total: %w", models.ErrInvalidSplit, err)
	}
	if itemsTotal.Cmp(subtotal) != 0 {
		return nil, fmt.Errorf("%w: items add up to %s, subtotal is %s", models.ErrInvalidSplit, itemsTotal, subtotal)
	}

	// Split each item among assigned people. Subtotals are bounded by itemsTotal.
	for _, item := range items {
		parts := item.Amount.SplitEvenly(len(item.AssignedTo))
		for i, person := range item.AssignedTo {
			split, ok := splits[person]
			if !ok {
				return nil, fmt.Errorf("%w: %s is not a participant", models.ErrInvalidSplit, person)
			}
			if split.Subtotal, err = split.Subtotal.Add(parts[i]); err != nil {
				return nil, fmt.Errorf("%w: %w", models.ErrInvalidSplit, err)
			}
		}
	}

	// Scale to the total and track what flooring left over
	var allocated int64
	var receivers []string
	for _, p := range people {
		scaled := decimal.NewFromInt(splits[p].Subtotal.Minor()).Mul(decimal.NewFromInt(total.Minor()))
		quo, _ := scaled.QuoRem(decimal.NewFromInt(subtotal.Minor()), 0)
		share := quo.IntPart()
		splits[p].Total = money.MustNew(share)
		allocated += share
		if !splits[p].Subtotal.IsZero() {
			receivers = append(receivers, p)
		}
	}
	for i := 0; allocated < total.Minor(); i = (i + 1) % len(receivers) {
		p := receivers[i]
		splits[p].Total = money.MustNew(splits[p].Total.Minor() + 1)
		allocated++
	}

	return splits, nil
}

// Shares flattens a split result to the member -> amount form the ledger
// takes when creating splits.
func Shares(splits map[string]*PersonSplit) map[string]money.Amount {
	shares := make(map[string]money.Amount, len(splits))
	for p, s := range splits {
		shares[p] = s.Total
	}
	return shares
}

// CalculateShares is CalculateSplit reduced to each participant's total.
func CalculateShares(items []Item, total, subtotal money.Amount, participants []string) (map[string]money.Amount, error) {
	splits, err := CalculateSplit(items, total, subtotal, participants)
	if err != nil {
		return nil, err
	}
	return Shares(splits), nil
}
