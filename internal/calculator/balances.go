package calculator

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
)

// PairBalance is what two members owe each other on unsettled splits.
// MemberA sorts before MemberB.
type PairBalance struct {
	MemberA string
	MemberB string
	AOwesB  money.Amount
	BOwesA  money.Amount
}

// Net returns AOwesB - BOwesA in minor units. Positive means A owes B.
func (p PairBalance) Net() int64 {
	return p.AOwesB.Minor() - p.BOwesA.Minor()
}

// MemberBalance represents the balance information for one group member.
type MemberBalance struct {
	MemberID string
	Owed     money.Amount // owed to this member by others
	Owes     money.Amount // this member owes others
}

// Net returns Owed - Owes in minor units. Positive = owed money, negative = owes money.
func (m MemberBalance) Net() int64 {
	return m.Owed.Minor() - m.Owes.Minor()
}

// DebtEdge represents a suggested payment from one member to another.
type DebtEdge struct {
	From   string // Member who owes
	To     string // Member who is owed
	Amount money.Amount
}

type pair struct{ a, b string }

// PairBalances sums the remaining amount of every split per unordered
// member pair. Pairs whose splits are all settled are omitted.
func PairBalances(splits []*models.Split) ([]PairBalance, error) {
	byPair := make(map[pair]*PairBalance)
	for _, s := range splits {
		if s.Remaining.IsZero() {
			continue
		}
		k := pair{s.OwedBy, s.OwedTo}
		aOwes := true
		if k.b < k.a {
			k = pair{k.b, k.a}
			aOwes = false
		}
		pb, ok := byPair[k]
		if !ok {
			pb = &PairBalance{MemberA: k.a, MemberB: k.b}
			byPair[k] = pb
		}
		side := &pb.AOwesB
		if !aOwes {
			side = &pb.BOwesA
		}
		sum, err := side.Add(s.Remaining)
		if err != nil {
			return nil, fmt.Errorf("balance %s/%s: %w", k.a, k.b, err)
		}
		*side = sum
	}

	out := make([]PairBalance, 0, len(byPair))
	for _, pb := range byPair {
		out = append(out, *pb)
	}
	slices.SortFunc(out, func(x, y PairBalance) int {
		return cmp.Or(cmp.Compare(x.MemberA, y.MemberA), cmp.Compare(x.MemberB, y.MemberB))
	})
	return out, nil
}

// PairOwed returns how much from owes to on the given splits, ignoring
// what to owes from.
func PairOwed(splits []*models.Split, from, to string) (money.Amount, error) {
	var owed []money.Amount
	for _, s := range splits {
		if s.OwedBy == from && s.OwedTo == to {
			owed = append(owed, s.Remaining)
		}
	}
	total, err := money.Sum(owed...)
	if err != nil {
		return money.Zero, fmt.Errorf("balance %s -> %s: %w", from, to, err)
	}
	return total, nil
}

// MemberBalances computes each member's owed and owing totals, sorted by member ID.
func MemberBalances(splits []*models.Split) ([]MemberBalance, error) {
	balances := make(map[string]*MemberBalance)
	member := func(id string) *MemberBalance {
		if _, exists := balances[id]; !exists {
			balances[id] = &MemberBalance{MemberID: id}
		}
		return balances[id]
	}
	for _, s := range splits {
		if s.Remaining.IsZero() {
			continue
		}
		debtor, creditor := member(s.OwedBy), member(s.OwedTo)
		owes, err := debtor.Owes.Add(s.Remaining)
		if err != nil {
			return nil, fmt.Errorf("balance of %s: %w", s.OwedBy, err)
		}
		owed, err := creditor.Owed.Add(s.Remaining)
		if err != nil {
			return nil, fmt.Errorf("balance of %s: %w", s.OwedTo, err)
		}
		debtor.Owes, creditor.Owed = owes, owed
	}

	out := make([]MemberBalance, 0, len(balances))
	for _, b := range balances {
		out = append(out, *b)
	}
	slices.SortFunc(out, func(x, y MemberBalance) int { return cmp.Compare(x.MemberID, y.MemberID) })
	return out, nil
}

type position struct {
	member string
	amount int64 // always positive
}

// SettleUp suggests a small set of payments that zeroes every member's net
// balance. Each round pairs the largest debtor with the largest creditor
// and settles the smaller of the two amounts; ties go to the lower member ID.
func SettleUp(splits []*models.Split) ([]DebtEdge, error) {
	balances, err := MemberBalances(splits)
	if err != nil {
		return nil, err
	}
	var debtors, creditors []position
	for _, b := range balances {
		switch net := b.Net(); {
		case net < 0:
			debtors = append(debtors, position{b.MemberID, -net})
		case net > 0:
			creditors = append(creditors, position{b.MemberID, net})
		}
	}

	var edges []DebtEdge
	for len(debtors) > 0 && len(creditors) > 0 {
		sortPositions(debtors)
		sortPositions(creditors)
		d, c := &debtors[0], &creditors[0]

		amount := min(d.amount, c.amount)
		edges = append(edges, DebtEdge{From: d.member, To: c.member, Amount: money.MustNew(amount)})
		d.amount -= amount
		c.amount -= amount

		if d.amount == 0 {
			debtors = debtors[1:]
		}
		if c.amount == 0 {
			creditors = creditors[1:]
		}
	}
	return edges, nil
}

func sortPositions(ps []position) {
	slices.SortFunc(ps, func(x, y position) int {
		return cmp.Or(cmp.Compare(y.amount, x.amount), cmp.Compare(x.member, y.member))
	})
}
