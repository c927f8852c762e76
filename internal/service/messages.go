package service

import (
	"fmt"

	"github.com/mmynk/settleup/internal/calculator"
	"github.com/mmynk/settleup/internal/ledger"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
	"github.com/mmynk/settleup/internal/settle"
)

// Amounts on the wire are integer minor units. Requests that carry an
// amount also accept it as a decimal string in the matching *_text field.

// Expense is a shared cost paid by one member.
type Expense struct {
	ID          string       `json:"id"`
	GroupID     string       `json:"group_id"`
	Description string       `json:"description,omitempty"`
	PayerID     string       `json:"payer_id"`
	Amount      money.Amount `json:"amount"`
	CreatedAt   int64        `json:"created_at"`
	Paid        bool         `json:"paid"`
}

// Split is what one member owes another for an expense.
type Split struct {
	ID               string       `json:"id"`
	GroupID          string       `json:"group_id"`
	ExpenseID        string       `json:"expense_id"`
	ExpenseCreatedAt int64        `json:"expense_created_at"`
	OwedBy           string       `json:"owed_by"`
	OwedTo           string       `json:"owed_to"`
	Original         money.Amount `json:"original"`
	Remaining        money.Amount `json:"remaining"`
	Paid             bool         `json:"paid"`
	// State is unsettled, partially_settled or fully_settled.
	State string `json:"state"`
}

// Allocation is the part of a settlement event applied to one split.
// ReversedAt is zero while the allocation is active.
type Allocation struct {
	Seq        int          `json:"seq"`
	SplitID    string       `json:"split_id"`
	Amount     money.Amount `json:"amount"`
	Positive   bool         `json:"positive"`
	ReversedAt int64        `json:"reversed_at,omitempty"`
}

// HistoryEvent is one recorded settlement between a payer and a payee.
type HistoryEvent struct {
	ID          string       `json:"id"`
	GroupID     string       `json:"group_id"`
	PayerID     string       `json:"payer_id"`
	PayeeID     string       `json:"payee_id"`
	Total       money.Amount `json:"total"`
	ActiveTotal money.Amount `json:"active_total"`
	CreatedAt   int64        `json:"created_at"`
	CreatedBy   string       `json:"created_by,omitempty"`
	Note        string       `json:"note,omitempty"`
	Status      string       `json:"status"`
	Allocations []Allocation `json:"allocations"`
}

// Item is a line of an itemized bill.
type Item struct {
	Description    string       `json:"description,omitempty"`
	Amount         money.Amount `json:"amount"`
	ParticipantIDs []string     `json:"participant_ids,omitempty"`
}

// AddExpenseRequest creates an expense and its splits.
type AddExpenseRequest struct {
	GroupID     string       `json:"group_id"`
	Description string       `json:"description,omitempty"`
	PayerID     string       `json:"payer_id"`
	Amount      money.Amount `json:"amount"`
	AmountText  string       `json:"amount_text,omitempty"`
	// Shares, when set, maps each member to the part they consumed.
	// Otherwise shares are calculated from Items, Subtotal and
	// ParticipantIDs.
	Shares         map[string]money.Amount `json:"shares,omitempty"`
	Items          []Item                  `json:"items,omitempty"`
	Subtotal       money.Amount            `json:"subtotal,omitzero"`
	ParticipantIDs []string                `json:"participant_ids,omitempty"`
}

// AddExpenseResponse returns the stored expense and the splits it created.
type AddExpenseResponse struct {
	Expense Expense `json:"expense"`
	Splits  []Split `json:"splits"`
}

// DeleteExpenseRequest names an expense to remove.
type DeleteExpenseRequest struct {
	GroupID   string `json:"group_id"`
	ExpenseID string `json:"expense_id"`
}

// DeleteExpenseResponse is empty.
type DeleteExpenseResponse struct{}

// UpdateSplitRequest sets a new original amount on an unsettled split.
type UpdateSplitRequest struct {
	GroupID    string       `json:"group_id"`
	SplitID    string       `json:"split_id"`
	Amount     money.Amount `json:"amount"`
	AmountText string       `json:"amount_text,omitempty"`
}

// UpdateSplitResponse returns the updated split.
type UpdateSplitResponse struct {
	Split Split `json:"split"`
}

// GroupRequest names the group a read applies to.
type GroupRequest struct {
	GroupID string `json:"group_id"`
}

// SplitsResponse lists splits.
type SplitsResponse struct {
	Splits []Split `json:"splits"`
}

// PairBalance is what two members owe each other. Net is AOwesB - BOwesA.
type PairBalance struct {
	MemberA string       `json:"member_a"`
	MemberB string       `json:"member_b"`
	AOwesB  money.Amount `json:"a_owes_b"`
	BOwesA  money.Amount `json:"b_owes_a"`
	Net     int64        `json:"net"`
}

// MemberBalance is one member's totals. Net is Owed - Owes.
type MemberBalance struct {
	MemberID string       `json:"member_id"`
	Owed     money.Amount `json:"owed"`
	Owes     money.Amount `json:"owes"`
	Net      int64        `json:"net"`
}

// Transfer is a suggested payment.
type Transfer struct {
	From   string       `json:"from"`
	To     string       `json:"to"`
	Amount money.Amount `json:"amount"`
}

// BalancesResponse summarizes what the group's members owe.
type BalancesResponse struct {
	Pairs    []PairBalance   `json:"pairs"`
	Members  []MemberBalance `json:"members"`
	SettleUp []Transfer      `json:"settle_up"`
}

// HistoryResponse lists settlement events, newest first.
type HistoryResponse struct {
	Events []HistoryEvent `json:"events"`
}

// GetEventRequest names one settlement event.
type GetEventRequest struct {
	GroupID string `json:"group_id"`
	EventID string `json:"event_id"`
}

// Payment settles part or all of one split.
type Payment struct {
	SplitID    string       `json:"split_id"`
	Amount     money.Amount `json:"amount"`
	AmountText string       `json:"amount_text,omitempty"`
}

// PaySplitsRequest is a batch of payments from PayerID to PayeeID,
// applied all or nothing.
type PaySplitsRequest struct {
	GroupID  string    `json:"group_id"`
	PayerID  string    `json:"payer_id"`
	PayeeID  string    `json:"payee_id"`
	Note     string    `json:"note,omitempty"`
	Payments []Payment `json:"payments"`
}

// UnpayEventRequest names a settlement event to reverse.
type UnpayEventRequest struct {
	GroupID string `json:"group_id"`
	EventID string `json:"event_id"`
}

// UnpaySingleAllocationRequest reverses one allocation. Amount and
// Positive must restate the recorded allocation.
type UnpaySingleAllocationRequest struct {
	GroupID    string       `json:"group_id"`
	EventID    string       `json:"event_id"`
	SplitID    string       `json:"split_id"`
	Amount     money.Amount `json:"amount"`
	AmountText string       `json:"amount_text,omitempty"`
	Positive   bool         `json:"positive"`
}

// SettlementResponse is returned by the pay and unpay operations.
type SettlementResponse struct {
	Event    HistoryEvent `json:"event"`
	Splits   []Split      `json:"splits"`
	Expenses []Expense    `json:"expenses,omitempty"`
}

// Discrepancy is a split whose settled amount disagrees with its history.
type Discrepancy struct {
	SplitID   string       `json:"split_id"`
	Settled   money.Amount `json:"settled"`
	Allocated money.Amount `json:"allocated"`
	Reason    string       `json:"reason"`
}

// AuditResponse lists discrepancies, empty when the group is consistent.
type AuditResponse struct {
	Discrepancies []Discrepancy `json:"discrepancies"`
}

// resolveAmount returns the amount a message carries. A decimal text takes
// the place of minor units; both may be sent only if they agree.
func resolveAmount(minor money.Amount, text string) (money.Amount, error) {
	if text == "" {
		return minor, nil
	}
	parsed, err := money.Parse(text, money.DefaultExponent)
	if err != nil {
		return money.Zero, fmt.Errorf("%w: %w", models.ErrInvalidAmount, err)
	}
	if !minor.IsZero() && minor.Cmp(parsed) != 0 {
		return money.Zero, fmt.Errorf("%w: amount %d and amount_text %q disagree",
			models.ErrInvalidAmount, minor.Minor(), text)
	}
	return parsed, nil
}

func toExpense(e *models.Expense) Expense {
	return Expense{
		ID:          e.ID,
		GroupID:     e.GroupID,
		Description: e.Description,
		PayerID:     e.PayerID,
		Amount:      e.Amount,
		CreatedAt:   e.CreatedAt,
		Paid:        e.Paid,
	}
}

func toSplit(s *models.Split) Split {
	return Split{
		ID:               s.ID,
		GroupID:          s.GroupID,
		ExpenseID:        s.ExpenseID,
		ExpenseCreatedAt: s.ExpenseCreatedAt,
		OwedBy:           s.OwedBy,
		OwedTo:           s.OwedTo,
		Original:         s.Original,
		Remaining:        s.Remaining,
		Paid:             s.Paid,
		State:            string(s.State()),
	}
}

func toSplits(splits []*models.Split) []Split {
	out := make([]Split, len(splits))
	for i, s := range splits {
		out[i] = toSplit(s)
	}
	return out
}

func toEvent(e *models.HistoryEvent) HistoryEvent {
	out := HistoryEvent{
		ID:          e.ID,
		GroupID:     e.GroupID,
		PayerID:     e.PayerID,
		PayeeID:     e.PayeeID,
		Total:       e.Total,
		ActiveTotal: money.MustNew(e.ActiveTotal()),
		CreatedAt:   e.CreatedAt,
		CreatedBy:   e.CreatedBy,
		Note:        e.Note,
		Status:      string(e.Status),
		Allocations: make([]Allocation, len(e.Allocations)),
	}
	for i, a := range e.Allocations {
		out.Allocations[i] = Allocation{
			Seq:        a.Seq,
			SplitID:    a.SplitID,
			Amount:     a.Amount,
			Positive:   a.Direction.Positive(),
			ReversedAt: a.ReversedAt,
		}
	}
	return out
}

func toSettlement(r *settle.Result) *SettlementResponse {
	resp := &SettlementResponse{
		Event:  toEvent(r.Event),
		Splits: toSplits(r.Splits),
	}
	for _, e := range r.Expenses {
		resp.Expenses = append(resp.Expenses, toExpense(e))
	}
	return resp
}

func toBalances(splits []*models.Split) (*BalancesResponse, error) {
	pairs, err := calculator.PairBalances(splits)
	if err != nil {
		return nil, err
	}
	members, err := calculator.MemberBalances(splits)
	if err != nil {
		return nil, err
	}
	edges, err := calculator.SettleUp(splits)
	if err != nil {
		return nil, err
	}

	resp := &BalancesResponse{
		Pairs:    []PairBalance{},
		Members:  []MemberBalance{},
		SettleUp: []Transfer{},
	}
	for _, p := range pairs {
		resp.Pairs = append(resp.Pairs, PairBalance{
			MemberA: p.MemberA, MemberB: p.MemberB,
			AOwesB: p.AOwesB, BOwesA: p.BOwesA,
			Net: p.Net(),
		})
	}
	for _, m := range members {
		resp.Members = append(resp.Members, MemberBalance{
			MemberID: m.MemberID, Owed: m.Owed, Owes: m.Owes, Net: m.Net(),
		})
	}
	for _, d := range edges {
		resp.SettleUp = append(resp.SettleUp, Transfer{From: d.From, To: d.To, Amount: d.Amount})
	}
	return resp, nil
}

func toDiscrepancies(found []ledger.Discrepancy) []Discrepancy {
	out := make([]Discrepancy, len(found))
	for i, d := range found {
		out[i] = Discrepancy{SplitID: d.SplitID, Settled: d.Settled, Allocated: d.Allocated, Reason: d.Reason}
	}
	return out
}

func toItems(items []Item) []calculator.Item {
	out := make([]calculator.Item, len(items))
	for i, item := range items {
		out[i] = calculator.Item{
			Description: item.Description,
			Amount:      item.Amount,
			AssignedTo:  item.ParticipantIDs,
		}
	}
	return out
}
