package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/settleup/internal/calculator"
	"github.com/mmynk/settleup/internal/history"
	"github.com/mmynk/settleup/internal/ledger"
	"github.com/mmynk/settleup/internal/middleware"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/notify"
	"github.com/mmynk/settleup/internal/settle"
)

// LedgerService implements the settleup.v1.LedgerService Connect API.
type LedgerService struct {
	ledger    *ledger.Ledger
	coord     *settle.Coordinator
	recorder  *history.Recorder
	publisher notify.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a LedgerService.
type Option func(*LedgerService)

// WithPublisher sends change events to p after each committed mutation.
// Publish failures are logged, never returned to the caller.
func WithPublisher(p notify.Publisher) Option {
	return func(s *LedgerService) { s.publisher = p }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *LedgerService) { s.logger = logger }
}

// NewLedgerService creates a LedgerService.
func NewLedgerService(l *ledger.Ledger, coord *settle.Coordinator, r *history.Recorder, opts ...Option) *LedgerService {
	s := &LedgerService{
		ledger:    l,
		coord:     coord,
		recorder:  r,
		publisher: notify.Nop{},
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.publisher = notify.Logged{Publisher: s.publisher, Logger: s.logger}
	return s
}

// authorize checks that the caller may act in groupID. Calls without claims
// are rejected; the auth interceptor normally guarantees they exist.
func authorize(ctx context.Context, groupID string) error {
	if groupID == "" {
		return connect.NewError(connect.CodeInvalidArgument, errors.New("group_id is required"))
	}
	claims := middleware.GetClaims(ctx)
	if claims == nil {
		return connect.NewError(connect.CodeUnauthenticated, errors.New("authentication required"))
	}
	if !claims.InGroup(groupID) {
		return connect.NewError(connect.CodePermissionDenied, errors.New("not a member of this group"))
	}
	return nil
}

func (s *LedgerService) publish(ctx context.Context, c notify.Change) {
	c.ActorID = middleware.GetMemberID(ctx)
	c.At = s.now().UTC()
	_ = s.publisher.Publish(ctx, c)
}

func splitIDs(splits []*models.Split) []string {
	ids := make([]string, len(splits))
	for i, sp := range splits {
		ids[i] = sp.ID
	}
	return ids
}

// AddExpense records an expense and creates one split per member who owes
// the payer. Shares come from the request, or are calculated from items.
func (s *LedgerService) AddExpense(ctx context.Context, req *connect.Request[AddExpenseRequest]) (*connect.Response[AddExpenseResponse], error) {
	msg := req.Msg
	if err := authorize(ctx, msg.GroupID); err != nil {
		return nil, err
	}
	if msg.PayerID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("payer_id is required"))
	}
	amount, err := resolveAmount(msg.Amount, msg.AmountText)
	if err != nil {
		return nil, toConnectError(s.logger, req.Spec().Procedure, err)
	}

	shares := msg.Shares
	if len(shares) == 0 {
		subtotal := msg.Subtotal
		if subtotal.IsZero() {
			subtotal = amount
		}
		s.logger.Debug("Calculating shares",
			"group_id", msg.GroupID,
			"items", len(msg.Items),
			"participants", msg.ParticipantIDs,
		)
		shares, err = calculator.CalculateShares(toItems(msg.Items), amount, subtotal, msg.ParticipantIDs)
		if err != nil {
			return nil, toConnectError(s.logger, req.Spec().Procedure, err)
		}
	}

	expense := &models.Expense{
		GroupID:     msg.GroupID,
		Description: msg.Description,
		PayerID:     msg.PayerID,
		Amount:      amount,
	}
	splits, err := s.ledger.AddExpense(ctx, expense, shares)
	if err != nil {
		return nil, toConnectError(s.logger, req.Spec().Procedure, err)
	}

	s.publish(ctx, notify.Change{
		Kind:     notify.KindExpenseAdded,
		GroupID:  expense.GroupID,
		SplitIDs: splitIDs(splits),
	})
	return connect.NewResponse(&AddExpenseResponse{
		Expense: toExpense(expense),
		Splits:  toSplits(splits),
	}), nil
}

// DeleteExpense removes an expense whose splits have never been settled.
func (s *LedgerService) DeleteExpense(ctx context.Context, req *connect.Request[DeleteExpenseRequest]) (*connect.Response[DeleteExpenseResponse], error) {
	if err := authorize(ctx, req.Msg.GroupID); err != nil {
		return nil, err
	}
	if err := s.ledger.DeleteExpense(ctx, req.Msg.GroupID, req.Msg.ExpenseID); err != nil {
		return nil, toConnectError(s.logger, req.Spec().Procedure, err)
	}
	s.publish(ctx, notify.Change{Kind: notify.KindExpenseDeleted, GroupID: req.Msg.GroupID})
	return connect.NewResponse(&DeleteExpenseResponse{}), nil
}

// UpdateSplit changes the amount of a split that has no settlements.
func (s *LedgerService) UpdateSplit(ctx context.Context, req *connect.Request[UpdateSplitRequest]) (*connect.Response[UpdateSplitResponse], error) {
	if err := authorize(ctx, req.Msg.GroupID); err != nil {
		return nil, err
	}
	amount, err := resolveAmount(req.Msg.Amount, req.Msg.AmountText)
	if err != nil {
		return nil, toConnectError(s.logger, req.Spec().Procedure, err)
	}
	split, err := s.ledger.UpdateOriginal(ctx, req.Msg.GroupID, req.Msg.SplitID, amount)
	if err != nil {
		return nil, toConnectError(s.logger, req.Spec().Procedure, err)
	}
	return connect.NewResponse(&UpdateSplitResponse{Split: toSplit(split)}), nil
}

// GetUnpaidSplits lists the group's splits with something left to pay.
func (s *LedgerService) GetUnpaidSplits(ctx context.Context, req *connect.Request[GroupRequest]) (*connect.Response[SplitsResponse], error) {
	if err := authorize(ctx, req.Msg.GroupID); err != nil {
		return nil, err
	}
	splits, err := s.ledger.GetUnpaidSplits(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(s.logger, req.Spec().Procedure, err)
	}
	return connect.NewResponse(&SplitsResponse{Splits: toSplits(splits)}), nil
}

// GetBalances reports per-pair and per-member balances and a suggested
// set of transfers that would settle the group.
func (s *LedgerService) GetBalances(ctx context.Context, req *connect.Request[GroupRequest]) (*connect.Response[BalancesResponse], error) {
	if err := authorize(ctx, req.Msg.GroupID); err != nil {
		return nil, err
	}
	splits, err := s.ledger.ListSplits(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(s.logger, req.Spec().Procedure, err)
	}
	balances, err := toBalances(splits)
	if err != nil {
		return nil, toConnectError(s.logger, req.Spec().Procedure, err)
	}
	return connect.NewResponse(balances), nil
}

// ListHistory returns the group's settlement events, newest first.
func (s *LedgerService) ListHistory(ctx context.Context, req *connect.Request[GroupRequest]) (*connect.Response[HistoryResponse], error) {
	if err := authorize(ctx, req.Msg.GroupID); err != nil {
		return nil, err
	}
	events, err := s.recorder.ListEvents(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(s.logger, req.Spec().Procedure, err)
	}
	resp := &HistoryResponse{Events: make([]HistoryEvent, len(events))}
	for i, e := range events {
		resp.Events[i] = toEvent(e)
	}
	return connect.NewResponse(resp), nil
}

// GetHistoryEvent returns one settlement event.
func (s *LedgerService) GetHistoryEvent(ctx context.Context, req *connect.Request[GetEventRequest]) (*connect.Response[HistoryEvent], error) {
	if err := authorize(ctx, req.Msg.GroupID); err != nil {
		return nil, err
	}
	event, err := s.recorder.GetEvent(ctx, req.Msg.GroupID, req.Msg.EventID)
	if err != nil {
		return nil, toConnectError(s.logger, req.Spec().Procedure, err)
	}
	resp := toEvent(event)
	return connect.NewResponse(&resp), nil
}

// PaySplits settles a batch of splits from payer to payee atomically.
func (s *LedgerService) PaySplits(ctx context.Context, req *connect.Request[PaySplitsRequest]) (*connect.Response[SettlementResponse], error) {
	msg := req.Msg
	if err := authorize(ctx, msg.GroupID); err != nil {
		return nil, err
	}
	payments := make([]settle.Payment, len(msg.Payments))
	for i, p := range msg.Payments {
		amount, err := resolveAmount(p.Amount, p.AmountText)
		if err != nil {
			err = fmt.Errorf("%w: split %s: %w", models.ErrPartialSettlementRejected, p.SplitID, err)
			return nil, toConnectError(s.logger, req.Spec().Procedure, err)
		}
		payments[i] = settle.Payment{SplitID: p.SplitID, Amount: amount}
	}
	res, err := s.coord.PaySplits(ctx, settle.PayRequest{
		GroupID:   msg.GroupID,
		PayerID:   msg.PayerID,
		PayeeID:   msg.PayeeID,
		CreatedBy: middleware.GetMemberID(ctx),
		Note:      msg.Note,
		Payments:  payments,
	})
	if err != nil {
		return nil, toConnectError(s.logger, req.Spec().Procedure, err)
	}

	s.publish(ctx, notify.Change{
		Kind:     notify.KindSettlementRecorded,
		GroupID:  msg.GroupID,
		EventID:  res.Event.ID,
		SplitIDs: splitIDs(res.Splits),
	})
	return connect.NewResponse(toSettlement(res)), nil
}

// UnpayEvent reverses every active allocation of a settlement event.
func (s *LedgerService) UnpayEvent(ctx context.Context, req *connect.Request[UnpayEventRequest]) (*connect.Response[SettlementResponse], error) {
	if err := authorize(ctx, req.Msg.GroupID); err != nil {
		return nil, err
	}
	res, err := s.coord.UnpayEvent(ctx, req.Msg.GroupID, req.Msg.EventID)
	if err != nil {
		return nil, toConnectError(s.logger, req.Spec().Procedure, err)
	}

	s.publish(ctx, notify.Change{
		Kind:     notify.KindSettlementReversed,
		GroupID:  req.Msg.GroupID,
		EventID:  res.Event.ID,
		SplitIDs: splitIDs(res.Splits),
	})
	return connect.NewResponse(toSettlement(res)), nil
}

// UnpaySingleAllocation reverses one allocation of a settlement event. The
// caller restates its amount and direction, which must match the record.
func (s *LedgerService) UnpaySingleAllocation(ctx context.Context, req *connect.Request[UnpaySingleAllocationRequest]) (*connect.Response[SettlementResponse], error) {
	msg := req.Msg
	if err := authorize(ctx, msg.GroupID); err != nil {
		return nil, err
	}
	amount, err := resolveAmount(msg.Amount, msg.AmountText)
	if err != nil {
		return nil, toConnectError(s.logger, req.Spec().Procedure, err)
	}
	res, err := s.coord.UnpaySingleAllocation(ctx, msg.GroupID, msg.EventID, msg.SplitID, amount, msg.Positive)
	if err != nil {
		return nil, toConnectError(s.logger, req.Spec().Procedure, err)
	}

	s.publish(ctx, notify.Change{
		Kind:     notify.KindAllocationReversed,
		GroupID:  msg.GroupID,
		EventID:  res.Event.ID,
		SplitIDs: splitIDs(res.Splits),
	})
	return connect.NewResponse(toSettlement(res)), nil
}

// Audit checks every split of the group against its settlement history.
func (s *LedgerService) Audit(ctx context.Context, req *connect.Request[GroupRequest]) (*connect.Response[AuditResponse], error) {
	if err := authorize(ctx, req.Msg.GroupID); err != nil {
		return nil, err
	}
	found, err := s.ledger.Audit(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(s.logger, req.Spec().Procedure, err)
	}
	return connect.NewResponse(&AuditResponse{Discrepancies: toDiscrepancies(found)}), nil
}
