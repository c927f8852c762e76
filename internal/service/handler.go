package service

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
)

// LedgerServiceName is the fully-qualified name of the ledger service.
const LedgerServiceName = "settleup.v1.LedgerService"

// Procedure paths.
const (
	AddExpenseProcedure            = "/" + LedgerServiceName + "/AddExpense"
	DeleteExpenseProcedure         = "/" + LedgerServiceName + "/DeleteExpense"
	UpdateSplitProcedure           = "/" + LedgerServiceName + "/UpdateSplit"
	GetUnpaidSplitsProcedure       = "/" + LedgerServiceName + "/GetUnpaidSplits"
	GetBalancesProcedure           = "/" + LedgerServiceName + "/GetBalances"
	ListHistoryProcedure           = "/" + LedgerServiceName + "/ListHistory"
	GetHistoryEventProcedure       = "/" + LedgerServiceName + "/GetHistoryEvent"
	PaySplitsProcedure             = "/" + LedgerServiceName + "/PaySplits"
	UnpayEventProcedure            = "/" + LedgerServiceName + "/UnpayEvent"
	UnpaySingleAllocationProcedure = "/" + LedgerServiceName + "/UnpaySingleAllocation"
	AuditProcedure                 = "/" + LedgerServiceName + "/Audit"
)

// NewLedgerServiceHandler builds an HTTP handler serving every procedure
// of svc. It returns the path prefix to mount the handler on.
func NewLedgerServiceHandler(svc *LedgerService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
	mux := http.NewServeMux()
	mux.Handle(AddExpenseProcedure, connect.NewUnaryHandler(AddExpenseProcedure, svc.AddExpense, opts...))
	mux.Handle(DeleteExpenseProcedure, connect.NewUnaryHandler(DeleteExpenseProcedure, svc.DeleteExpense, opts...))
	mux.Handle(UpdateSplitProcedure, connect.NewUnaryHandler(UpdateSplitProcedure, svc.UpdateSplit, opts...))
	mux.Handle(GetUnpaidSplitsProcedure, connect.NewUnaryHandler(GetUnpaidSplitsProcedure, svc.GetUnpaidSplits, opts...))
	mux.Handle(GetBalancesProcedure, connect.NewUnaryHandler(GetBalancesProcedure, svc.GetBalances, opts...))
	mux.Handle(ListHistoryProcedure, connect.NewUnaryHandler(ListHistoryProcedure, svc.ListHistory, opts...))
	mux.Handle(GetHistoryEventProcedure, connect.NewUnaryHandler(GetHistoryEventProcedure, svc.GetHistoryEvent, opts...))
	mux.Handle(PaySplitsProcedure, connect.NewUnaryHandler(PaySplitsProcedure, svc.PaySplits, opts...))
	mux.Handle(UnpayEventProcedure, connect.NewUnaryHandler(UnpayEventProcedure, svc.UnpayEvent, opts...))
	mux.Handle(UnpaySingleAllocationProcedure, connect.NewUnaryHandler(UnpaySingleAllocationProcedure, svc.UnpaySingleAllocation, opts...))
	mux.Handle(AuditProcedure, connect.NewUnaryHandler(AuditProcedure, svc.Audit, opts...))
	return "/" + LedgerServiceName + "/", mux
}

// Client calls a LedgerService over Connect.
type Client struct {
	addExpense            *connect.Client[AddExpenseRequest, AddExpenseResponse]
	deleteExpense         *connect.Client[DeleteExpenseRequest, DeleteExpenseResponse]
	updateSplit           *connect.Client[UpdateSplitRequest, UpdateSplitResponse]
	getUnpaidSplits       *connect.Client[GroupRequest, SplitsResponse]
	getBalances           *connect.Client[GroupRequest, BalancesResponse]
	listHistory           *connect.Client[GroupRequest, HistoryResponse]
	getHistoryEvent       *connect.Client[GetEventRequest, HistoryEvent]
	paySplits             *connect.Client[PaySplitsRequest, SettlementResponse]
	unpayEvent            *connect.Client[UnpayEventRequest, SettlementResponse]
	unpaySingleAllocation *connect.Client[UnpaySingleAllocationRequest, SettlementResponse]
	audit                 *connect.Client[GroupRequest, AuditResponse]
}

// NewClient creates a client for the service at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &Client{
		addExpense:            connect.NewClient[AddExpenseRequest, AddExpenseResponse](httpClient, baseURL+AddExpenseProcedure, opts...),
		deleteExpense:         connect.NewClient[DeleteExpenseRequest, DeleteExpenseResponse](httpClient, baseURL+DeleteExpenseProcedure, opts...),
		updateSplit:           connect.NewClient[UpdateSplitRequest, UpdateSplitResponse](httpClient, baseURL+UpdateSplitProcedure, opts...),
		getUnpaidSplits:       connect.NewClient[GroupRequest, SplitsResponse](httpClient, baseURL+GetUnpaidSplitsProcedure, opts...),
		getBalances:           connect.NewClient[GroupRequest, BalancesResponse](httpClient, baseURL+GetBalancesProcedure, opts...),
		listHistory:           connect.NewClient[GroupRequest, HistoryResponse](httpClient, baseURL+ListHistoryProcedure, opts...),
		getHistoryEvent:       connect.NewClient[GetEventRequest, HistoryEvent](httpClient, baseURL+GetHistoryEventProcedure, opts...),
		paySplits:             connect.NewClient[PaySplitsRequest, SettlementResponse](httpClient, baseURL+PaySplitsProcedure, opts...),
		unpayEvent:            connect.NewClient[UnpayEventRequest, SettlementResponse](httpClient, baseURL+UnpayEventProcedure, opts...),
		unpaySingleAllocation: connect.NewClient[UnpaySingleAllocationRequest, SettlementResponse](httpClient, baseURL+UnpaySingleAllocationProcedure, opts...),
		audit:                 connect.NewClient[GroupRequest, AuditResponse](httpClient, baseURL+AuditProcedure, opts...),
	}
}

func call[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], msg *Req) (*Res, error) {
	resp, err := c.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, fromConnectError(err)
	}
	return resp.Msg, nil
}

func (c *Client) AddExpense(ctx context.Context, req *AddExpenseRequest) (*AddExpenseResponse, error) {
	return call(ctx, c.addExpense, req)
}

func (c *Client) DeleteExpense(ctx context.Context, req *DeleteExpenseRequest) (*DeleteExpenseResponse, error) {
	return call(ctx, c.deleteExpense, req)
}

func (c *Client) UpdateSplit(ctx context.Context, req *UpdateSplitRequest) (*UpdateSplitResponse, error) {
	return call(ctx, c.updateSplit, req)
}

func (c *Client) GetUnpaidSplits(ctx context.Context, groupID string) (*SplitsResponse, error) {
	return call(ctx, c.getUnpaidSplits, &GroupRequest{GroupID: groupID})
}

func (c *Client) GetBalances(ctx context.Context, groupID string) (*BalancesResponse, error) {
	return call(ctx, c.getBalances, &GroupRequest{GroupID: groupID})
}

func (c *Client) ListHistory(ctx context.Context, groupID string) (*HistoryResponse, error) {
	return call(ctx, c.listHistory, &GroupRequest{GroupID: groupID})
}

func (c *Client) GetHistoryEvent(ctx context.Context, groupID, eventID string) (*HistoryEvent, error) {
	return call(ctx, c.getHistoryEvent, &GetEventRequest{GroupID: groupID, EventID: eventID})
}

func (c *Client) PaySplits(ctx context.Context, req *PaySplitsRequest) (*SettlementResponse, error) {
	return call(ctx, c.paySplits, req)
}

func (c *Client) UnpayEvent(ctx context.Context, groupID, eventID string) (*SettlementResponse, error) {
	return call(ctx, c.unpayEvent, &UnpayEventRequest{GroupID: groupID, EventID: eventID})
}

func (c *Client) UnpaySingleAllocation(ctx context.Context, req *UnpaySingleAllocationRequest) (*SettlementResponse, error) {
	return call(ctx, c.unpaySingleAllocation, req)
}

func (c *Client) Audit(ctx context.Context, groupID string) (*AuditResponse, error) {
	return call(ctx, c.audit, &GroupRequest{GroupID: groupID})
}
