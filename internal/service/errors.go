package service

import (
	"context"
	"errors"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/settleup/internal/models"
)

// Error metadata keys. Kind names are stable across releases; clients
// should branch on them rather than on messages.
const (
	ErrorKindHeader  = "Settleup-Error-Kind"
	ErrorCauseHeader = "Settleup-Error-Cause"
)

var kindCodes = map[string]connect.Code{
	"NotFound":                  connect.CodeNotFound,
	"AllocationNotFound":        connect.CodeNotFound,
	"InvalidSplit":              connect.CodeInvalidArgument,
	"InvalidAmount":             connect.CodeInvalidArgument,
	"NegativeAmount":            connect.CodeInvalidArgument,
	"AmountOverflow":            connect.CodeInvalidArgument,
	"EmptyAllocationSet":        connect.CodeInvalidArgument,
	"DuplicateSplit":            connect.CodeInvalidArgument,
	"DirectionMismatch":         connect.CodeInvalidArgument,
	"AllocationAmountMismatch":  connect.CodeInvalidArgument,
	"OverPayment":               connect.CodeFailedPrecondition,
	"OverReversal":              connect.CodeFailedPrecondition,
	"PartialSettlementRejected": connect.CodeFailedPrecondition,
	"ReversalInconsistent":      connect.CodeFailedPrecondition,
	"ImmutableAfterSettlement":  connect.CodeFailedPrecondition,
	"ConcurrentModification":    connect.CodeAborted,
}

// toConnectError converts a ledger error into a Connect error carrying
// its kind, and its cause's kind for wrapped rejections, as metadata.
// Unclassified errors are logged and reported as internal.
func toConnectError(logger *slog.Logger, procedure string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	}

	kinds := models.Kinds(err)
	if len(kinds) == 0 {
		logger.Error("Unexpected ledger error", "procedure", procedure, "error", err)
		return connect.NewError(connect.CodeInternal, errors.New("internal error"))
	}
	cerr := connect.NewError(kindCodes[kinds[0]], err)
	cerr.Meta().Set(ErrorKindHeader, kinds[0])
	if len(kinds) > 1 {
		cerr.Meta().Set(ErrorCauseHeader, kinds[1])
	}
	return cerr
}

// ledgerError is a Connect error received by a Client. It also matches,
// with errors.Is, the models sentinels named by its kind and cause.
type ledgerError struct {
	cerr  *connect.Error
	kinds []error
}

func (e *ledgerError) Error() string { return e.cerr.Error() }

func (e *ledgerError) Unwrap() []error { return append([]error{e.cerr}, e.kinds...) }

// fromConnectError maps the kind metadata of a server error back to models
// sentinels. Errors without kind metadata are returned unchanged.
func fromConnectError(err error) error {
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return err
	}
	var kinds []error
	for _, key := range []string{ErrorKindHeader, ErrorCauseHeader} {
		if kind := models.ErrorForKind(cerr.Meta().Get(key)); kind != nil {
			kinds = append(kinds, kind)
		}
	}
	if len(kinds) == 0 {
		return err
	}
	return &ledgerError{cerr: cerr, kinds: kinds}
}

// KindOf returns the ledger error kind reported by the server, or "".
func KindOf(err error) string {
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return cerr.Meta().Get(ErrorKindHeader)
	}
	return ""
}

// CauseOf returns the kind of the failure behind a rejected batch, or "".
func CauseOf(err error) string {
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return cerr.Meta().Get(ErrorCauseHeader)
	}
	return ""
}
