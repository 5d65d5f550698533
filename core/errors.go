package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	EngineErrorBadInput               = "ENGINE_BAD_INPUT"
	EngineErrorNotFound               = "ENGINE_NOT_FOUND"
	EngineErrorStateConflict          = "ENGINE_STATE_CONFLICT"
	EngineErrorNotLiquidatable        = "ENGINE_NOT_LIQUIDATABLE"
	EngineErrorCollateralEncumbered   = "ENGINE_COLLATERAL_ENCUMBERED"
	EngineErrorConcurrentModification = "ENGINE_CONCURRENT_MODIFICATION"
	EngineErrorLedgerUnavailable      = "ENGINE_LEDGER_UNAVAILABLE"
	EngineErrorLedgerReverted         = "ENGINE_LEDGER_REVERTED"
	EngineErrorLedgerOutcomeUnknown   = "ENGINE_LEDGER_OUTCOME_UNKNOWN"
	EngineErrorInternal               = "ENGINE_INTERNAL_ERROR"
)

func engineErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureEngineErrorEnvelope(richErr)
	}

	if errors.Is(err, ErrVersionConflict) {
		var conflict *goerrors.Error
		if goerrors.As(errConcurrentModification(err.Error()), &conflict) {
			return ensureEngineErrorEnvelope(conflict)
		}
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return newEngineError(err.Error(), goerrors.CategoryNotFound, EngineErrorNotFound)
	case strings.Contains(msg, "invalid loan status transition"),
		strings.Contains(msg, "invalid asset status transition"),
		strings.Contains(msg, "invalid verification request status transition"):
		return newEngineError(err.Error(), goerrors.CategoryConflict, EngineErrorStateConflict)
	case strings.Contains(msg, "does not own"), strings.Contains(msg, "not approved"):
		return newEngineError(err.Error(), goerrors.CategoryConflict, EngineErrorStateConflict)
	case strings.Contains(msg, "reverted"):
		return newEngineError(err.Error(), goerrors.CategoryOperation, EngineErrorLedgerReverted)
	case strings.Contains(msg, "ledger unavailable"), strings.Contains(msg, "sequencing conflict"):
		return newEngineError(err.Error(), goerrors.CategoryExternal, EngineErrorLedgerUnavailable)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"),
		strings.Contains(msg, "negative"), strings.Contains(msg, "must be"),
		strings.Contains(msg, "exceeds"):
		return newEngineError(err.Error(), goerrors.CategoryBadInput, EngineErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureEngineErrorEnvelope(mapped)
}

func newEngineError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureEngineErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureEngineErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = engineHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultEngineTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultEngineTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return EngineErrorBadInput
	case goerrors.CategoryNotFound:
		return EngineErrorNotFound
	case goerrors.CategoryConflict:
		return EngineErrorStateConflict
	case goerrors.CategoryExternal:
		return EngineErrorLedgerUnavailable
	case goerrors.CategoryOperation:
		return EngineErrorLedgerReverted
	default:
		return EngineErrorInternal
	}
}

func engineHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	case goerrors.CategoryOperation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Typed constructors for the conflicts the lifecycles raise. These keep the
// taxonomy in one place so services never hand-assemble conflict errors.

func errCollateralEncumbered(collateral TokenRef) error {
	return goerrors.New(
		"collateral "+collateral.String()+" is already securing an active loan",
		goerrors.CategoryConflict,
	).WithTextCode(EngineErrorCollateralEncumbered).
		WithCode(http.StatusConflict)
}

func errNotLiquidatable(loanID string, healthMilli int64) error {
	return goerrors.New(
		"loan "+loanID+" is not liquidatable",
		goerrors.CategoryConflict,
	).WithTextCode(EngineErrorNotLiquidatable).
		WithCode(http.StatusConflict).
		WithMetadata(map[string]any{"loan_id": loanID, "health_milli": healthMilli})
}

func errLoanStateConflict(loanID string, detail string) error {
	return goerrors.New(
		"loan "+loanID+" "+detail,
		goerrors.CategoryConflict,
	).WithTextCode(EngineErrorStateConflict).
		WithCode(http.StatusConflict).
		WithMetadata(map[string]any{"loan_id": loanID})
}

func errAssetStateConflict(assetID string, detail string) error {
	return goerrors.New(
		"asset "+assetID+" "+detail,
		goerrors.CategoryConflict,
	).WithTextCode(EngineErrorStateConflict).
		WithCode(http.StatusConflict).
		WithMetadata(map[string]any{"asset_id": assetID})
}

func errConcurrentModification(entityID string) error {
	return goerrors.New(
		"entity "+entityID+" was modified concurrently, re-read and retry",
		goerrors.CategoryConflict,
	).WithTextCode(EngineErrorConcurrentModification).
		WithCode(http.StatusConflict)
}
