package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bagelhq/rwa-engine/core"
)

// classify folds raw caller failures into the engine's ledger error
// taxonomy. Already-classified errors pass through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ledgerErr *core.LedgerError
	if errors.As(err, &ledgerErr) {
		return ledgerErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &core.LedgerError{Kind: core.LedgerErrorUnknownOutcome, Reason: err.Error()}
	}
	if errors.Is(err, context.Canceled) {
		return &core.LedgerError{Kind: core.LedgerErrorUnavailable, Reason: err.Error()}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "revert") || strings.Contains(msg, "execution failed"):
		return &core.LedgerError{Kind: core.LedgerErrorReverted, Reason: err.Error()}
	case strings.Contains(msg, "nonce") || strings.Contains(msg, "replacement transaction"):
		return &core.LedgerError{Kind: core.LedgerErrorSequencing, Reason: err.Error()}
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "not mined"):
		return &core.LedgerError{Kind: core.LedgerErrorUnknownOutcome, Reason: err.Error()}
	default:
		return &core.LedgerError{Kind: core.LedgerErrorUnavailable, Reason: err.Error()}
	}
}

func assetInfoFromResult(ref core.TokenRef, result map[string]any) (core.AssetInfo, error) {
	appraisal, err := amountFromAny(result["appraisal_value"])
	if err != nil {
		return core.AssetInfo{}, classify(fmt.Errorf("ledger: bad appraisal value for %s: %w", ref, err))
	}
	info := core.AssetInfo{
		Token:            ref,
		Owner:            stringField(result, "owner"),
		AssetType:        stringField(result, "asset_type"),
		PhysicalLocation: stringField(result, "physical_location"),
		AppraisalValue:   appraisal,
		Authenticated:    boolField(result, "authenticated"),
		Custodian:        stringField(result, "custodian"),
		CertificateHash:  stringField(result, "certificate_hash"),
	}
	if at, ok := timeField(result, "last_appraisal"); ok {
		info.LastAppraisal = at
	}
	if metadata, ok := result["metadata"].(map[string]any); ok {
		info.Metadata = metadata
	}
	return info, nil
}

func quoteFromResult(result map[string]any) (core.LoanQuote, error) {
	recommended, err := amountFromAny(result["recommended_amount"])
	if err != nil {
		return core.LoanQuote{}, classify(fmt.Errorf("ledger: bad recommended amount: %w", err))
	}
	maxAmount, err := amountFromAny(result["max_amount"])
	if err != nil {
		return core.LoanQuote{}, classify(fmt.Errorf("ledger: bad max amount: %w", err))
	}
	collateralValue, err := amountFromAny(result["collateral_value"])
	if err != nil {
		return core.LoanQuote{}, classify(fmt.Errorf("ledger: bad collateral value: %w", err))
	}
	return core.LoanQuote{
		RecommendedAmount: recommended,
		MaxAmount:         maxAmount,
		CollateralValue:   collateralValue,
		TargetLTVBps:      intField(result, "target_ltv_bps"),
		MaxLTVBps:         intField(result, "max_ltv_bps"),
	}, nil
}

func amountFromAny(value any) (core.Amount, error) {
	switch v := value.(type) {
	case nil:
		return core.Amount{}, fmt.Errorf("ledger: missing amount value")
	case core.Amount:
		return v, nil
	case string:
		return core.ParseAmount(v)
	case int64:
		return core.AmountFromInt64(v)
	case int:
		return core.AmountFromInt64(int64(v))
	case float64:
		if v != float64(int64(v)) {
			return core.Amount{}, fmt.Errorf("ledger: fractional amount value %v", v)
		}
		return core.AmountFromInt64(int64(v))
	default:
		return core.Amount{}, fmt.Errorf("ledger: unsupported amount type %T", value)
	}
}

func stringField(result map[string]any, key string) string {
	value, ok := result[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func boolField(result map[string]any, key string) bool {
	switch v := result[key].(type) {
	case bool:
		return v
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && parsed
	default:
		return false
	}
}

func intField(result map[string]any, key string) int64 {
	switch v := result[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func timeField(result map[string]any, key string) (time.Time, bool) {
	switch v := result[key].(type) {
	case time.Time:
		return v, true
	case int64:
		return time.Unix(v, 0).UTC(), true
	case float64:
		return time.Unix(int64(v), 0).UTC(), true
	case string:
		if parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(v)); err == nil {
			return parsed, true
		}
		if seconds, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return time.Unix(seconds, 0).UTC(), true
		}
	}
	return time.Time{}, false
}
