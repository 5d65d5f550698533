package command

import (
	"strings"

	"github.com/bagelhq/rwa-engine/core"
)

const (
	TypeOriginateLoan        = "engine.command.loan.originate"
	TypeRepayLoan            = "engine.command.loan.repay"
	TypeLiquidateLoan        = "engine.command.loan.liquidate"
	TypeFractionalizeAsset   = "engine.command.asset.fractionalize"
	TypeRequestVerification  = "engine.command.asset.request_verification"
	TypeVerificationCallback = "engine.command.asset.verification_callback"
	TypeRedeemFractions      = "engine.command.asset.redeem"
	TypeRunSweep             = "engine.command.sweep.run"
)

type OriginateLoanMessage struct {
	Request core.OriginateLoanRequest
}

func (OriginateLoanMessage) Type() string { return TypeOriginateLoan }

func (m OriginateLoanMessage) Validate() error {
	return m.Request.Validate()
}

type RepayLoanMessage struct {
	Request core.RepayLoanRequest
}

func (RepayLoanMessage) Type() string { return TypeRepayLoan }

func (m RepayLoanMessage) Validate() error {
	if strings.TrimSpace(m.Request.LoanID) == "" {
		return commandValidationError("loan_id", "loan id is required")
	}
	if m.Request.Amount.IsZero() {
		return commandInvalidInputError("command: repayment amount must be positive")
	}
	return nil
}

type LiquidateLoanMessage struct {
	Request core.LiquidateLoanRequest
}

func (LiquidateLoanMessage) Type() string { return TypeLiquidateLoan }

func (m LiquidateLoanMessage) Validate() error {
	if strings.TrimSpace(m.Request.LoanID) == "" {
		return commandValidationError("loan_id", "loan id is required")
	}
	return nil
}

type FractionalizeAssetMessage struct {
	Request core.FractionalizeAssetRequest
}

func (FractionalizeAssetMessage) Type() string { return TypeFractionalizeAsset }

func (m FractionalizeAssetMessage) Validate() error {
	return m.Request.Validate()
}

type RequestVerificationMessage struct {
	Request core.RequestVerificationRequest
}

func (RequestVerificationMessage) Type() string { return TypeRequestVerification }

func (m RequestVerificationMessage) Validate() error {
	if strings.TrimSpace(m.Request.AssetID) == "" {
		return commandValidationError("asset_id", "asset id is required")
	}
	return m.Request.Type.Validate()
}

type VerificationCallbackMessage struct {
	Callback core.VerificationCallback
}

func (VerificationCallbackMessage) Type() string { return TypeVerificationCallback }

func (m VerificationCallbackMessage) Validate() error {
	if strings.TrimSpace(m.Callback.RequestID) == "" {
		return commandValidationError("request_id", "callback request id is required")
	}
	return m.Callback.Type.Validate()
}

type RedeemFractionsMessage struct {
	Request core.RedeemFractionsRequest
}

func (RedeemFractionsMessage) Type() string { return TypeRedeemFractions }

func (m RedeemFractionsMessage) Validate() error {
	if strings.TrimSpace(m.Request.FractionalContract) == "" {
		return commandValidationError("fractional_contract", "fractional contract is required")
	}
	if m.Request.Amount.IsZero() {
		return commandInvalidInputError("command: redemption amount must be positive")
	}
	return nil
}

type RunSweepMessage struct{}

func (RunSweepMessage) Type() string { return TypeRunSweep }

func (RunSweepMessage) Validate() error { return nil }
