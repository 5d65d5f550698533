package query

import (
	"fmt"
	"strings"

	"github.com/bagelhq/rwa-engine/core"
)

const (
	TypeGetLoan             = "engine.query.loan.get"
	TypeListLoansByBorrower = "engine.query.loan.list_by_borrower"
	TypeGetLoanQuote        = "engine.query.loan.quote"
	TypeGetLoanTotalOwed    = "engine.query.loan.total_owed"
	TypeGetLoanHealth       = "engine.query.loan.health"
	TypeListLiquidatable    = "engine.query.loan.list_liquidatable"
	TypeGetAsset            = "engine.query.asset.get"
	TypeListAssetsByOwner   = "engine.query.asset.list_by_owner"
	TypeGetReserveData      = "engine.query.asset.reserve_data"
	TypeVerificationHistory = "engine.query.asset.verification_history"
	TypeGetAssetInfo        = "engine.query.registry.asset_info"
	TypeListActivity        = "engine.query.activity.list"
)

type GetLoanMessage struct {
	LoanID string
}

func (GetLoanMessage) Type() string { return TypeGetLoan }

func (m GetLoanMessage) Validate() error {
	if strings.TrimSpace(m.LoanID) == "" {
		return fmt.Errorf("query: loan id is required")
	}
	return nil
}

type ListLoansByBorrowerMessage struct {
	Borrower string
}

func (ListLoansByBorrowerMessage) Type() string { return TypeListLoansByBorrower }

func (m ListLoansByBorrowerMessage) Validate() error {
	if strings.TrimSpace(m.Borrower) == "" {
		return fmt.Errorf("query: borrower is required")
	}
	return nil
}

type GetLoanQuoteMessage struct {
	Collateral core.TokenRef
}

func (GetLoanQuoteMessage) Type() string { return TypeGetLoanQuote }

func (m GetLoanQuoteMessage) Validate() error {
	return m.Collateral.Validate()
}

type GetLoanTotalOwedMessage struct {
	LoanID string
}

func (GetLoanTotalOwedMessage) Type() string { return TypeGetLoanTotalOwed }

func (m GetLoanTotalOwedMessage) Validate() error {
	if strings.TrimSpace(m.LoanID) == "" {
		return fmt.Errorf("query: loan id is required")
	}
	return nil
}

type GetLoanHealthMessage struct {
	LoanID string
}

func (GetLoanHealthMessage) Type() string { return TypeGetLoanHealth }

func (m GetLoanHealthMessage) Validate() error {
	if strings.TrimSpace(m.LoanID) == "" {
		return fmt.Errorf("query: loan id is required")
	}
	return nil
}

type ListLiquidatableMessage struct{}

func (ListLiquidatableMessage) Type() string { return TypeListLiquidatable }

func (ListLiquidatableMessage) Validate() error { return nil }

type GetAssetMessage struct {
	AssetID            string
	FractionalContract string
}

func (GetAssetMessage) Type() string { return TypeGetAsset }

func (m GetAssetMessage) Validate() error {
	if strings.TrimSpace(m.AssetID) == "" && strings.TrimSpace(m.FractionalContract) == "" {
		return fmt.Errorf("query: asset id or fractional contract is required")
	}
	return nil
}

type ListAssetsByOwnerMessage struct {
	Owner string
}

func (ListAssetsByOwnerMessage) Type() string { return TypeListAssetsByOwner }

func (m ListAssetsByOwnerMessage) Validate() error {
	if strings.TrimSpace(m.Owner) == "" {
		return fmt.Errorf("query: owner is required")
	}
	return nil
}

type GetReserveDataMessage struct {
	AssetID string
}

func (GetReserveDataMessage) Type() string { return TypeGetReserveData }

func (m GetReserveDataMessage) Validate() error {
	if strings.TrimSpace(m.AssetID) == "" {
		return fmt.Errorf("query: asset id is required")
	}
	return nil
}

type VerificationHistoryMessage struct {
	AssetID string
}

func (VerificationHistoryMessage) Type() string { return TypeVerificationHistory }

func (m VerificationHistoryMessage) Validate() error {
	if strings.TrimSpace(m.AssetID) == "" {
		return fmt.Errorf("query: asset id is required")
	}
	return nil
}

type GetAssetInfoMessage struct {
	Token core.TokenRef
}

func (GetAssetInfoMessage) Type() string { return TypeGetAssetInfo }

func (m GetAssetInfoMessage) Validate() error {
	return m.Token.Validate()
}

type ListActivityMessage struct {
	Filter core.ActivityFilter
}

func (ListActivityMessage) Type() string { return TypeListActivity }

func (m ListActivityMessage) Validate() error {
	if m.Filter.Limit < 0 {
		return fmt.Errorf("query: limit must be >= 0")
	}
	return nil
}
