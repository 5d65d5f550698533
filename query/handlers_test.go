package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/bagelhq/rwa-engine/core"
)

func TestGetLoanQuery_QueryDelegates(t *testing.T) {
	expected := core.Loan{ID: "loan_1", Borrower: "0xabc", Status: core.LoanStatusActive}
	called := false
	reader := stubLoanReader{
		loanFn: func(_ context.Context, loanID string) (core.Loan, error) {
			called = true
			if loanID != "loan_1" {
				t.Fatalf("unexpected loan id: %q", loanID)
			}
			return expected, nil
		},
	}

	qry := NewGetLoanQuery(reader)
	result, err := qry.Query(context.Background(), GetLoanMessage{LoanID: "loan_1"})
	if err != nil {
		t.Fatalf("query loan: %v", err)
	}
	if !called {
		t.Fatalf("expected loan reader invocation")
	}
	if result.ID != expected.ID || result.Status != expected.Status {
		t.Fatalf("unexpected loan result: %#v", result)
	}
}

func TestLoanQueries_Delegate(t *testing.T) {
	t.Run("list by borrower", func(t *testing.T) {
		reader := stubLoanReader{
			loansByBorrowerFn: func(_ context.Context, borrower string) ([]core.Loan, error) {
				if borrower != "0xabc" {
					t.Fatalf("unexpected borrower: %q", borrower)
				}
				return []core.Loan{{ID: "loan_1"}, {ID: "loan_2"}}, nil
			},
		}
		qry := NewListLoansByBorrowerQuery(reader)
		loans, err := qry.Query(context.Background(), ListLoansByBorrowerMessage{Borrower: "0xabc"})
		if err != nil {
			t.Fatalf("query loans by borrower: %v", err)
		}
		if len(loans) != 2 {
			t.Fatalf("expected 2 loans, got %d", len(loans))
		}
	})

	t.Run("quote", func(t *testing.T) {
		reader := stubLoanReader{
			quoteFn: func(_ context.Context, collateral core.TokenRef) (core.LoanQuote, error) {
				if collateral.Contract != "0xnft" || collateral.TokenID != 9 {
					t.Fatalf("unexpected collateral: %#v", collateral)
				}
				return core.LoanQuote{RecommendedAmount: core.MustAmount(700), MaxAmount: core.MustAmount(800)}, nil
			},
		}
		qry := NewGetLoanQuoteQuery(reader)
		quote, err := qry.Query(context.Background(), GetLoanQuoteMessage{Collateral: core.TokenRef{Contract: "0xnft", TokenID: 9}})
		if err != nil {
			t.Fatalf("query loan quote: %v", err)
		}
		if quote.MaxAmount.String() != "800" {
			t.Fatalf("unexpected quote: %#v", quote)
		}
	})

	t.Run("total owed", func(t *testing.T) {
		reader := stubLoanReader{
			totalOwedFn: func(_ context.Context, loanID string) (core.Amount, error) {
				if loanID != "loan_1" {
					t.Fatalf("unexpected loan id: %q", loanID)
				}
				return core.MustAmount(1_050), nil
			},
		}
		qry := NewGetLoanTotalOwedQuery(reader)
		owed, err := qry.Query(context.Background(), GetLoanTotalOwedMessage{LoanID: "loan_1"})
		if err != nil {
			t.Fatalf("query total owed: %v", err)
		}
		if owed.String() != "1050" {
			t.Fatalf("unexpected total owed: %s", owed)
		}
	})

	t.Run("health", func(t *testing.T) {
		reader := stubLoanReader{
			healthFn: func(_ context.Context, loanID string) (int64, error) {
				return 1500, nil
			},
		}
		qry := NewGetLoanHealthQuery(reader)
		health, err := qry.Query(context.Background(), GetLoanHealthMessage{LoanID: "loan_1"})
		if err != nil {
			t.Fatalf("query loan health: %v", err)
		}
		if health != 1500 {
			t.Fatalf("unexpected health: %d", health)
		}
	})

	t.Run("liquidatable", func(t *testing.T) {
		reader := stubLoanReader{
			liquidatableFn: func(_ context.Context) ([]core.Loan, error) {
				return []core.Loan{{ID: "loan_9"}}, nil
			},
		}
		qry := NewListLiquidatableQuery(reader)
		loans, err := qry.Query(context.Background(), ListLiquidatableMessage{})
		if err != nil {
			t.Fatalf("query liquidatable: %v", err)
		}
		if len(loans) != 1 || loans[0].ID != "loan_9" {
			t.Fatalf("unexpected liquidatable loans: %#v", loans)
		}
	})
}

func TestGetAssetQuery_PrefersAssetID(t *testing.T) {
	reader := stubAssetReader{
		assetFn: func(_ context.Context, assetID string) (core.FractionalizedAsset, error) {
			if assetID != "asset_1" {
				t.Fatalf("unexpected asset id: %q", assetID)
			}
			return core.FractionalizedAsset{ID: "asset_1"}, nil
		},
		byContractFn: func(_ context.Context, _ string) (core.FractionalizedAsset, error) {
			t.Fatalf("expected asset id lookup, not contract lookup")
			return core.FractionalizedAsset{}, nil
		},
	}
	qry := NewGetAssetQuery(reader)
	asset, err := qry.Query(context.Background(), GetAssetMessage{AssetID: "asset_1", FractionalContract: "0xfrac"})
	if err != nil {
		t.Fatalf("query asset: %v", err)
	}
	if asset.ID != "asset_1" {
		t.Fatalf("unexpected asset: %#v", asset)
	}
}

func TestGetAssetQuery_FallsBackToContract(t *testing.T) {
	reader := stubAssetReader{
		byContractFn: func(_ context.Context, contract string) (core.FractionalizedAsset, error) {
			if contract != "0xfrac" {
				t.Fatalf("unexpected contract: %q", contract)
			}
			return core.FractionalizedAsset{ID: "asset_2", FractionalContract: "0xfrac"}, nil
		},
	}
	qry := NewGetAssetQuery(reader)
	asset, err := qry.Query(context.Background(), GetAssetMessage{FractionalContract: "0xfrac"})
	if err != nil {
		t.Fatalf("query asset by contract: %v", err)
	}
	if asset.ID != "asset_2" {
		t.Fatalf("unexpected asset: %#v", asset)
	}
}

func TestAssetQueries_Delegate(t *testing.T) {
	t.Run("reserve data", func(t *testing.T) {
		reader := stubAssetReader{
			reserveDataFn: func(_ context.Context, assetID string) (core.ReserveData, error) {
				return core.ReserveData{AssetID: assetID, IsVerified: true}, nil
			},
		}
		qry := NewGetReserveDataQuery(reader)
		data, err := qry.Query(context.Background(), GetReserveDataMessage{AssetID: "asset_1"})
		if err != nil {
			t.Fatalf("query reserve data: %v", err)
		}
		if !data.IsVerified {
			t.Fatalf("expected verified reserve data: %#v", data)
		}
	})

	t.Run("verification history", func(t *testing.T) {
		reader := stubAssetReader{
			historyFn: func(_ context.Context, assetID string) ([]core.ReserveVerificationRequest, error) {
				return []core.ReserveVerificationRequest{
					{RequestID: "req_1", AssetID: assetID, Status: core.RequestStatusFulfilled},
					{RequestID: "req_2", AssetID: assetID, Status: core.RequestStatusPending},
				}, nil
			},
		}
		qry := NewVerificationHistoryQuery(reader)
		history, err := qry.Query(context.Background(), VerificationHistoryMessage{AssetID: "asset_1"})
		if err != nil {
			t.Fatalf("query verification history: %v", err)
		}
		if len(history) != 2 {
			t.Fatalf("expected 2 history entries, got %d", len(history))
		}
	})

	t.Run("registered asset info", func(t *testing.T) {
		reader := stubAssetReader{
			assetInfoFn: func(_ context.Context, ref core.TokenRef) (core.AssetInfo, error) {
				if ref.Contract != "0xnft" {
					t.Fatalf("unexpected token ref: %#v", ref)
				}
				return core.AssetInfo{Owner: "0xowner", Authenticated: true}, nil
			},
		}
		qry := NewGetAssetInfoQuery(reader)
		info, err := qry.Query(context.Background(), GetAssetInfoMessage{Token: core.TokenRef{Contract: "0xnft", TokenID: 3}})
		if err != nil {
			t.Fatalf("query asset info: %v", err)
		}
		if !info.Authenticated {
			t.Fatalf("unexpected asset info: %#v", info)
		}
	})
}

func TestListActivityQuery_QueryDelegates(t *testing.T) {
	reader := stubActivityReader{
		listFn: func(_ context.Context, filter core.ActivityFilter) ([]core.EngineActivityEntry, error) {
			if filter.Action != "loan.originate" {
				t.Fatalf("unexpected filter: %#v", filter)
			}
			return []core.EngineActivityEntry{{ID: "act_1", Action: "loan.originate"}}, nil
		},
	}
	qry := NewListActivityQuery(reader)
	entries, err := qry.Query(context.Background(), ListActivityMessage{Filter: core.ActivityFilter{Action: "loan.originate"}})
	if err != nil {
		t.Fatalf("query activity: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "act_1" {
		t.Fatalf("unexpected activity entries: %#v", entries)
	}
}

func TestQueries_RequireConfiguredReader(t *testing.T) {
	var qry *GetLoanQuery
	if _, err := qry.Query(context.Background(), GetLoanMessage{LoanID: "loan_1"}); err == nil {
		t.Fatalf("expected dependency error for nil query")
	}
	empty := &GetAssetQuery{}
	if _, err := empty.Query(context.Background(), GetAssetMessage{AssetID: "asset_1"}); err == nil {
		t.Fatalf("expected dependency error for missing reader")
	}
}

func TestMessages_Validate(t *testing.T) {
	tests := []struct {
		name    string
		msg     interface{ Validate() error }
		wantErr bool
	}{
		{name: "get loan valid", msg: GetLoanMessage{LoanID: "loan_1"}},
		{name: "get loan missing id", msg: GetLoanMessage{}, wantErr: true},
		{name: "borrower missing", msg: ListLoansByBorrowerMessage{}, wantErr: true},
		{name: "quote invalid collateral", msg: GetLoanQuoteMessage{}, wantErr: true},
		{name: "asset requires id or contract", msg: GetAssetMessage{}, wantErr: true},
		{name: "asset by contract only", msg: GetAssetMessage{FractionalContract: "0xfrac"}},
		{name: "activity negative limit", msg: ListActivityMessage{Filter: core.ActivityFilter{Limit: -1}}, wantErr: true},
		{name: "activity empty filter", msg: ListActivityMessage{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type stubLoanReader struct {
	loanFn            func(ctx context.Context, loanID string) (core.Loan, error)
	loansByBorrowerFn func(ctx context.Context, borrower string) ([]core.Loan, error)
	quoteFn           func(ctx context.Context, collateral core.TokenRef) (core.LoanQuote, error)
	totalOwedFn       func(ctx context.Context, loanID string) (core.Amount, error)
	healthFn          func(ctx context.Context, loanID string) (int64, error)
	liquidatableFn    func(ctx context.Context) ([]core.Loan, error)
}

func (s stubLoanReader) Loan(ctx context.Context, loanID string) (core.Loan, error) {
	if s.loanFn == nil {
		return core.Loan{}, fmt.Errorf("loan not configured")
	}
	return s.loanFn(ctx, loanID)
}

func (s stubLoanReader) LoansByBorrower(ctx context.Context, borrower string) ([]core.Loan, error) {
	if s.loansByBorrowerFn == nil {
		return nil, fmt.Errorf("loans by borrower not configured")
	}
	return s.loansByBorrowerFn(ctx, borrower)
}

func (s stubLoanReader) QuoteLoan(ctx context.Context, collateral core.TokenRef) (core.LoanQuote, error) {
	if s.quoteFn == nil {
		return core.LoanQuote{}, fmt.Errorf("quote not configured")
	}
	return s.quoteFn(ctx, collateral)
}

func (s stubLoanReader) LoanTotalOwed(ctx context.Context, loanID string) (core.Amount, error) {
	if s.totalOwedFn == nil {
		return core.Amount{}, fmt.Errorf("total owed not configured")
	}
	return s.totalOwedFn(ctx, loanID)
}

func (s stubLoanReader) LoanHealth(ctx context.Context, loanID string) (int64, error) {
	if s.healthFn == nil {
		return 0, fmt.Errorf("health not configured")
	}
	return s.healthFn(ctx, loanID)
}

func (s stubLoanReader) ListLiquidatableLoans(ctx context.Context) ([]core.Loan, error) {
	if s.liquidatableFn == nil {
		return nil, fmt.Errorf("liquidatable not configured")
	}
	return s.liquidatableFn(ctx)
}

type stubAssetReader struct {
	assetFn       func(ctx context.Context, assetID string) (core.FractionalizedAsset, error)
	byContractFn  func(ctx context.Context, contract string) (core.FractionalizedAsset, error)
	byOwnerFn     func(ctx context.Context, owner string) ([]core.FractionalizedAsset, error)
	reserveDataFn func(ctx context.Context, assetID string) (core.ReserveData, error)
	historyFn     func(ctx context.Context, assetID string) ([]core.ReserveVerificationRequest, error)
	assetInfoFn   func(ctx context.Context, ref core.TokenRef) (core.AssetInfo, error)
}

func (s stubAssetReader) Asset(ctx context.Context, assetID string) (core.FractionalizedAsset, error) {
	if s.assetFn == nil {
		return core.FractionalizedAsset{}, fmt.Errorf("asset not configured")
	}
	return s.assetFn(ctx, assetID)
}

func (s stubAssetReader) AssetByFractionalContract(ctx context.Context, contract string) (core.FractionalizedAsset, error) {
	if s.byContractFn == nil {
		return core.FractionalizedAsset{}, fmt.Errorf("asset by contract not configured")
	}
	return s.byContractFn(ctx, contract)
}

func (s stubAssetReader) AssetsByOwner(ctx context.Context, owner string) ([]core.FractionalizedAsset, error) {
	if s.byOwnerFn == nil {
		return nil, fmt.Errorf("assets by owner not configured")
	}
	return s.byOwnerFn(ctx, owner)
}

func (s stubAssetReader) AssetReserveData(ctx context.Context, assetID string) (core.ReserveData, error) {
	if s.reserveDataFn == nil {
		return core.ReserveData{}, fmt.Errorf("reserve data not configured")
	}
	return s.reserveDataFn(ctx, assetID)
}

func (s stubAssetReader) VerificationHistory(ctx context.Context, assetID string) ([]core.ReserveVerificationRequest, error) {
	if s.historyFn == nil {
		return nil, fmt.Errorf("verification history not configured")
	}
	return s.historyFn(ctx, assetID)
}

func (s stubAssetReader) RegisteredAssetInfo(ctx context.Context, ref core.TokenRef) (core.AssetInfo, error) {
	if s.assetInfoFn == nil {
		return core.AssetInfo{}, fmt.Errorf("asset info not configured")
	}
	return s.assetInfoFn(ctx, ref)
}

type stubActivityReader struct {
	listFn func(ctx context.Context, filter core.ActivityFilter) ([]core.EngineActivityEntry, error)
}

func (s stubActivityReader) List(ctx context.Context, filter core.ActivityFilter) ([]core.EngineActivityEntry, error) {
	if s.listFn == nil {
		return nil, fmt.Errorf("activity list not configured")
	}
	return s.listFn(ctx, filter)
}
