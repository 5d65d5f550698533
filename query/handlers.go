package query

import (
	"context"
	"strings"

	"github.com/bagelhq/rwa-engine/core"
)

type LoanReader interface {
	Loan(ctx context.Context, loanID string) (core.Loan, error)
	LoansByBorrower(ctx context.Context, borrower string) ([]core.Loan, error)
	QuoteLoan(ctx context.Context, collateral core.TokenRef) (core.LoanQuote, error)
	LoanTotalOwed(ctx context.Context, loanID string) (core.Amount, error)
	LoanHealth(ctx context.Context, loanID string) (int64, error)
	ListLiquidatableLoans(ctx context.Context) ([]core.Loan, error)
}

type AssetReader interface {
	Asset(ctx context.Context, assetID string) (core.FractionalizedAsset, error)
	AssetByFractionalContract(ctx context.Context, contract string) (core.FractionalizedAsset, error)
	AssetsByOwner(ctx context.Context, owner string) ([]core.FractionalizedAsset, error)
	AssetReserveData(ctx context.Context, assetID string) (core.ReserveData, error)
	VerificationHistory(ctx context.Context, assetID string) ([]core.ReserveVerificationRequest, error)
	RegisteredAssetInfo(ctx context.Context, ref core.TokenRef) (core.AssetInfo, error)
}

type ActivityReader interface {
	List(ctx context.Context, filter core.ActivityFilter) ([]core.EngineActivityEntry, error)
}

type GetLoanQuery struct {
	reader LoanReader
}

func NewGetLoanQuery(reader LoanReader) *GetLoanQuery {
	return &GetLoanQuery{reader: reader}
}

func (q *GetLoanQuery) Query(ctx context.Context, msg GetLoanMessage) (core.Loan, error) {
	if q == nil || q.reader == nil {
		return core.Loan{}, queryDependencyError("query: loan reader is required")
	}
	return q.reader.Loan(ctx, msg.LoanID)
}

type ListLoansByBorrowerQuery struct {
	reader LoanReader
}

func NewListLoansByBorrowerQuery(reader LoanReader) *ListLoansByBorrowerQuery {
	return &ListLoansByBorrowerQuery{reader: reader}
}

func (q *ListLoansByBorrowerQuery) Query(ctx context.Context, msg ListLoansByBorrowerMessage) ([]core.Loan, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: loan reader is required")
	}
	return q.reader.LoansByBorrower(ctx, msg.Borrower)
}

type GetLoanQuoteQuery struct {
	reader LoanReader
}

func NewGetLoanQuoteQuery(reader LoanReader) *GetLoanQuoteQuery {
	return &GetLoanQuoteQuery{reader: reader}
}

func (q *GetLoanQuoteQuery) Query(ctx context.Context, msg GetLoanQuoteMessage) (core.LoanQuote, error) {
	if q == nil || q.reader == nil {
		return core.LoanQuote{}, queryDependencyError("query: loan reader is required")
	}
	return q.reader.QuoteLoan(ctx, msg.Collateral)
}

type GetLoanTotalOwedQuery struct {
	reader LoanReader
}

func NewGetLoanTotalOwedQuery(reader LoanReader) *GetLoanTotalOwedQuery {
	return &GetLoanTotalOwedQuery{reader: reader}
}

func (q *GetLoanTotalOwedQuery) Query(ctx context.Context, msg GetLoanTotalOwedMessage) (core.Amount, error) {
	if q == nil || q.reader == nil {
		return core.Amount{}, queryDependencyError("query: loan reader is required")
	}
	return q.reader.LoanTotalOwed(ctx, msg.LoanID)
}

type GetLoanHealthQuery struct {
	reader LoanReader
}

func NewGetLoanHealthQuery(reader LoanReader) *GetLoanHealthQuery {
	return &GetLoanHealthQuery{reader: reader}
}

func (q *GetLoanHealthQuery) Query(ctx context.Context, msg GetLoanHealthMessage) (int64, error) {
	if q == nil || q.reader == nil {
		return 0, queryDependencyError("query: loan reader is required")
	}
	return q.reader.LoanHealth(ctx, msg.LoanID)
}

type ListLiquidatableQuery struct {
	reader LoanReader
}

func NewListLiquidatableQuery(reader LoanReader) *ListLiquidatableQuery {
	return &ListLiquidatableQuery{reader: reader}
}

func (q *ListLiquidatableQuery) Query(ctx context.Context, _ ListLiquidatableMessage) ([]core.Loan, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: loan reader is required")
	}
	return q.reader.ListLiquidatableLoans(ctx)
}

type GetAssetQuery struct {
	reader AssetReader
}

func NewGetAssetQuery(reader AssetReader) *GetAssetQuery {
	return &GetAssetQuery{reader: reader}
}

func (q *GetAssetQuery) Query(ctx context.Context, msg GetAssetMessage) (core.FractionalizedAsset, error) {
	if q == nil || q.reader == nil {
		return core.FractionalizedAsset{}, queryDependencyError("query: asset reader is required")
	}
	if strings.TrimSpace(msg.AssetID) != "" {
		return q.reader.Asset(ctx, msg.AssetID)
	}
	return q.reader.AssetByFractionalContract(ctx, msg.FractionalContract)
}

type ListAssetsByOwnerQuery struct {
	reader AssetReader
}

func NewListAssetsByOwnerQuery(reader AssetReader) *ListAssetsByOwnerQuery {
	return &ListAssetsByOwnerQuery{reader: reader}
}

func (q *ListAssetsByOwnerQuery) Query(ctx context.Context, msg ListAssetsByOwnerMessage) ([]core.FractionalizedAsset, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: asset reader is required")
	}
	return q.reader.AssetsByOwner(ctx, msg.Owner)
}

type GetReserveDataQuery struct {
	reader AssetReader
}

func NewGetReserveDataQuery(reader AssetReader) *GetReserveDataQuery {
	return &GetReserveDataQuery{reader: reader}
}

func (q *GetReserveDataQuery) Query(ctx context.Context, msg GetReserveDataMessage) (core.ReserveData, error) {
	if q == nil || q.reader == nil {
		return core.ReserveData{}, queryDependencyError("query: asset reader is required")
	}
	return q.reader.AssetReserveData(ctx, msg.AssetID)
}

type VerificationHistoryQuery struct {
	reader AssetReader
}

func NewVerificationHistoryQuery(reader AssetReader) *VerificationHistoryQuery {
	return &VerificationHistoryQuery{reader: reader}
}

func (q *VerificationHistoryQuery) Query(ctx context.Context, msg VerificationHistoryMessage) ([]core.ReserveVerificationRequest, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: asset reader is required")
	}
	return q.reader.VerificationHistory(ctx, msg.AssetID)
}

type GetAssetInfoQuery struct {
	reader AssetReader
}

func NewGetAssetInfoQuery(reader AssetReader) *GetAssetInfoQuery {
	return &GetAssetInfoQuery{reader: reader}
}

func (q *GetAssetInfoQuery) Query(ctx context.Context, msg GetAssetInfoMessage) (core.AssetInfo, error) {
	if q == nil || q.reader == nil {
		return core.AssetInfo{}, queryDependencyError("query: asset reader is required")
	}
	return q.reader.RegisteredAssetInfo(ctx, msg.Token)
}

type ListActivityQuery struct {
	reader ActivityReader
}

func NewListActivityQuery(reader ActivityReader) *ListActivityQuery {
	return &ListActivityQuery{reader: reader}
}

func (q *ListActivityQuery) Query(ctx context.Context, msg ListActivityMessage) ([]core.EngineActivityEntry, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: activity reader is required")
	}
	return q.reader.List(ctx, msg.Filter)
}
