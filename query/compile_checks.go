package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/bagelhq/rwa-engine/core"
)

var (
	_ gocmd.Querier[GetLoanMessage, core.Loan]                                     = (*GetLoanQuery)(nil)
	_ gocmd.Querier[ListLoansByBorrowerMessage, []core.Loan]                       = (*ListLoansByBorrowerQuery)(nil)
	_ gocmd.Querier[GetLoanQuoteMessage, core.LoanQuote]                           = (*GetLoanQuoteQuery)(nil)
	_ gocmd.Querier[GetLoanTotalOwedMessage, core.Amount]                          = (*GetLoanTotalOwedQuery)(nil)
	_ gocmd.Querier[GetLoanHealthMessage, int64]                                   = (*GetLoanHealthQuery)(nil)
	_ gocmd.Querier[ListLiquidatableMessage, []core.Loan]                          = (*ListLiquidatableQuery)(nil)
	_ gocmd.Querier[GetAssetMessage, core.FractionalizedAsset]                     = (*GetAssetQuery)(nil)
	_ gocmd.Querier[ListAssetsByOwnerMessage, []core.FractionalizedAsset]          = (*ListAssetsByOwnerQuery)(nil)
	_ gocmd.Querier[GetReserveDataMessage, core.ReserveData]                       = (*GetReserveDataQuery)(nil)
	_ gocmd.Querier[VerificationHistoryMessage, []core.ReserveVerificationRequest] = (*VerificationHistoryQuery)(nil)
	_ gocmd.Querier[GetAssetInfoMessage, core.AssetInfo]                           = (*GetAssetInfoQuery)(nil)
	_ gocmd.Querier[ListActivityMessage, []core.EngineActivityEntry]               = (*ListActivityQuery)(nil)
)
