package engine

import (
	"fmt"

	enginecommand "github.com/bagelhq/rwa-engine/command"
	"github.com/bagelhq/rwa-engine/core"
	enginequery "github.com/bagelhq/rwa-engine/query"
)

// CommandQueryService is what a fully wired engine service exposes to the
// command and query layers.
type CommandQueryService interface {
	enginecommand.MutatingService
	enginequery.LoanReader
	enginequery.AssetReader
}

type Commands struct {
	OriginateLoan        *enginecommand.OriginateLoanCommand
	RepayLoan            *enginecommand.RepayLoanCommand
	LiquidateLoan        *enginecommand.LiquidateLoanCommand
	FractionalizeAsset   *enginecommand.FractionalizeAssetCommand
	RequestVerification  *enginecommand.RequestVerificationCommand
	VerificationCallback *enginecommand.VerificationCallbackCommand
	RedeemFractions      *enginecommand.RedeemFractionsCommand
	RunSweep             *enginecommand.RunSweepCommand
}

type Queries struct {
	GetLoan             *enginequery.GetLoanQuery
	ListLoansByBorrower *enginequery.ListLoansByBorrowerQuery
	GetLoanQuote        *enginequery.GetLoanQuoteQuery
	GetLoanTotalOwed    *enginequery.GetLoanTotalOwedQuery
	GetLoanHealth       *enginequery.GetLoanHealthQuery
	ListLiquidatable    *enginequery.ListLiquidatableQuery
	GetAsset            *enginequery.GetAssetQuery
	ListAssetsByOwner   *enginequery.ListAssetsByOwnerQuery
	GetReserveData      *enginequery.GetReserveDataQuery
	VerificationHistory *enginequery.VerificationHistoryQuery
	GetAssetInfo        *enginequery.GetAssetInfoQuery
	ListActivity        *enginequery.ListActivityQuery
}

// Facade bundles the command and query handlers around one engine service so
// hosts wire a single value into their dispatcher.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	activityReader enginequery.ActivityReader
}

func WithActivityReader(reader enginequery.ActivityReader) FacadeOption {
	return func(options *facadeOptions) {
		options.activityReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("engine: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.activityReader
	if reader == nil {
		reader = resolveActivityReader(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		OriginateLoan:        enginecommand.NewOriginateLoanCommand(service),
		RepayLoan:            enginecommand.NewRepayLoanCommand(service),
		LiquidateLoan:        enginecommand.NewLiquidateLoanCommand(service),
		FractionalizeAsset:   enginecommand.NewFractionalizeAssetCommand(service),
		RequestVerification:  enginecommand.NewRequestVerificationCommand(service),
		VerificationCallback: enginecommand.NewVerificationCallbackCommand(service),
		RedeemFractions:      enginecommand.NewRedeemFractionsCommand(service),
		RunSweep:             enginecommand.NewRunSweepCommand(service),
	}
	facade.queries = Queries{
		GetLoan:             enginequery.NewGetLoanQuery(service),
		ListLoansByBorrower: enginequery.NewListLoansByBorrowerQuery(service),
		GetLoanQuote:        enginequery.NewGetLoanQuoteQuery(service),
		GetLoanTotalOwed:    enginequery.NewGetLoanTotalOwedQuery(service),
		GetLoanHealth:       enginequery.NewGetLoanHealthQuery(service),
		ListLiquidatable:    enginequery.NewListLiquidatableQuery(service),
		GetAsset:            enginequery.NewGetAssetQuery(service),
		ListAssetsByOwner:   enginequery.NewListAssetsByOwnerQuery(service),
		GetReserveData:      enginequery.NewGetReserveDataQuery(service),
		VerificationHistory: enginequery.NewVerificationHistoryQuery(service),
		GetAssetInfo:        enginequery.NewGetAssetInfoQuery(service),
		ListActivity:        enginequery.NewListActivityQuery(reader),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// resolveActivityReader prefers a service that reads its own activity, then
// falls back to the sink the service records through.
func resolveActivityReader(service CommandQueryService) enginequery.ActivityReader {
	if service == nil {
		return nil
	}
	if reader, ok := service.(enginequery.ActivityReader); ok {
		return reader
	}
	provider, ok := service.(interface {
		Dependencies() core.ServiceDependencies
	})
	if !ok {
		return nil
	}
	deps := provider.Dependencies()
	if deps.ActivitySink == nil {
		return nil
	}
	if reader, ok := deps.ActivitySink.(enginequery.ActivityReader); ok {
		return reader
	}
	return nil
}

var _ CommandQueryService = (*core.Service)(nil)
