package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/bagelhq/rwa-engine/core"
)

// Caller abstracts the ledger RPC surface. Call is a read against contract
// state; Submit signs and sends a state-changing transaction and blocks
// until it lands.
type Caller interface {
	Call(ctx context.Context, contract, function string, args ...any) (map[string]any, error)
	Submit(ctx context.Context, contract, function string, args ...any) (Submission, error)
}

type Submission struct {
	TxHash string
	Result map[string]any
}

// Contracts holds the deployed contract addresses the gateway talks to.
type Contracts struct {
	AssetRegistry          string
	LendingPool            string
	FractionalizationVault string
	VerificationOracle     string
}

func (c Contracts) Validate() error {
	for _, pair := range []struct {
		name  string
		value string
	}{
		{"asset registry", c.AssetRegistry},
		{"lending pool", c.LendingPool},
		{"fractionalization vault", c.FractionalizationVault},
		{"verification oracle", c.VerificationOracle},
	} {
		if strings.TrimSpace(pair.value) == "" {
			return fmt.Errorf("ledger: %s contract address is required", pair.name)
		}
	}
	return nil
}

// Gateway implements core.LedgerGateway over a Caller. Writes pass through
// the configured executor and a bounded-concurrency gate.
type Gateway struct {
	caller      Caller
	contracts   Contracts
	executor    TransactionExecutor
	logger      core.Logger
	submitGate  chan struct{}
	callTimeout time.Duration
}

type GatewayOption func(*Gateway)

func WithExecutor(executor TransactionExecutor) GatewayOption {
	return func(g *Gateway) {
		g.executor = executor
	}
}

func WithSubmitConcurrency(limit int) GatewayOption {
	return func(g *Gateway) {
		if limit > 0 {
			g.submitGate = make(chan struct{}, limit)
		}
	}
}

func WithCallTimeout(timeout time.Duration) GatewayOption {
	return func(g *Gateway) {
		if timeout > 0 {
			g.callTimeout = timeout
		}
	}
}

func WithLogger(logger core.Logger) GatewayOption {
	return func(g *Gateway) {
		g.logger = logger
	}
}

func NewGateway(caller Caller, contracts Contracts, options ...GatewayOption) (*Gateway, error) {
	if caller == nil {
		return nil, fmt.Errorf("ledger: caller is required")
	}
	if err := contracts.Validate(); err != nil {
		return nil, err
	}
	gateway := &Gateway{
		caller:      caller,
		contracts:   contracts,
		executor:    ExecuteNowExecutor{},
		submitGate:  make(chan struct{}, 8),
		callTimeout: 30 * time.Second,
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(gateway)
	}
	gateway.logger = glog.Ensure(gateway.logger)
	return gateway, nil
}

func (g *Gateway) GetAssetInfo(ctx context.Context, ref core.TokenRef) (core.AssetInfo, error) {
	result, err := g.call(ctx, g.contracts.AssetRegistry, "getAssetInfo", ref.Contract, ref.TokenID)
	if err != nil {
		return core.AssetInfo{}, err
	}
	return assetInfoFromResult(ref, result)
}

func (g *Gateway) GetOwner(ctx context.Context, ref core.TokenRef) (string, error) {
	result, err := g.call(ctx, g.contracts.AssetRegistry, "ownerOf", ref.Contract, ref.TokenID)
	if err != nil {
		return "", err
	}
	owner := stringField(result, "owner")
	if owner == "" {
		return "", classify(fmt.Errorf("ledger: ownerOf returned no owner for %s", ref))
	}
	return owner, nil
}

func (g *Gateway) IsApprovedForFractionalization(ctx context.Context, ref core.TokenRef) (bool, error) {
	result, err := g.call(ctx, g.contracts.FractionalizationVault, "isApproved", ref.Contract, ref.TokenID)
	if err != nil {
		return false, err
	}
	return boolField(result, "approved"), nil
}

func (g *Gateway) IsApprovedForLending(ctx context.Context, ref core.TokenRef) (bool, error) {
	result, err := g.call(ctx, g.contracts.LendingPool, "isApproved", ref.Contract, ref.TokenID)
	if err != nil {
		return false, err
	}
	return boolField(result, "approved"), nil
}

func (g *Gateway) RecommendedLoanAmount(ctx context.Context, ref core.TokenRef) (core.LoanQuote, error) {
	result, err := g.call(ctx, g.contracts.LendingPool, "getRecommendedLoanAmount", ref.Contract, ref.TokenID)
	if err != nil {
		return core.LoanQuote{}, err
	}
	return quoteFromResult(result)
}

func (g *Gateway) TotalOwed(ctx context.Context, loanID string) (core.Amount, bool, error) {
	result, err := g.call(ctx, g.contracts.LendingPool, "getTotalOwed", loanID)
	if err != nil {
		return core.Amount{}, false, err
	}
	raw, ok := result["total_owed"]
	if !ok {
		return core.Amount{}, false, nil
	}
	owed, parseErr := amountFromAny(raw)
	if parseErr != nil {
		return core.Amount{}, false, classify(parseErr)
	}
	return owed, true, nil
}

func (g *Gateway) SubmitCreateLoan(ctx context.Context, in core.OriginateLoanInput) (core.SubmissionReceipt, error) {
	return g.submit(ctx, g.contracts.LendingPool, "createLoan",
		in.Borrower,
		in.Collateral.Contract,
		in.Collateral.TokenID,
		in.Principal.String(),
		in.InterestRateBps,
		int64(in.Duration/time.Second),
	)
}

func (g *Gateway) SubmitRepayLoan(ctx context.Context, loanID string, amount core.Amount) (core.SubmissionReceipt, error) {
	return g.submit(ctx, g.contracts.LendingPool, "repayLoan", loanID, amount.String())
}

func (g *Gateway) SubmitLiquidateLoan(ctx context.Context, loanID string) (core.SubmissionReceipt, error) {
	return g.submit(ctx, g.contracts.LendingPool, "liquidateLoan", loanID)
}

func (g *Gateway) SubmitFractionalize(ctx context.Context, in core.FractionalizeInput) (core.SubmissionReceipt, error) {
	return g.submit(ctx, g.contracts.FractionalizationVault, "fractionalize",
		in.Source.Contract,
		in.Source.TokenID,
		in.Owner,
		in.FractionalSupply.String(),
		in.ReservePrice.String(),
		in.CustodianEndpoint,
	)
}

func (g *Gateway) SubmitRedeem(ctx context.Context, fractionalContract string, amount core.Amount) (core.SubmissionReceipt, error) {
	return g.submit(ctx, g.contracts.FractionalizationVault, "redeem", fractionalContract, amount.String())
}

func (g *Gateway) SubmitVerificationRequest(ctx context.Context, assetID string, requestType core.RequestType) (core.SubmissionReceipt, error) {
	return g.submit(ctx, g.contracts.VerificationOracle, "requestVerification", assetID, string(requestType))
}

func (g *Gateway) call(ctx context.Context, contract, function string, args ...any) (map[string]any, error) {
	if g == nil || g.caller == nil {
		return nil, &core.LedgerError{Kind: core.LedgerErrorUnavailable, Reason: "gateway is not configured"}
	}
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	result, err := g.caller.Call(ctx, contract, function, args...)
	if err != nil {
		return nil, classify(err)
	}
	return result, nil
}

func (g *Gateway) submit(ctx context.Context, contract, function string, args ...any) (core.SubmissionReceipt, error) {
	if g == nil || g.caller == nil {
		return core.SubmissionReceipt{}, &core.LedgerError{Kind: core.LedgerErrorUnavailable, Reason: "gateway is not configured"}
	}

	if g.submitGate != nil {
		select {
		case g.submitGate <- struct{}{}:
			defer func() { <-g.submitGate }()
		case <-ctx.Done():
			return core.SubmissionReceipt{}, classify(ctx.Err())
		}
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	receipt, err := g.executor.Execute(ctx, g.caller, contract, function, args)
	if err != nil {
		classified := classify(err)
		g.logger.Error("ledger submission failed",
			"contract", contract,
			"function", function,
			"error", classified,
		)
		return core.SubmissionReceipt{}, classified
	}
	return receipt, nil
}

func (g *Gateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g == nil || g.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.callTimeout)
}

var _ core.LedgerGateway = (*Gateway)(nil)
