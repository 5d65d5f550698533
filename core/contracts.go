package core

import (
	"context"
	"errors"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// ErrVersionConflict is returned by stores when an optimistic update observes
// a version other than the one the caller read. The service surfaces it as a
// ConcurrentModification conflict.
var ErrVersionConflict = errors.New("core: entity version conflict")

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// Clock injects time so sweeps and accrual are deterministic under test.
type Clock func() time.Time

// AssetInfo is the ledger's view of a source NFT.
type AssetInfo struct {
	Token            TokenRef
	Owner            string
	AssetType        string
	PhysicalLocation string
	AppraisalValue   Amount
	LastAppraisal    time.Time
	Authenticated    bool
	Custodian        string
	CertificateHash  string
	Metadata         map[string]any
}

// LoanQuote is the ledger-recommended loan sizing for a collateral token.
type LoanQuote struct {
	RecommendedAmount Amount
	MaxAmount         Amount
	CollateralValue   Amount
	TargetLTVBps      int64
	MaxLTVBps         int64
}

type ReceiptKind string

const (
	// ReceiptConfirmed carries a finalized ledger result.
	ReceiptConfirmed ReceiptKind = "confirmed"
	// ReceiptPending carries a handle for a submission the ledger accepted
	// but has not finalized. The caller must re-query before resubmitting.
	ReceiptPending ReceiptKind = "pending"
	// ReceiptUnsignedCall carries a call descriptor for client-side signing
	// (frontend usage mode). Nothing was submitted.
	ReceiptUnsignedCall ReceiptKind = "unsigned_call"
)

// UnsignedCall is a calldata descriptor handed to a client wallet.
type UnsignedCall struct {
	Contract     string
	FunctionName string
	Args         []any
}

// SubmissionReceipt is the tagged result of a ledger write. Exactly one of
// the payload fields matching Kind is populated; reverts and transport
// failures arrive as *LedgerError instead.
type SubmissionReceipt struct {
	Kind          ReceiptKind
	TxHash        string
	PendingHandle string
	Call          *UnsignedCall
	Result        map[string]any
}

func (r SubmissionReceipt) Confirmed() bool {
	return r.Kind == ReceiptConfirmed
}

type LedgerErrorKind string

const (
	// LedgerErrorUnavailable covers network failures; safe to retry after
	// re-reading state.
	LedgerErrorUnavailable LedgerErrorKind = "unavailable"
	// LedgerErrorReverted is a terminal execution failure with a reason.
	LedgerErrorReverted LedgerErrorKind = "reverted"
	// LedgerErrorSequencing is a stale-nonce class conflict; retryable after
	// a fresh read.
	LedgerErrorSequencing LedgerErrorKind = "sequencing_conflict"
	// LedgerErrorUnknownOutcome means the submission may or may not have
	// landed. The engine never resubmits on its own.
	LedgerErrorUnknownOutcome LedgerErrorKind = "unknown_outcome"
)

type LedgerError struct {
	Kind   LedgerErrorKind
	Reason string
}

func (e *LedgerError) Error() string {
	if e == nil {
		return "ledger error"
	}
	switch e.Kind {
	case LedgerErrorReverted:
		return "core: ledger execution reverted: " + e.Reason
	case LedgerErrorSequencing:
		return "core: ledger sequencing conflict: " + e.Reason
	case LedgerErrorUnknownOutcome:
		return "core: ledger submission outcome unknown: " + e.Reason
	default:
		return "core: ledger unavailable: " + e.Reason
	}
}

func (e *LedgerError) Retryable() bool {
	if e == nil {
		return false
	}
	return e.Kind == LedgerErrorUnavailable || e.Kind == LedgerErrorSequencing
}

// LedgerGateway is the engine's only window onto the external ledger. Reads
// are idempotent; writes are submitted at most once per command invocation.
type LedgerGateway interface {
	GetAssetInfo(ctx context.Context, ref TokenRef) (AssetInfo, error)
	GetOwner(ctx context.Context, ref TokenRef) (string, error)
	IsApprovedForFractionalization(ctx context.Context, ref TokenRef) (bool, error)
	IsApprovedForLending(ctx context.Context, ref TokenRef) (bool, error)
	RecommendedLoanAmount(ctx context.Context, ref TokenRef) (LoanQuote, error)
	TotalOwed(ctx context.Context, loanID string) (Amount, bool, error)

	SubmitCreateLoan(ctx context.Context, in OriginateLoanInput) (SubmissionReceipt, error)
	SubmitRepayLoan(ctx context.Context, loanID string, amount Amount) (SubmissionReceipt, error)
	SubmitLiquidateLoan(ctx context.Context, loanID string) (SubmissionReceipt, error)
	SubmitFractionalize(ctx context.Context, in FractionalizeInput) (SubmissionReceipt, error)
	SubmitRedeem(ctx context.Context, fractionalContract string, amount Amount) (SubmissionReceipt, error)
	SubmitVerificationRequest(ctx context.Context, assetID string, requestType RequestType) (SubmissionReceipt, error)
}

type OriginateLoanInput struct {
	Borrower        string
	Collateral      TokenRef
	Principal       Amount
	InterestRateBps int64
	Duration        time.Duration
	Metadata        map[string]any
}

type FractionalizeInput struct {
	Source            TokenRef
	Owner             string
	FractionalSupply  Amount
	ReservePrice      Amount
	CustodianEndpoint string
	Metadata          map[string]any
}

type RedeemInput struct {
	FractionalContract string
	Holder             string
	Amount             Amount
}

type RepayInput struct {
	LoanID string
	Payer  string
	Amount Amount
}

type LiquidateInput struct {
	LoanID     string
	Liquidator string
}

type RequestVerificationInput struct {
	AssetID string
	Type    RequestType
}

// VerificationCallback is the inbound oracle tuple delivered out-of-band.
type VerificationCallback struct {
	RequestID string
	AssetID   string
	Type      RequestType
	Outcome   VerificationOutcome
	Reason    string
	Timestamp time.Time
}

// FulfillResult reports what a callback resolution did.
type FulfillResult struct {
	Matched     bool
	AlreadyDone bool
	Request     ReserveVerificationRequest
}

type LoanStore interface {
	Create(ctx context.Context, loan Loan) (Loan, error)
	Get(ctx context.Context, id string) (Loan, error)
	FindActiveByCollateral(ctx context.Context, collateral TokenRef) ([]Loan, error)
	ListByBorrower(ctx context.Context, borrower string) ([]Loan, error)
	ListActive(ctx context.Context) ([]Loan, error)
	// Update persists the loan only when the stored version still equals
	// expectedVersion; otherwise it returns ErrVersionConflict.
	Update(ctx context.Context, loan Loan, expectedVersion int64) (Loan, error)
}

type AssetStore interface {
	Create(ctx context.Context, asset FractionalizedAsset) (FractionalizedAsset, error)
	Get(ctx context.Context, id string) (FractionalizedAsset, error)
	GetByFractionalContract(ctx context.Context, contract string) (FractionalizedAsset, error)
	ListByOwner(ctx context.Context, owner string) ([]FractionalizedAsset, error)
	Update(ctx context.Context, asset FractionalizedAsset, expectedVersion int64) (FractionalizedAsset, error)
}

// VerificationRequestStore is append-only for audit: resolved records are
// never deleted, only transitioned.
type VerificationRequestStore interface {
	Append(ctx context.Context, req ReserveVerificationRequest) (ReserveVerificationRequest, error)
	Get(ctx context.Context, requestID string) (ReserveVerificationRequest, error)
	FindPending(ctx context.Context, assetID string, requestType RequestType) (ReserveVerificationRequest, bool, error)
	ListByAsset(ctx context.Context, assetID string) ([]ReserveVerificationRequest, error)
	ListPendingExpiredBefore(ctx context.Context, cutoff time.Time) ([]ReserveVerificationRequest, error)
	// MarkResolved transitions the request out of pending. It reports false
	// without error when the request was already resolved, so concurrent
	// callbacks settle on exactly one winner.
	MarkResolved(ctx context.Context, requestID string, status RequestStatus, reason string) (bool, error)
}

type ReserveDataStore interface {
	Get(ctx context.Context, assetID string) (ReserveData, error)
	Upsert(ctx context.Context, data ReserveData) error
}

type ActivitySink interface {
	Record(ctx context.Context, entry EngineActivityEntry) error
	List(ctx context.Context, filter ActivityFilter) ([]EngineActivityEntry, error)
}

type ActivityFilter struct {
	Action   string
	EntityID string
	Status   EngineActivityStatus
	From     *time.Time
	To       *time.Time
	Limit    int
}

type LockHandle interface {
	Unlock(ctx context.Context) error
}

// EntityLocker serializes mutating commands per loan or asset id while
// unrelated entities proceed concurrently.
type EntityLocker interface {
	Acquire(ctx context.Context, entityID string, ttl time.Duration) (LockHandle, error)
}

// StoreProvider bundles the persistence-backed stores the service consumes.
type StoreProvider interface {
	LoanStore() LoanStore
	AssetStore() AssetStore
	VerificationRequestStore() VerificationRequestStore
	ReserveDataStore() ReserveDataStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}
