package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidLoanStatusTransition    = errors.New("core: invalid loan status transition")
	ErrInvalidAssetStatusTransition   = errors.New("core: invalid asset status transition")
	ErrInvalidRequestStatusTransition = errors.New("core: invalid verification request status transition")
	ErrInvalidTokenRef                = errors.New("core: invalid token reference")
	ErrInvalidRequestType             = errors.New("core: invalid verification request type")
	ErrLoanNotFound                   = errors.New("core: loan not found")
	ErrAssetNotFound                  = errors.New("core: fractionalized asset not found")
)

// TokenRef identifies an NFT on the ledger: contract address plus token id.
type TokenRef struct {
	Contract string
	TokenID  int64
}

func (r TokenRef) Validate() error {
	if strings.TrimSpace(r.Contract) == "" {
		return fmt.Errorf("%w: empty contract address", ErrInvalidTokenRef)
	}
	if r.TokenID < 0 {
		return fmt.Errorf("%w: negative token id %d", ErrInvalidTokenRef, r.TokenID)
	}
	return nil
}

func (r TokenRef) String() string {
	return fmt.Sprintf("%s/%d", strings.ToLower(strings.TrimSpace(r.Contract)), r.TokenID)
}

// DeriveAssetID produces the stable fractionalized-asset identifier for a
// source NFT. The same contract and token id always map to the same asset id.
func DeriveAssetID(ref TokenRef) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(ref.String())).String()
}

type LoanStatus string

const (
	LoanStatusActive     LoanStatus = "active"
	LoanStatusRepaid     LoanStatus = "repaid"
	LoanStatusDefaulted  LoanStatus = "defaulted"
	LoanStatusLiquidated LoanStatus = "liquidated"
)

type Loan struct {
	ID                string
	Borrower          string
	Collateral        TokenRef
	Principal         Amount
	InterestRateBps   int64
	Duration          time.Duration
	StartTime         time.Time
	EndTime           time.Time
	Status            LoanStatus
	AmountRepaid      Amount
	TotalRepaymentDue Amount
	LastError         string
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (l *Loan) TransitionTo(status LoanStatus, reason string, now time.Time) error {
	if l == nil {
		return nil
	}
	if l.Status == status {
		l.UpdatedAt = now
		return nil
	}
	if !loanTransitionAllowed(l.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidLoanStatusTransition, l.Status, status)
	}
	l.Status = status
	l.UpdatedAt = now
	if strings.TrimSpace(reason) != "" {
		l.LastError = strings.TrimSpace(reason)
	}
	return nil
}

// loanTransitionAllowed encodes the loan DAG: Active is the only non-terminal
// state and nothing ever returns to it.
func loanTransitionAllowed(current, next LoanStatus) bool {
	allowed := map[LoanStatus]map[LoanStatus]struct{}{
		LoanStatusActive: {
			LoanStatusRepaid:     {},
			LoanStatusDefaulted:  {},
			LoanStatusLiquidated: {},
		},
		LoanStatusRepaid:     {},
		LoanStatusDefaulted:  {},
		LoanStatusLiquidated: {},
	}
	_, ok := allowed[current][next]
	return ok
}

func (l *Loan) Terminal() bool {
	if l == nil {
		return false
	}
	return l.Status != LoanStatusActive
}

type AssetStatus string

const (
	AssetStatusActive      AssetStatus = "active"
	AssetStatusUnderReview AssetStatus = "under_review"
	AssetStatusFrozen      AssetStatus = "frozen"
	AssetStatusLiquidating AssetStatus = "liquidating"
)

type FractionalizedAsset struct {
	ID                    string
	Source                TokenRef
	OriginalOwner         string
	FractionalSupply      Amount
	CirculatingSupply     Amount
	ReservePrice          Amount
	FractionalContract    string
	CustodianEndpoint     string
	Status                AssetStatus
	Retired               bool
	LastReserveCheck      time.Time
	LastYieldDistribution time.Time
	Version               int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (a *FractionalizedAsset) TransitionTo(status AssetStatus, now time.Time) error {
	if a == nil {
		return nil
	}
	if a.Status == status {
		a.UpdatedAt = now
		return nil
	}
	if !assetTransitionAllowed(a.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidAssetStatusTransition, a.Status, status)
	}
	a.Status = status
	a.UpdatedAt = now
	return nil
}

// assetTransitionAllowed encodes Active <-> UnderReview with Frozen reachable
// only from UnderReview. Frozen is sticky: unfreeze is an administrative
// operation outside the lifecycle and not expressed here.
func assetTransitionAllowed(current, next AssetStatus) bool {
	allowed := map[AssetStatus]map[AssetStatus]struct{}{
		AssetStatusActive: {
			AssetStatusUnderReview: {},
			AssetStatusLiquidating: {},
		},
		AssetStatusUnderReview: {
			AssetStatusActive: {},
			AssetStatusFrozen: {},
		},
		AssetStatusFrozen:      {},
		AssetStatusLiquidating: {},
	}
	_, ok := allowed[current][next]
	return ok
}

// Tradable reports whether redemption and transfers may proceed.
func (a *FractionalizedAsset) Tradable() bool {
	if a == nil || a.Retired {
		return false
	}
	return a.Status == AssetStatusActive || a.Status == AssetStatusUnderReview
}

type RequestType string

const (
	RequestTypeMetadataUpdate      RequestType = "metadata_update"
	RequestTypeAuthenticityCheck   RequestType = "authenticity_check"
	RequestTypeReserveVerification RequestType = "reserve_verification"
)

func (t RequestType) Validate() error {
	switch t {
	case RequestTypeMetadataUpdate, RequestTypeAuthenticityCheck, RequestTypeReserveVerification:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidRequestType, string(t))
}

type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusFulfilled RequestStatus = "fulfilled"
	RequestStatusFailed    RequestStatus = "failed"
	RequestStatusExpired   RequestStatus = "expired"
)

// ReserveVerificationRequest is the append-only audit record of one
// verification attempt against a custodian oracle.
type ReserveVerificationRequest struct {
	RequestID string
	AssetID   string
	Type      RequestType
	IssuedAt  time.Time
	ExpiresAt time.Time
	Status    RequestStatus
	Reason    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r *ReserveVerificationRequest) TransitionTo(status RequestStatus, reason string, now time.Time) error {
	if r == nil {
		return nil
	}
	if r.Status == status {
		r.UpdatedAt = now
		return nil
	}
	if !requestTransitionAllowed(r.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidRequestStatusTransition, r.Status, status)
	}
	r.Status = status
	r.UpdatedAt = now
	if strings.TrimSpace(reason) != "" {
		r.Reason = strings.TrimSpace(reason)
	}
	return nil
}

func requestTransitionAllowed(current, next RequestStatus) bool {
	allowed := map[RequestStatus]map[RequestStatus]struct{}{
		RequestStatusPending: {
			RequestStatusFulfilled: {},
			RequestStatusFailed:    {},
			RequestStatusExpired:   {},
		},
		RequestStatusFulfilled: {},
		RequestStatusFailed:    {},
		RequestStatusExpired:   {},
	}
	_, ok := allowed[current][next]
	return ok
}

func (r *ReserveVerificationRequest) Resolved() bool {
	if r == nil {
		return false
	}
	return r.Status != RequestStatusPending
}

// ReserveData is the derived verification view per asset. ConsecutiveFailures
// resets on any successful outcome and increments on any failure, including
// sweep-generated timeouts.
type ReserveData struct {
	AssetID             string
	IsVerified          bool
	ConsecutiveFailures int
	LastVerification    time.Time
	LastRequestID       string
	UpdatedAt           time.Time
}

// VerificationOutcome is what a custodian callback (or the expiry sweep)
// reports for a pending request.
type VerificationOutcome string

const (
	OutcomeFulfilled VerificationOutcome = "fulfilled"
	OutcomeFailed    VerificationOutcome = "failed"
)

type EngineActivityStatus string

const (
	EngineActivityStatusOK    EngineActivityStatus = "ok"
	EngineActivityStatusError EngineActivityStatus = "error"
)

// EngineActivityEntry is one audit row per executed command.
type EngineActivityEntry struct {
	ID        string
	Actor     string
	Action    string
	EntityID  string
	Status    EngineActivityStatus
	Metadata  map[string]any
	CreatedAt time.Time
}
