package sqlstore

import (
	"fmt"
	"strings"
	"time"

	"github.com/bagelhq/rwa-engine/core"
	"github.com/uptrace/bun"
)

type loanRecord struct {
	bun.BaseModel `bun:"table:rwa_loans,alias:rl"`

	ID                 string    `bun:"id,pk"`
	Borrower           string    `bun:"borrower,notnull"`
	CollateralContract string    `bun:"collateral_contract,notnull"`
	CollateralTokenID  int64     `bun:"collateral_token_id,notnull"`
	Principal          string    `bun:"principal,notnull"`
	InterestRateBps    int64     `bun:"interest_rate_bps,notnull"`
	DurationSeconds    int64     `bun:"duration_seconds,notnull"`
	StartTime          time.Time `bun:"start_time,nullzero"`
	EndTime            time.Time `bun:"end_time,nullzero"`
	Status             string    `bun:"status,notnull"`
	AmountRepaid       string    `bun:"amount_repaid,notnull"`
	TotalRepaymentDue  string    `bun:"total_repayment_due,notnull"`
	LastError          string    `bun:"last_error"`
	Version            int64     `bun:"version,notnull"`
	CreatedAt          time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt          time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newLoanRecord(loan core.Loan) *loanRecord {
	return &loanRecord{
		ID:                 loan.ID,
		Borrower:           loan.Borrower,
		CollateralContract: strings.ToLower(strings.TrimSpace(loan.Collateral.Contract)),
		CollateralTokenID:  loan.Collateral.TokenID,
		Principal:          loan.Principal.String(),
		InterestRateBps:    loan.InterestRateBps,
		DurationSeconds:    int64(loan.Duration / time.Second),
		StartTime:          loan.StartTime,
		EndTime:            loan.EndTime,
		Status:             string(loan.Status),
		AmountRepaid:       loan.AmountRepaid.String(),
		TotalRepaymentDue:  loan.TotalRepaymentDue.String(),
		LastError:          loan.LastError,
		Version:            loan.Version,
		CreatedAt:          loan.CreatedAt,
		UpdatedAt:          loan.UpdatedAt,
	}
}

func (r *loanRecord) toDomain() (core.Loan, error) {
	if r == nil {
		return core.Loan{}, fmt.Errorf("sqlstore: nil loan record")
	}
	principal, err := core.ParseAmount(r.Principal)
	if err != nil {
		return core.Loan{}, fmt.Errorf("sqlstore: loan %s principal: %w", r.ID, err)
	}
	repaid, err := core.ParseAmount(r.AmountRepaid)
	if err != nil {
		return core.Loan{}, fmt.Errorf("sqlstore: loan %s amount repaid: %w", r.ID, err)
	}
	due, err := core.ParseAmount(r.TotalRepaymentDue)
	if err != nil {
		return core.Loan{}, fmt.Errorf("sqlstore: loan %s total repayment due: %w", r.ID, err)
	}
	return core.Loan{
		ID:       r.ID,
		Borrower: r.Borrower,
		Collateral: core.TokenRef{
			Contract: r.CollateralContract,
			TokenID:  r.CollateralTokenID,
		},
		Principal:         principal,
		InterestRateBps:   r.InterestRateBps,
		Duration:          time.Duration(r.DurationSeconds) * time.Second,
		StartTime:         r.StartTime,
		EndTime:           r.EndTime,
		Status:            core.LoanStatus(r.Status),
		AmountRepaid:      repaid,
		TotalRepaymentDue: due,
		LastError:         r.LastError,
		Version:           r.Version,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}, nil
}

type fractionalAssetRecord struct {
	bun.BaseModel `bun:"table:rwa_fractional_assets,alias:rfa"`

	ID                    string    `bun:"id,pk"`
	SourceContract        string    `bun:"source_contract,notnull"`
	SourceTokenID         int64     `bun:"source_token_id,notnull"`
	OriginalOwner         string    `bun:"original_owner,notnull"`
	FractionalSupply      string    `bun:"fractional_supply,notnull"`
	CirculatingSupply     string    `bun:"circulating_supply,notnull"`
	ReservePrice          string    `bun:"reserve_price,notnull"`
	FractionalContract    string    `bun:"fractional_contract"`
	CustodianEndpoint     string    `bun:"custodian_endpoint"`
	Status                string    `bun:"status,notnull"`
	Retired               bool      `bun:"retired,notnull"`
	LastReserveCheck      time.Time `bun:"last_reserve_check,nullzero"`
	LastYieldDistribution time.Time `bun:"last_yield_distribution,nullzero"`
	Version               int64     `bun:"version,notnull"`
	CreatedAt             time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt             time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newFractionalAssetRecord(asset core.FractionalizedAsset) *fractionalAssetRecord {
	return &fractionalAssetRecord{
		ID:                    asset.ID,
		SourceContract:        asset.Source.Contract,
		SourceTokenID:         asset.Source.TokenID,
		OriginalOwner:         asset.OriginalOwner,
		FractionalSupply:      asset.FractionalSupply.String(),
		CirculatingSupply:     asset.CirculatingSupply.String(),
		ReservePrice:          asset.ReservePrice.String(),
		FractionalContract:    asset.FractionalContract,
		CustodianEndpoint:     asset.CustodianEndpoint,
		Status:                string(asset.Status),
		Retired:               asset.Retired,
		LastReserveCheck:      asset.LastReserveCheck,
		LastYieldDistribution: asset.LastYieldDistribution,
		Version:               asset.Version,
		CreatedAt:             asset.CreatedAt,
		UpdatedAt:             asset.UpdatedAt,
	}
}

func (r *fractionalAssetRecord) toDomain() (core.FractionalizedAsset, error) {
	if r == nil {
		return core.FractionalizedAsset{}, fmt.Errorf("sqlstore: nil fractional asset record")
	}
	supply, err := core.ParseAmount(r.FractionalSupply)
	if err != nil {
		return core.FractionalizedAsset{}, fmt.Errorf("sqlstore: asset %s fractional supply: %w", r.ID, err)
	}
	circulating, err := core.ParseAmount(r.CirculatingSupply)
	if err != nil {
		return core.FractionalizedAsset{}, fmt.Errorf("sqlstore: asset %s circulating supply: %w", r.ID, err)
	}
	reserve, err := core.ParseAmount(r.ReservePrice)
	if err != nil {
		return core.FractionalizedAsset{}, fmt.Errorf("sqlstore: asset %s reserve price: %w", r.ID, err)
	}
	return core.FractionalizedAsset{
		ID: r.ID,
		Source: core.TokenRef{
			Contract: r.SourceContract,
			TokenID:  r.SourceTokenID,
		},
		OriginalOwner:         r.OriginalOwner,
		FractionalSupply:      supply,
		CirculatingSupply:     circulating,
		ReservePrice:          reserve,
		FractionalContract:    r.FractionalContract,
		CustodianEndpoint:     r.CustodianEndpoint,
		Status:                core.AssetStatus(r.Status),
		Retired:               r.Retired,
		LastReserveCheck:      r.LastReserveCheck,
		LastYieldDistribution: r.LastYieldDistribution,
		Version:               r.Version,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}, nil
}

type verificationRequestRecord struct {
	bun.BaseModel `bun:"table:rwa_verification_requests,alias:rvr"`

	ID          string    `bun:"id,pk"`
	AssetID     string    `bun:"asset_id,notnull"`
	RequestType string    `bun:"request_type,notnull"`
	IssuedAt    time.Time `bun:"issued_at,nullzero,notnull"`
	ExpiresAt   time.Time `bun:"expires_at,nullzero,notnull"`
	Status      string    `bun:"status,notnull"`
	Reason      string    `bun:"reason"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newVerificationRequestRecord(req core.ReserveVerificationRequest) *verificationRequestRecord {
	return &verificationRequestRecord{
		ID:          req.RequestID,
		AssetID:     req.AssetID,
		RequestType: string(req.Type),
		IssuedAt:    req.IssuedAt,
		ExpiresAt:   req.ExpiresAt,
		Status:      string(req.Status),
		Reason:      req.Reason,
		CreatedAt:   req.CreatedAt,
		UpdatedAt:   req.UpdatedAt,
	}
}

func (r *verificationRequestRecord) toDomain() core.ReserveVerificationRequest {
	if r == nil {
		return core.ReserveVerificationRequest{}
	}
	return core.ReserveVerificationRequest{
		RequestID: r.ID,
		AssetID:   r.AssetID,
		Type:      core.RequestType(r.RequestType),
		IssuedAt:  r.IssuedAt,
		ExpiresAt: r.ExpiresAt,
		Status:    core.RequestStatus(r.Status),
		Reason:    r.Reason,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type reserveDataRecord struct {
	bun.BaseModel `bun:"table:rwa_reserve_data,alias:rrd"`

	AssetID             string    `bun:"asset_id,pk"`
	IsVerified          bool      `bun:"is_verified,notnull"`
	ConsecutiveFailures int       `bun:"consecutive_failures,notnull"`
	LastVerification    time.Time `bun:"last_verification,nullzero"`
	LastRequestID       string    `bun:"last_request_id"`
	UpdatedAt           time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newReserveDataRecord(data core.ReserveData) *reserveDataRecord {
	return &reserveDataRecord{
		AssetID:             data.AssetID,
		IsVerified:          data.IsVerified,
		ConsecutiveFailures: data.ConsecutiveFailures,
		LastVerification:    data.LastVerification,
		LastRequestID:       data.LastRequestID,
		UpdatedAt:           data.UpdatedAt,
	}
}

func (r *reserveDataRecord) toDomain() core.ReserveData {
	if r == nil {
		return core.ReserveData{}
	}
	return core.ReserveData{
		AssetID:             r.AssetID,
		IsVerified:          r.IsVerified,
		ConsecutiveFailures: r.ConsecutiveFailures,
		LastVerification:    r.LastVerification,
		LastRequestID:       r.LastRequestID,
		UpdatedAt:           r.UpdatedAt,
	}
}

type engineActivityRecord struct {
	bun.BaseModel `bun:"table:rwa_engine_activity,alias:rea"`

	ID        string         `bun:"id,pk"`
	Actor     string         `bun:"actor,notnull"`
	Action    string         `bun:"action,notnull"`
	EntityID  string         `bun:"entity_id,notnull"`
	Status    string         `bun:"status,notnull"`
	Metadata  map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func (r *engineActivityRecord) toDomain() core.EngineActivityEntry {
	if r == nil {
		return core.EngineActivityEntry{}
	}
	return core.EngineActivityEntry{
		ID:        r.ID,
		Actor:     r.Actor,
		Action:    r.Action,
		EntityID:  r.EntityID,
		Status:    core.EngineActivityStatus(r.Status),
		Metadata:  r.Metadata,
		CreatedAt: r.CreatedAt,
	}
}

type callbackDeliveryRecord struct {
	bun.BaseModel `bun:"table:rwa_callback_deliveries,alias:rcd"`

	ID            string     `bun:"id,pk"`
	ClaimID       string     `bun:"claim_id"`
	Source        string     `bun:"source,notnull,unique:rwa_callback_deliveries_source_delivery"`
	DeliveryID    string     `bun:"delivery_id,notnull,unique:rwa_callback_deliveries_source_delivery"`
	Status        string     `bun:"status,notnull"`
	Attempts      int        `bun:"attempts,notnull"`
	Payload       []byte     `bun:"payload"`
	LastError     string     `bun:"last_error"`
	NextAttemptAt *time.Time `bun:"next_attempt_at,nullzero"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
