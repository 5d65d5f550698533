package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/bagelhq/rwa-engine/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type LoanStore struct {
	db   *bun.DB
	repo repository.Repository[*loanRecord]
}

func NewLoanStore(db *bun.DB) (*LoanStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*loanRecord](db, loanHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid loan repository wiring: %w", err)
		}
	}
	return &LoanStore{db: db, repo: repo}, nil
}

func (s *LoanStore) Create(ctx context.Context, loan core.Loan) (core.Loan, error) {
	if s == nil || s.repo == nil {
		return core.Loan{}, fmt.Errorf("sqlstore: loan store is not configured")
	}
	if strings.TrimSpace(loan.ID) == "" {
		return core.Loan{}, fmt.Errorf("sqlstore: loan id is required")
	}
	loan.Version = 1
	now := time.Now().UTC()
	if loan.CreatedAt.IsZero() {
		loan.CreatedAt = now
	}
	if loan.UpdatedAt.IsZero() {
		loan.UpdatedAt = now
	}
	created, err := s.repo.Create(ctx, newLoanRecord(loan))
	if err != nil {
		return core.Loan{}, err
	}
	return created.toDomain()
}

func (s *LoanStore) Get(ctx context.Context, id string) (core.Loan, error) {
	if s == nil || s.repo == nil {
		return core.Loan{}, fmt.Errorf("sqlstore: loan store is not configured")
	}
	record, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if isNoRows(err) {
			return core.Loan{}, fmt.Errorf("%w: %q", core.ErrLoanNotFound, id)
		}
		return core.Loan{}, err
	}
	return record.toDomain()
}

func (s *LoanStore) FindActiveByCollateral(ctx context.Context, collateral core.TokenRef) ([]core.Loan, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: loan store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("collateral_contract", "=", strings.ToLower(strings.TrimSpace(collateral.Contract))),
		repository.SelectBy("collateral_token_id", "=", fmt.Sprint(collateral.TokenID)),
		repository.SelectBy("status", "=", string(core.LoanStatusActive)),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	return loansToDomain(records)
}

func (s *LoanStore) ListByBorrower(ctx context.Context, borrower string) ([]core.Loan, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: loan store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("borrower", "=", strings.ToLower(strings.TrimSpace(borrower))),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	return loansToDomain(records)
}

func (s *LoanStore) ListActive(ctx context.Context) ([]core.Loan, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: loan store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("status", "=", string(core.LoanStatusActive)),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	return loansToDomain(records)
}

func (s *LoanStore) Update(ctx context.Context, loan core.Loan, expectedVersion int64) (core.Loan, error) {
	if s == nil || s.db == nil {
		return core.Loan{}, fmt.Errorf("sqlstore: loan store is not configured")
	}
	loan.Version = expectedVersion + 1
	loan.UpdatedAt = time.Now().UTC()
	record := newLoanRecord(loan)
	result, err := s.db.NewUpdate().
		Model(record).
		WherePK().
		Where("version = ?", expectedVersion).
		Exec(ctx)
	if err != nil {
		return core.Loan{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return core.Loan{}, err
	}
	if affected == 0 {
		return core.Loan{}, fmt.Errorf("%w: loan %s expected version %d",
			core.ErrVersionConflict, loan.ID, expectedVersion)
	}
	return record.toDomain()
}

func loansToDomain(records []*loanRecord) ([]core.Loan, error) {
	out := make([]core.Loan, 0, len(records))
	for _, record := range records {
		loan, err := record.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, loan)
	}
	return out, nil
}

func isNoRows(err error) bool {
	if err == nil {
		return false
	}
	if err == sql.ErrNoRows {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no rows in result set")
}

var _ core.LoanStore = (*LoanStore)(nil)
