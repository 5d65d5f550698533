package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type OriginateLoanRequest struct {
	Borrower        string
	Collateral      TokenRef
	Principal       Amount
	InterestRateBps int64
	Duration        time.Duration
	Metadata        map[string]any
}

func (r OriginateLoanRequest) Validate() error {
	if strings.TrimSpace(r.Borrower) == "" {
		return fmt.Errorf("core: borrower is required")
	}
	if err := r.Collateral.Validate(); err != nil {
		return err
	}
	if r.Principal.IsZero() {
		return fmt.Errorf("core: loan principal must be positive")
	}
	if r.InterestRateBps < 0 {
		return fmt.Errorf("core: interest rate must not be negative")
	}
	if r.Duration <= 0 {
		return fmt.Errorf("core: loan duration must be positive")
	}
	return nil
}

type OriginateLoanResult struct {
	Loan    *Loan
	Receipt SubmissionReceipt
	Quote   LoanQuote
}

type RepayLoanRequest struct {
	LoanID string
	Amount Amount
}

type RepayLoanResult struct {
	Loan      Loan
	Receipt   SubmissionReceipt
	Remaining Amount
}

type LiquidateLoanRequest struct {
	LoanID string
}

type LiquidateLoanResult struct {
	Loan    Loan
	Receipt SubmissionReceipt
}

// OriginateLoan opens a collateralized loan. The collateral must be free of
// active loans and the requested principal must not exceed the ledger's
// maximum for that collateral. The local record is only created once the
// ledger confirms the submission.
func (s *Service) OriginateLoan(ctx context.Context, req OriginateLoanRequest) (result OriginateLoanResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"borrower":   req.Borrower,
		"collateral": req.Collateral.String(),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "originate_loan", err, fields)
		s.recordActivity(ctx, "loan.originate", req.Collateral.String(), err, fields)
	}()

	if s == nil || s.ledger == nil {
		err = s.mapError(fmt.Errorf("core: ledger gateway is not configured"))
		return OriginateLoanResult{}, err
	}
	if err = req.Validate(); err != nil {
		err = s.mapError(err)
		return OriginateLoanResult{}, err
	}

	handle, lockErr := acquireEntityLock(ctx, s.entityLocker, "collateral:"+req.Collateral.String(), defaultEntityLockTTL)
	if lockErr != nil {
		err = s.mapError(lockErr)
		return OriginateLoanResult{}, err
	}
	defer func() { _ = handle.Unlock(ctx) }()

	approved, approveErr := s.ledger.IsApprovedForLending(ctx, req.Collateral)
	if approveErr != nil {
		err = s.mapError(approveErr)
		return OriginateLoanResult{}, err
	}
	if !approved {
		err = s.mapError(fmt.Errorf("core: collateral %s is not approved for lending", req.Collateral))
		return OriginateLoanResult{}, err
	}

	existing, findErr := s.loanStore.FindActiveByCollateral(ctx, req.Collateral)
	if findErr != nil {
		err = s.mapError(findErr)
		return OriginateLoanResult{}, err
	}
	if len(existing) > 0 {
		err = s.mapError(errCollateralEncumbered(req.Collateral))
		return OriginateLoanResult{}, err
	}

	quote, quoteErr := s.ledger.RecommendedLoanAmount(ctx, req.Collateral)
	if quoteErr != nil {
		err = s.mapError(quoteErr)
		return OriginateLoanResult{}, err
	}
	if req.Principal.Cmp(quote.MaxAmount) > 0 {
		err = s.mapError(fmt.Errorf("core: principal %s exceeds maximum loan amount %s for collateral %s",
			req.Principal, quote.MaxAmount, req.Collateral))
		return OriginateLoanResult{}, err
	}

	receipt, submitErr := s.ledger.SubmitCreateLoan(ctx, OriginateLoanInput{
		Borrower:        req.Borrower,
		Collateral:      req.Collateral,
		Principal:       req.Principal,
		InterestRateBps: req.InterestRateBps,
		Duration:        req.Duration,
		Metadata:        copyAnyMap(req.Metadata),
	})
	if submitErr != nil {
		err = s.mapError(submitErr)
		return OriginateLoanResult{}, err
	}
	result = OriginateLoanResult{Receipt: receipt, Quote: quote}
	if !receipt.Confirmed() {
		return result, nil
	}

	now := s.now()
	loan := Loan{
		ID:              uuid.NewString(),
		Borrower:        strings.ToLower(strings.TrimSpace(req.Borrower)),
		Collateral:      req.Collateral,
		Principal:       req.Principal,
		InterestRateBps: req.InterestRateBps,
		Duration:        req.Duration,
		StartTime:       now,
		EndTime:         now.Add(req.Duration),
		Status:          LoanStatusActive,
		AmountRepaid:    AmountZero(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	loan.TotalRepaymentDue = accruedTotalOwed(loan, loan.EndTime)

	stored, createErr := s.loanStore.Create(ctx, loan)
	if createErr != nil {
		err = s.mapError(createErr)
		return OriginateLoanResult{}, err
	}
	fields["loan_id"] = stored.ID
	result.Loan = &stored
	return result, nil
}

// RepayLoan applies a repayment against an active loan. The ledger's owed
// figure is authoritative when reachable; otherwise the locally accrued
// total is used.
func (s *Service) RepayLoan(ctx context.Context, req RepayLoanRequest) (result RepayLoanResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"loan_id": req.LoanID}
	defer func() {
		s.observeOperation(ctx, startedAt, "repay_loan", err, fields)
		s.recordActivity(ctx, "loan.repay", req.LoanID, err, fields)
	}()

	if s == nil || s.ledger == nil {
		err = s.mapError(fmt.Errorf("core: ledger gateway is not configured"))
		return RepayLoanResult{}, err
	}
	if strings.TrimSpace(req.LoanID) == "" {
		err = s.mapError(fmt.Errorf("core: loan id is required"))
		return RepayLoanResult{}, err
	}
	if req.Amount.IsZero() {
		err = s.mapError(fmt.Errorf("core: repayment amount must be positive"))
		return RepayLoanResult{}, err
	}

	handle, lockErr := acquireEntityLock(ctx, s.entityLocker, "loan:"+req.LoanID, defaultEntityLockTTL)
	if lockErr != nil {
		err = s.mapError(lockErr)
		return RepayLoanResult{}, err
	}
	defer func() { _ = handle.Unlock(ctx) }()

	loan, getErr := s.loanStore.Get(ctx, req.LoanID)
	if getErr != nil {
		err = s.mapError(getErr)
		return RepayLoanResult{}, err
	}
	if loan.Status != LoanStatusActive {
		err = s.mapError(errLoanStateConflict(loan.ID,
			fmt.Sprintf("is %s, only active loans accept repayments", loan.Status)))
		return RepayLoanResult{}, err
	}

	totalOwed := s.resolveTotalOwed(ctx, loan)
	remaining, subErr := totalOwed.Sub(loan.AmountRepaid)
	if subErr != nil {
		remaining = AmountZero()
	}
	if req.Amount.Cmp(remaining) > 0 {
		err = s.mapError(fmt.Errorf("core: repayment %s exceeds outstanding balance %s for loan %q",
			req.Amount, remaining, loan.ID))
		return RepayLoanResult{}, err
	}

	receipt, submitErr := s.ledger.SubmitRepayLoan(ctx, loan.ID, req.Amount)
	if submitErr != nil {
		err = s.mapError(submitErr)
		return RepayLoanResult{}, err
	}
	result = RepayLoanResult{Loan: loan, Receipt: receipt, Remaining: remaining}
	if !receipt.Confirmed() {
		return result, nil
	}

	now := s.now()
	loan.AmountRepaid = loan.AmountRepaid.Add(req.Amount)
	loan.TotalRepaymentDue = totalOwed
	loan.UpdatedAt = now
	if loan.AmountRepaid.Cmp(totalOwed) >= 0 {
		if transitionErr := loan.TransitionTo(LoanStatusRepaid, "", now); transitionErr != nil {
			err = s.mapError(transitionErr)
			return RepayLoanResult{}, err
		}
	}

	updated, updateErr := s.loanStore.Update(ctx, loan, loan.Version)
	if updateErr != nil {
		err = s.mapError(updateErr)
		return RepayLoanResult{}, err
	}
	remaining, subErr = totalOwed.Sub(updated.AmountRepaid)
	if subErr != nil {
		remaining = AmountZero()
	}
	result.Loan = updated
	result.Remaining = remaining
	return result, nil
}

// LiquidateLoan seizes the collateral of a loan that is either past its end
// time or whose health ratio fell below the liquidation threshold.
func (s *Service) LiquidateLoan(ctx context.Context, req LiquidateLoanRequest) (result LiquidateLoanResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"loan_id": req.LoanID}
	defer func() {
		s.observeOperation(ctx, startedAt, "liquidate_loan", err, fields)
		s.recordActivity(ctx, "loan.liquidate", req.LoanID, err, fields)
	}()

	if s == nil || s.ledger == nil {
		err = s.mapError(fmt.Errorf("core: ledger gateway is not configured"))
		return LiquidateLoanResult{}, err
	}
	if strings.TrimSpace(req.LoanID) == "" {
		err = s.mapError(fmt.Errorf("core: loan id is required"))
		return LiquidateLoanResult{}, err
	}

	handle, lockErr := acquireEntityLock(ctx, s.entityLocker, "loan:"+req.LoanID, defaultEntityLockTTL)
	if lockErr != nil {
		err = s.mapError(lockErr)
		return LiquidateLoanResult{}, err
	}
	defer func() { _ = handle.Unlock(ctx) }()

	loan, getErr := s.loanStore.Get(ctx, req.LoanID)
	if getErr != nil {
		err = s.mapError(getErr)
		return LiquidateLoanResult{}, err
	}
	if loan.Status != LoanStatusActive && loan.Status != LoanStatusDefaulted {
		err = s.mapError(errLoanStateConflict(loan.ID,
			fmt.Sprintf("is %s and cannot be liquidated", loan.Status)))
		return LiquidateLoanResult{}, err
	}

	healthMilli, healthErr := s.loanHealthMilli(ctx, loan)
	if healthErr != nil {
		err = s.mapError(healthErr)
		return LiquidateLoanResult{}, err
	}
	fields["health_milli"] = healthMilli
	if !s.liquidatable(loan, healthMilli) {
		err = s.mapError(errNotLiquidatable(loan.ID, healthMilli))
		return LiquidateLoanResult{}, err
	}

	receipt, submitErr := s.ledger.SubmitLiquidateLoan(ctx, loan.ID)
	if submitErr != nil {
		err = s.mapError(submitErr)
		return LiquidateLoanResult{}, err
	}
	result = LiquidateLoanResult{Loan: loan, Receipt: receipt}
	if !receipt.Confirmed() {
		return result, nil
	}

	now := s.now()
	if transitionErr := loan.TransitionTo(LoanStatusLiquidated, "liquidation executed", now); transitionErr != nil {
		err = s.mapError(transitionErr)
		return LiquidateLoanResult{}, err
	}
	loan.UpdatedAt = now
	updated, updateErr := s.loanStore.Update(ctx, loan, loan.Version)
	if updateErr != nil {
		err = s.mapError(updateErr)
		return LiquidateLoanResult{}, err
	}
	result.Loan = updated
	return result, nil
}

// Loan returns the local loan record.
func (s *Service) Loan(ctx context.Context, loanID string) (Loan, error) {
	if s == nil || s.loanStore == nil {
		return Loan{}, s.mapError(fmt.Errorf("core: loan store is not configured"))
	}
	loan, err := s.loanStore.Get(ctx, loanID)
	if err != nil {
		return Loan{}, s.mapError(err)
	}
	return loan, nil
}

// LoansByBorrower lists all loans the borrower has opened, in any status.
func (s *Service) LoansByBorrower(ctx context.Context, borrower string) ([]Loan, error) {
	if s == nil || s.loanStore == nil {
		return nil, s.mapError(fmt.Errorf("core: loan store is not configured"))
	}
	if strings.TrimSpace(borrower) == "" {
		return nil, s.mapError(fmt.Errorf("core: borrower is required"))
	}
	loans, err := s.loanStore.ListByBorrower(ctx, borrower)
	if err != nil {
		return nil, s.mapError(err)
	}
	return loans, nil
}

// QuoteLoan returns the recommended and maximum loan amounts for a
// collateral token, sourced from the ledger's appraisal.
func (s *Service) QuoteLoan(ctx context.Context, collateral TokenRef) (LoanQuote, error) {
	if s == nil || s.ledger == nil {
		return LoanQuote{}, s.mapError(fmt.Errorf("core: ledger gateway is not configured"))
	}
	if err := collateral.Validate(); err != nil {
		return LoanQuote{}, s.mapError(err)
	}
	quote, err := s.ledger.RecommendedLoanAmount(ctx, collateral)
	if err != nil {
		return LoanQuote{}, s.mapError(err)
	}
	return quote, nil
}

// LoanTotalOwed reports the total repayment due for a loan, preferring the
// ledger's figure over the local accrual estimate.
func (s *Service) LoanTotalOwed(ctx context.Context, loanID string) (Amount, error) {
	loan, err := s.Loan(ctx, loanID)
	if err != nil {
		return Amount{}, err
	}
	return s.resolveTotalOwed(ctx, loan), nil
}

// LoanHealth reports the collateral-to-outstanding ratio scaled by 1000.
// Fully repaid loans report the maximum health value.
func (s *Service) LoanHealth(ctx context.Context, loanID string) (int64, error) {
	loan, err := s.Loan(ctx, loanID)
	if err != nil {
		return 0, err
	}
	healthMilli, healthErr := s.loanHealthMilli(ctx, loan)
	if healthErr != nil {
		return 0, s.mapError(healthErr)
	}
	return healthMilli, nil
}

// ListLiquidatableLoans returns the active loans currently eligible for
// liquidation. Loans whose health cannot be computed are skipped and logged.
func (s *Service) ListLiquidatableLoans(ctx context.Context) ([]Loan, error) {
	if s == nil || s.loanStore == nil {
		return nil, s.mapError(fmt.Errorf("core: loan store is not configured"))
	}
	active, err := s.loanStore.ListActive(ctx)
	if err != nil {
		return nil, s.mapError(err)
	}
	var eligible []Loan
	for _, loan := range active {
		healthMilli, healthErr := s.loanHealthMilli(ctx, loan)
		if healthErr != nil {
			s.logError(ctx, "skipping loan with unavailable health", map[string]any{
				"loan_id": loan.ID,
				"error":   healthErr.Error(),
			})
			continue
		}
		if s.liquidatable(loan, healthMilli) {
			eligible = append(eligible, loan)
		}
	}
	return eligible, nil
}

// MarkOverdueLoansDefaulted moves active loans past their end time with an
// outstanding balance into the defaulted state. Called from the sweep loop.
func (s *Service) MarkOverdueLoansDefaulted(ctx context.Context, now time.Time) (defaulted []Loan, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		fields["defaulted"] = len(defaulted)
		s.observeOperation(ctx, startedAt, "mark_overdue_loans", err, fields)
	}()

	if s == nil || s.loanStore == nil {
		err = s.mapError(fmt.Errorf("core: loan store is not configured"))
		return nil, err
	}
	active, listErr := s.loanStore.ListActive(ctx)
	if listErr != nil {
		err = s.mapError(listErr)
		return nil, err
	}
	for _, loan := range active {
		if !now.After(loan.EndTime) {
			continue
		}
		totalOwed := s.resolveTotalOwed(ctx, loan)
		if loan.AmountRepaid.Cmp(totalOwed) >= 0 {
			continue
		}
		if transitionErr := loan.TransitionTo(LoanStatusDefaulted, "loan matured with outstanding balance", now); transitionErr != nil {
			s.logError(ctx, "failed to default overdue loan", map[string]any{
				"loan_id": loan.ID,
				"error":   transitionErr.Error(),
			})
			continue
		}
		loan.UpdatedAt = now
		updated, updateErr := s.loanStore.Update(ctx, loan, loan.Version)
		if updateErr != nil {
			s.logError(ctx, "failed to persist defaulted loan", map[string]any{
				"loan_id": loan.ID,
				"error":   updateErr.Error(),
			})
			continue
		}
		defaulted = append(defaulted, updated)
	}
	return defaulted, nil
}

func (s *Service) resolveTotalOwed(ctx context.Context, loan Loan) Amount {
	if s != nil && s.ledger != nil {
		if owed, ok, err := s.ledger.TotalOwed(ctx, loan.ID); err == nil && ok {
			return owed
		} else if err != nil {
			s.logError(ctx, "falling back to local accrual", map[string]any{
				"loan_id": loan.ID,
				"error":   err.Error(),
			})
		}
	}
	return accruedTotalOwed(loan, s.now())
}

func (s *Service) loanHealthMilli(ctx context.Context, loan Loan) (int64, error) {
	totalOwed := s.resolveTotalOwed(ctx, loan)
	outstanding, err := totalOwed.Sub(loan.AmountRepaid)
	if err != nil || outstanding.IsZero() {
		return maxHealthMilli, nil
	}
	info, infoErr := s.ledger.GetAssetInfo(ctx, loan.Collateral)
	if infoErr != nil {
		return 0, infoErr
	}
	return RatioMilli(info.AppraisalValue, outstanding)
}

func (s *Service) liquidatable(loan Loan, healthMilli int64) bool {
	now := s.now()
	if now.After(loan.EndTime) {
		return true
	}
	return healthMilli < s.config.Lending.LiquidationThresholdMilli
}

const maxHealthMilli = int64(1) << 40

// accruedTotalOwed computes the linear interest accrual for a loan at the
// given instant. Interest accrues from start time and caps at the loan's
// full duration.
func accruedTotalOwed(loan Loan, now time.Time) Amount {
	if !now.After(loan.StartTime) {
		return loan.Principal
	}
	elapsed := now.Sub(loan.StartTime)
	if elapsed > loan.Duration {
		elapsed = loan.Duration
	}
	durationSec := int64(loan.Duration / time.Second)
	if durationSec <= 0 {
		return loan.Principal
	}
	elapsedSec := int64(elapsed / time.Second)
	interest, err := loan.Principal.ScaleRatio(loan.InterestRateBps*elapsedSec, 10000*durationSec)
	if err != nil {
		return loan.Principal
	}
	return loan.Principal.Add(interest)
}

func copyAnyMap(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]any, len(values))
	for key, value := range values {
		out[key] = value
	}
	return out
}
