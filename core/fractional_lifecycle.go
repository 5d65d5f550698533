package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type FractionalizeAssetRequest struct {
	Source            TokenRef
	Owner             string
	FractionalSupply  Amount
	ReservePrice      Amount
	CustodianEndpoint string
	Metadata          map[string]any
}

func (r FractionalizeAssetRequest) Validate() error {
	if err := r.Source.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.Owner) == "" {
		return fmt.Errorf("core: asset owner is required")
	}
	if r.FractionalSupply.IsZero() {
		return fmt.Errorf("core: fractional supply must be positive")
	}
	if r.ReservePrice.IsZero() {
		return fmt.Errorf("core: reserve price must be positive")
	}
	if strings.TrimSpace(r.CustodianEndpoint) == "" {
		return fmt.Errorf("core: custodian endpoint is required")
	}
	return nil
}

type FractionalizeAssetResult struct {
	Asset   *FractionalizedAsset
	Receipt SubmissionReceipt
}

type RequestVerificationRequest struct {
	AssetID string
	Type    RequestType
}

type RequestVerificationResult struct {
	Request ReserveVerificationRequest
	Receipt SubmissionReceipt
	Reused  bool
}

type RedeemFractionsRequest struct {
	FractionalContract string
	Holder             string
	Amount             Amount
}

type RedeemFractionsResult struct {
	Asset   FractionalizedAsset
	Receipt SubmissionReceipt
}

// FractionalizeAsset locks a source token into the vault and issues
// fractional supply against it. Ownership and vault approval are read from
// the ledger before submitting.
func (s *Service) FractionalizeAsset(ctx context.Context, req FractionalizeAssetRequest) (result FractionalizeAssetResult, err error) {
	startedAt := time.Now().UTC()
	assetID := DeriveAssetID(req.Source)
	fields := map[string]any{
		"asset_id": assetID,
		"source":   req.Source.String(),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "fractionalize_asset", err, fields)
		s.recordActivity(ctx, "asset.fractionalize", assetID, err, fields)
	}()

	if s == nil || s.ledger == nil {
		err = s.mapError(fmt.Errorf("core: ledger gateway is not configured"))
		return FractionalizeAssetResult{}, err
	}
	if err = req.Validate(); err != nil {
		err = s.mapError(err)
		return FractionalizeAssetResult{}, err
	}

	handle, lockErr := acquireEntityLock(ctx, s.entityLocker, "asset:"+assetID, defaultEntityLockTTL)
	if lockErr != nil {
		err = s.mapError(lockErr)
		return FractionalizeAssetResult{}, err
	}
	defer func() { _ = handle.Unlock(ctx) }()

	owner, ownerErr := s.ledger.GetOwner(ctx, req.Source)
	if ownerErr != nil {
		err = s.mapError(ownerErr)
		return FractionalizeAssetResult{}, err
	}
	if !strings.EqualFold(strings.TrimSpace(owner), strings.TrimSpace(req.Owner)) {
		err = s.mapError(fmt.Errorf("core: %s does not own token %s", req.Owner, req.Source))
		return FractionalizeAssetResult{}, err
	}
	approved, approveErr := s.ledger.IsApprovedForFractionalization(ctx, req.Source)
	if approveErr != nil {
		err = s.mapError(approveErr)
		return FractionalizeAssetResult{}, err
	}
	if !approved {
		err = s.mapError(fmt.Errorf("core: token %s is not approved for the fractionalization vault", req.Source))
		return FractionalizeAssetResult{}, err
	}

	receipt, submitErr := s.ledger.SubmitFractionalize(ctx, FractionalizeInput{
		Source:            req.Source,
		Owner:             req.Owner,
		FractionalSupply:  req.FractionalSupply,
		ReservePrice:      req.ReservePrice,
		CustodianEndpoint: req.CustodianEndpoint,
		Metadata:          copyAnyMap(req.Metadata),
	})
	if submitErr != nil {
		err = s.mapError(submitErr)
		return FractionalizeAssetResult{}, err
	}
	result = FractionalizeAssetResult{Receipt: receipt}
	if !receipt.Confirmed() {
		return result, nil
	}

	now := s.now()
	asset := FractionalizedAsset{
		ID:                assetID,
		Source:            req.Source,
		OriginalOwner:     strings.ToLower(strings.TrimSpace(req.Owner)),
		FractionalSupply:  req.FractionalSupply,
		CirculatingSupply: req.FractionalSupply,
		ReservePrice:      req.ReservePrice,
		FractionalContract: strings.ToLower(strings.TrimSpace(
			fmt.Sprint(receipt.Result["fractional_contract"]))),
		CustodianEndpoint: req.CustodianEndpoint,
		Status:            AssetStatusActive,
		LastReserveCheck:  now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if asset.FractionalContract == "<nil>" {
		asset.FractionalContract = ""
	}

	stored, createErr := s.assetStore.Create(ctx, asset)
	if createErr != nil {
		err = s.mapError(createErr)
		return FractionalizeAssetResult{}, err
	}
	if reserveErr := s.reserveStore.Upsert(ctx, ReserveData{
		AssetID:   stored.ID,
		UpdatedAt: now,
	}); reserveErr != nil {
		err = s.mapError(reserveErr)
		return FractionalizeAssetResult{}, err
	}
	result.Asset = &stored
	return result, nil
}

// RequestReserveVerification issues an async custodian check for the asset.
// A pending request of the same type is reused instead of dispatching a
// duplicate; the asset moves under review while the check is outstanding.
func (s *Service) RequestReserveVerification(ctx context.Context, req RequestVerificationRequest) (result RequestVerificationResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"asset_id":     req.AssetID,
		"request_type": string(req.Type),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "request_verification", err, fields)
		s.recordActivity(ctx, "asset.request_verification", req.AssetID, err, fields)
	}()

	if s == nil || s.ledger == nil {
		err = s.mapError(fmt.Errorf("core: ledger gateway is not configured"))
		return RequestVerificationResult{}, err
	}
	assetID := strings.TrimSpace(req.AssetID)
	if assetID == "" {
		err = s.mapError(fmt.Errorf("core: asset id is required"))
		return RequestVerificationResult{}, err
	}
	if err = req.Type.Validate(); err != nil {
		err = s.mapError(err)
		return RequestVerificationResult{}, err
	}

	handle, lockErr := acquireEntityLock(ctx, s.entityLocker, "asset:"+assetID, defaultEntityLockTTL)
	if lockErr != nil {
		err = s.mapError(lockErr)
		return RequestVerificationResult{}, err
	}
	defer func() { _ = handle.Unlock(ctx) }()

	asset, getErr := s.assetStore.Get(ctx, assetID)
	if getErr != nil {
		err = s.mapError(getErr)
		return RequestVerificationResult{}, err
	}
	if asset.Retired {
		err = s.mapError(errAssetStateConflict(asset.ID, "is retired"))
		return RequestVerificationResult{}, err
	}

	if pending, found, findErr := s.requestStore.FindPending(ctx, assetID, req.Type); findErr != nil {
		err = s.mapError(findErr)
		return RequestVerificationResult{}, err
	} else if found {
		fields["request_id"] = pending.RequestID
		result = RequestVerificationResult{Request: pending, Reused: true}
		// A pending request normally implies the asset is already under
		// review, but a failure between registering the request and the
		// status update can leave it active. Re-apply the transition here.
		if asset.Status == AssetStatusActive {
			now := s.now()
			if transitionErr := asset.TransitionTo(AssetStatusUnderReview, now); transitionErr != nil {
				err = s.mapError(transitionErr)
				return RequestVerificationResult{}, err
			}
			if _, updateErr := s.assetStore.Update(ctx, asset, asset.Version); updateErr != nil {
				err = s.mapError(updateErr)
				return RequestVerificationResult{}, err
			}
		}
		return result, nil
	}

	receipt, submitErr := s.ledger.SubmitVerificationRequest(ctx, assetID, req.Type)
	if submitErr != nil {
		err = s.mapError(submitErr)
		return RequestVerificationResult{}, err
	}
	result = RequestVerificationResult{Receipt: receipt}
	if !receipt.Confirmed() {
		return result, nil
	}

	requestID := strings.TrimSpace(fmt.Sprint(receipt.Result["request_id"]))
	if requestID == "" || requestID == "<nil>" {
		requestID = uuid.NewString()
	}
	fields["request_id"] = requestID

	registered, _, registerErr := s.correlator.Register(ctx, assetID, req.Type, requestID, s.config.Verification.RequestTimeout)
	if registerErr != nil {
		err = s.mapError(registerErr)
		return RequestVerificationResult{}, err
	}
	result.Request = registered

	if asset.Status == AssetStatusActive {
		now := s.now()
		if transitionErr := asset.TransitionTo(AssetStatusUnderReview, now); transitionErr != nil {
			err = s.mapError(transitionErr)
			return RequestVerificationResult{}, err
		}
		if _, updateErr := s.assetStore.Update(ctx, asset, asset.Version); updateErr != nil {
			err = s.mapError(updateErr)
			return RequestVerificationResult{}, err
		}
	}
	return result, nil
}

// HandleVerificationCallback applies an async custodian outcome. Unknown
// request ids are dropped; repeated callbacks for a resolved request are
// idempotent no-ops.
func (s *Service) HandleVerificationCallback(ctx context.Context, callback VerificationCallback) (result FulfillResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"request_id": callback.RequestID,
		"asset_id":   callback.AssetID,
		"outcome":    string(callback.Outcome),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "verification_callback", err, fields)
	}()

	if s == nil {
		return FulfillResult{}, fmt.Errorf("core: service is not configured")
	}

	result, err = s.correlator.Resolve(ctx, callback)
	if err != nil {
		err = s.mapError(err)
		return FulfillResult{}, err
	}
	if !result.Matched || result.AlreadyDone {
		return result, nil
	}

	timestamp := callback.Timestamp
	if timestamp.IsZero() {
		timestamp = s.now()
	}
	if callback.Outcome == OutcomeFulfilled {
		err = s.applyVerificationSuccess(ctx, result.Request, timestamp)
	} else {
		err = s.applyVerificationFailure(ctx, result.Request, callback.Reason, timestamp)
	}
	if err != nil {
		err = s.mapError(err)
		return FulfillResult{}, err
	}
	s.recordActivity(ctx, "asset.verification_resolved", result.Request.AssetID, nil, fields)
	return result, nil
}

func (s *Service) applyVerificationSuccess(ctx context.Context, req ReserveVerificationRequest, at time.Time) error {
	handle, lockErr := acquireEntityLock(ctx, s.entityLocker, "asset:"+req.AssetID, defaultEntityLockTTL)
	if lockErr != nil {
		return lockErr
	}
	defer func() { _ = handle.Unlock(ctx) }()

	reserve, err := s.reserveStore.Get(ctx, req.AssetID)
	if err != nil {
		return err
	}
	reserve.AssetID = req.AssetID
	reserve.IsVerified = true
	reserve.ConsecutiveFailures = 0
	reserve.LastVerification = at
	reserve.LastRequestID = req.RequestID
	reserve.UpdatedAt = at
	if err := s.reserveStore.Upsert(ctx, reserve); err != nil {
		return err
	}

	asset, err := s.assetStore.Get(ctx, req.AssetID)
	if err != nil {
		return err
	}
	asset.LastReserveCheck = at
	asset.UpdatedAt = at
	if asset.Status == AssetStatusUnderReview {
		if err := asset.TransitionTo(AssetStatusActive, at); err != nil {
			return err
		}
	}
	_, err = s.assetStore.Update(ctx, asset, asset.Version)
	return err
}

func (s *Service) applyVerificationFailure(ctx context.Context, req ReserveVerificationRequest, reason string, at time.Time) error {
	handle, lockErr := acquireEntityLock(ctx, s.entityLocker, "asset:"+req.AssetID, defaultEntityLockTTL)
	if lockErr != nil {
		return lockErr
	}
	defer func() { _ = handle.Unlock(ctx) }()

	reserve, err := s.reserveStore.Get(ctx, req.AssetID)
	if err != nil {
		return err
	}
	reserve.AssetID = req.AssetID
	reserve.IsVerified = false
	reserve.ConsecutiveFailures++
	reserve.LastRequestID = req.RequestID
	reserve.UpdatedAt = at
	if err := s.reserveStore.Upsert(ctx, reserve); err != nil {
		return err
	}

	asset, err := s.assetStore.Get(ctx, req.AssetID)
	if err != nil {
		return err
	}
	asset.LastReserveCheck = at
	asset.UpdatedAt = at

	frozen := reserve.ConsecutiveFailures >= s.config.Verification.FailureThreshold
	switch {
	case frozen && asset.Status == AssetStatusActive:
		if err := asset.TransitionTo(AssetStatusUnderReview, at); err != nil {
			return err
		}
		if err := asset.TransitionTo(AssetStatusFrozen, at); err != nil {
			return err
		}
	case frozen && asset.Status == AssetStatusUnderReview:
		if err := asset.TransitionTo(AssetStatusFrozen, at); err != nil {
			return err
		}
	case asset.Status == AssetStatusUnderReview:
		if err := asset.TransitionTo(AssetStatusActive, at); err != nil {
			return err
		}
	}
	if _, err := s.assetStore.Update(ctx, asset, asset.Version); err != nil {
		return err
	}
	if frozen {
		s.logError(ctx, "asset frozen after repeated verification failures", map[string]any{
			"asset_id":             asset.ID,
			"consecutive_failures": reserve.ConsecutiveFailures,
			"reason":               reason,
		})
	}
	return nil
}

// RedeemFractions burns fractional supply against the vault. Frozen and
// liquidating assets reject redemption; draining the supply retires the
// asset record.
func (s *Service) RedeemFractions(ctx context.Context, req RedeemFractionsRequest) (result RedeemFractionsResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"fractional_contract": req.FractionalContract,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "redeem_fractions", err, fields)
		s.recordActivity(ctx, "asset.redeem", req.FractionalContract, err, fields)
	}()

	if s == nil || s.ledger == nil {
		err = s.mapError(fmt.Errorf("core: ledger gateway is not configured"))
		return RedeemFractionsResult{}, err
	}
	if strings.TrimSpace(req.FractionalContract) == "" {
		err = s.mapError(fmt.Errorf("core: fractional contract is required"))
		return RedeemFractionsResult{}, err
	}
	if req.Amount.IsZero() {
		err = s.mapError(fmt.Errorf("core: redemption amount must be positive"))
		return RedeemFractionsResult{}, err
	}

	asset, getErr := s.assetStore.GetByFractionalContract(ctx, req.FractionalContract)
	if getErr != nil {
		err = s.mapError(getErr)
		return RedeemFractionsResult{}, err
	}
	fields["asset_id"] = asset.ID

	handle, lockErr := acquireEntityLock(ctx, s.entityLocker, "asset:"+asset.ID, defaultEntityLockTTL)
	if lockErr != nil {
		err = s.mapError(lockErr)
		return RedeemFractionsResult{}, err
	}
	defer func() { _ = handle.Unlock(ctx) }()

	asset, getErr = s.assetStore.Get(ctx, asset.ID)
	if getErr != nil {
		err = s.mapError(getErr)
		return RedeemFractionsResult{}, err
	}
	if !asset.Tradable() {
		err = s.mapError(errAssetStateConflict(asset.ID,
			fmt.Sprintf("is %s and cannot be redeemed", asset.Status)))
		return RedeemFractionsResult{}, err
	}
	if req.Amount.Cmp(asset.CirculatingSupply) > 0 {
		err = s.mapError(fmt.Errorf("core: redemption %s exceeds circulating supply %s for asset %q",
			req.Amount, asset.CirculatingSupply, asset.ID))
		return RedeemFractionsResult{}, err
	}

	receipt, submitErr := s.ledger.SubmitRedeem(ctx, req.FractionalContract, req.Amount)
	if submitErr != nil {
		err = s.mapError(submitErr)
		return RedeemFractionsResult{}, err
	}
	result = RedeemFractionsResult{Asset: asset, Receipt: receipt}
	if !receipt.Confirmed() {
		return result, nil
	}

	now := s.now()
	remaining, subErr := asset.CirculatingSupply.Sub(req.Amount)
	if subErr != nil {
		err = s.mapError(subErr)
		return RedeemFractionsResult{}, err
	}
	asset.CirculatingSupply = remaining
	asset.UpdatedAt = now
	if remaining.IsZero() {
		asset.Retired = true
	}
	updated, updateErr := s.assetStore.Update(ctx, asset, asset.Version)
	if updateErr != nil {
		err = s.mapError(updateErr)
		return RedeemFractionsResult{}, err
	}
	result.Asset = updated
	return result, nil
}

// Asset returns the local fractionalized asset record.
func (s *Service) Asset(ctx context.Context, assetID string) (FractionalizedAsset, error) {
	if s == nil || s.assetStore == nil {
		return FractionalizedAsset{}, s.mapError(fmt.Errorf("core: asset store is not configured"))
	}
	asset, err := s.assetStore.Get(ctx, assetID)
	if err != nil {
		return FractionalizedAsset{}, s.mapError(err)
	}
	return asset, nil
}

// AssetByFractionalContract resolves an asset from its fractional token
// contract address.
func (s *Service) AssetByFractionalContract(ctx context.Context, contract string) (FractionalizedAsset, error) {
	if s == nil || s.assetStore == nil {
		return FractionalizedAsset{}, s.mapError(fmt.Errorf("core: asset store is not configured"))
	}
	asset, err := s.assetStore.GetByFractionalContract(ctx, contract)
	if err != nil {
		return FractionalizedAsset{}, s.mapError(err)
	}
	return asset, nil
}

// AssetsByOwner lists the assets fractionalized by an owner.
func (s *Service) AssetsByOwner(ctx context.Context, owner string) ([]FractionalizedAsset, error) {
	if s == nil || s.assetStore == nil {
		return nil, s.mapError(fmt.Errorf("core: asset store is not configured"))
	}
	if strings.TrimSpace(owner) == "" {
		return nil, s.mapError(fmt.Errorf("core: owner is required"))
	}
	assets, err := s.assetStore.ListByOwner(ctx, owner)
	if err != nil {
		return nil, s.mapError(err)
	}
	return assets, nil
}

// AssetReserveData returns the verification state tracked for an asset.
func (s *Service) AssetReserveData(ctx context.Context, assetID string) (ReserveData, error) {
	if s == nil || s.reserveStore == nil {
		return ReserveData{}, s.mapError(fmt.Errorf("core: reserve data store is not configured"))
	}
	if strings.TrimSpace(assetID) == "" {
		return ReserveData{}, s.mapError(fmt.Errorf("core: asset id is required"))
	}
	data, err := s.reserveStore.Get(ctx, assetID)
	if err != nil {
		return ReserveData{}, s.mapError(err)
	}
	return data, nil
}

// VerificationHistory lists every verification request recorded for an
// asset, resolved and pending alike.
func (s *Service) VerificationHistory(ctx context.Context, assetID string) ([]ReserveVerificationRequest, error) {
	if s == nil || s.requestStore == nil {
		return nil, s.mapError(fmt.Errorf("core: verification request store is not configured"))
	}
	if strings.TrimSpace(assetID) == "" {
		return nil, s.mapError(fmt.Errorf("core: asset id is required"))
	}
	history, err := s.requestStore.ListByAsset(ctx, assetID)
	if err != nil {
		return nil, s.mapError(err)
	}
	return history, nil
}

// RegisteredAssetInfo reads the asset registry entry for a token straight
// from the ledger.
func (s *Service) RegisteredAssetInfo(ctx context.Context, ref TokenRef) (AssetInfo, error) {
	if s == nil || s.ledger == nil {
		return AssetInfo{}, s.mapError(fmt.Errorf("core: ledger gateway is not configured"))
	}
	if err := ref.Validate(); err != nil {
		return AssetInfo{}, s.mapError(err)
	}
	info, err := s.ledger.GetAssetInfo(ctx, ref)
	if err != nil {
		return AssetInfo{}, s.mapError(err)
	}
	return info, nil
}

// SweepExpiredVerifications expires overdue pending requests and applies
// failure semantics to each affected asset. Called from the sweep loop.
func (s *Service) SweepExpiredVerifications(ctx context.Context, now time.Time) (swept []ReserveVerificationRequest, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		fields["expired"] = len(swept)
		s.observeOperation(ctx, startedAt, "sweep_verifications", err, fields)
	}()

	if s == nil || s.correlator == nil {
		err = s.mapError(fmt.Errorf("core: correlator is not configured"))
		return nil, err
	}
	swept, err = s.correlator.SweepExpired(ctx, now)
	if err != nil {
		err = s.mapError(err)
		return nil, err
	}
	for _, req := range swept {
		if applyErr := s.applyVerificationFailure(ctx, req, "verification deadline exceeded", now); applyErr != nil {
			s.logError(ctx, "failed to apply timeout failure", map[string]any{
				"request_id": req.RequestID,
				"asset_id":   req.AssetID,
				"error":      applyErr.Error(),
			})
		}
	}
	return swept, nil
}
