package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/bagelhq/rwa-engine/core"
)

type MutatingService interface {
	OriginateLoan(ctx context.Context, req core.OriginateLoanRequest) (core.OriginateLoanResult, error)
	RepayLoan(ctx context.Context, req core.RepayLoanRequest) (core.RepayLoanResult, error)
	LiquidateLoan(ctx context.Context, req core.LiquidateLoanRequest) (core.LiquidateLoanResult, error)
	FractionalizeAsset(ctx context.Context, req core.FractionalizeAssetRequest) (core.FractionalizeAssetResult, error)
	RequestReserveVerification(ctx context.Context, req core.RequestVerificationRequest) (core.RequestVerificationResult, error)
	HandleVerificationCallback(ctx context.Context, callback core.VerificationCallback) (core.FulfillResult, error)
	RedeemFractions(ctx context.Context, req core.RedeemFractionsRequest) (core.RedeemFractionsResult, error)
	RunSweepOnce(ctx context.Context) (core.SweepResult, error)
}

type OriginateLoanCommand struct {
	service MutatingService
}

func NewOriginateLoanCommand(service MutatingService) *OriginateLoanCommand {
	return &OriginateLoanCommand{service: service}
}

func (c *OriginateLoanCommand) Execute(ctx context.Context, msg OriginateLoanMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: loan service is required")
	}
	out, err := c.service.OriginateLoan(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RepayLoanCommand struct {
	service MutatingService
}

func NewRepayLoanCommand(service MutatingService) *RepayLoanCommand {
	return &RepayLoanCommand{service: service}
}

func (c *RepayLoanCommand) Execute(ctx context.Context, msg RepayLoanMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: loan service is required")
	}
	out, err := c.service.RepayLoan(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type LiquidateLoanCommand struct {
	service MutatingService
}

func NewLiquidateLoanCommand(service MutatingService) *LiquidateLoanCommand {
	return &LiquidateLoanCommand{service: service}
}

func (c *LiquidateLoanCommand) Execute(ctx context.Context, msg LiquidateLoanMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: loan service is required")
	}
	out, err := c.service.LiquidateLoan(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type FractionalizeAssetCommand struct {
	service MutatingService
}

func NewFractionalizeAssetCommand(service MutatingService) *FractionalizeAssetCommand {
	return &FractionalizeAssetCommand{service: service}
}

func (c *FractionalizeAssetCommand) Execute(ctx context.Context, msg FractionalizeAssetMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: asset service is required")
	}
	out, err := c.service.FractionalizeAsset(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RequestVerificationCommand struct {
	service MutatingService
}

func NewRequestVerificationCommand(service MutatingService) *RequestVerificationCommand {
	return &RequestVerificationCommand{service: service}
}

func (c *RequestVerificationCommand) Execute(ctx context.Context, msg RequestVerificationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: asset service is required")
	}
	out, err := c.service.RequestReserveVerification(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type VerificationCallbackCommand struct {
	service MutatingService
}

func NewVerificationCallbackCommand(service MutatingService) *VerificationCallbackCommand {
	return &VerificationCallbackCommand{service: service}
}

func (c *VerificationCallbackCommand) Execute(ctx context.Context, msg VerificationCallbackMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: callback service is required")
	}
	out, err := c.service.HandleVerificationCallback(ctx, msg.Callback)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RedeemFractionsCommand struct {
	service MutatingService
}

func NewRedeemFractionsCommand(service MutatingService) *RedeemFractionsCommand {
	return &RedeemFractionsCommand{service: service}
}

func (c *RedeemFractionsCommand) Execute(ctx context.Context, msg RedeemFractionsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: asset service is required")
	}
	out, err := c.service.RedeemFractions(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RunSweepCommand struct {
	service MutatingService
}

func NewRunSweepCommand(service MutatingService) *RunSweepCommand {
	return &RunSweepCommand{service: service}
}

func (c *RunSweepCommand) Execute(ctx context.Context, _ RunSweepMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sweep service is required")
	}
	out, err := c.service.RunSweepOnce(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
