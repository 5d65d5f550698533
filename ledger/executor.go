package ledger

import (
	"context"
	"fmt"

	"github.com/bagelhq/rwa-engine/core"
)

// TransactionExecutor decides what "submitting" a state-changing call means.
// Backend deployments sign and send; frontend deployments hand the unsigned
// call back so the end user's wallet can sign it.
type TransactionExecutor interface {
	Execute(ctx context.Context, caller Caller, contract, function string, args []any) (core.SubmissionReceipt, error)
}

// ExecuteNowExecutor submits through the caller's signer and waits for
// confirmation.
type ExecuteNowExecutor struct{}

func (ExecuteNowExecutor) Execute(ctx context.Context, caller Caller, contract, function string, args []any) (core.SubmissionReceipt, error) {
	if caller == nil {
		return core.SubmissionReceipt{}, fmt.Errorf("ledger: caller is not configured")
	}
	submission, err := caller.Submit(ctx, contract, function, args...)
	if err != nil {
		return core.SubmissionReceipt{}, err
	}
	return core.SubmissionReceipt{
		Kind:   core.ReceiptConfirmed,
		TxHash: submission.TxHash,
		Result: submission.Result,
	}, nil
}

// UnsignedCallExecutor never touches the caller; it packages the call for
// external signing.
type UnsignedCallExecutor struct{}

func (UnsignedCallExecutor) Execute(_ context.Context, _ Caller, contract, function string, args []any) (core.SubmissionReceipt, error) {
	return core.SubmissionReceipt{
		Kind: core.ReceiptUnsignedCall,
		Call: &core.UnsignedCall{
			Contract:     contract,
			FunctionName: function,
			Args:         append([]any(nil), args...),
		},
	}, nil
}

// ExecutorForMode picks the executor matching the configured usage mode.
func ExecutorForMode(mode core.UsageMode) TransactionExecutor {
	if mode == core.UsageModeFrontend {
		return UnsignedCallExecutor{}
	}
	return ExecuteNowExecutor{}
}
