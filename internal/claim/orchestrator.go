package claim

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	clierr "github.com/ggonzalez94/distr-cli/internal/errors"
	"github.com/ggonzalez94/distr-cli/internal/fees"
	"github.com/ggonzalez94/distr-cli/internal/registry"
	"github.com/ggonzalez94/distr-cli/internal/wallet"
	"go.uber.org/zap"
)

// Sender signs and broadcasts a contract call.
type Sender interface {
	SendContractCall(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
}

// ReceiptWaiter blocks until a transaction is mined.
type ReceiptWaiter interface {
	WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Recorder persists claim history.
type Recorder interface {
	SaveClaim(record Record) error
}

// Orchestrator drives a claim through submit, pending and a terminal state.
// Attempts are independent; nothing is retried.
type Orchestrator struct {
	sender   Sender
	waiter   ReceiptWaiter
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

func NewOrchestrator(sender Sender, waiter ReceiptWaiter, recorder Recorder, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{sender: sender, waiter: waiter, recorder: recorder, logger: logger, now: time.Now}
}

// ClaimAll withdraws rewards from up to maxRetrieve delegations.
func (o *Orchestrator) ClaimAll(ctx context.Context, account wallet.Account, maxRetrieve uint32) (Outcome, Record, error) {
	record := o.newRecord(KindAll, account)
	record.MaxRetrieve = maxRetrieve
	return o.run(ctx, account, fees.ClaimAll{MaxRetrieve: maxRetrieve}, record)
}

// ClaimFromValidator withdraws rewards accrued with one validator.
func (o *Orchestrator) ClaimFromValidator(ctx context.Context, account wallet.Account, validator string) (Outcome, Record, error) {
	record := o.newRecord(KindValidator, account)
	record.Validator = validator
	return o.run(ctx, account, fees.ClaimValidator{ValidatorAddress: validator}, record)
}

func (o *Orchestrator) run(ctx context.Context, account wallet.Account, args fees.ClaimArgs, record Record) (Outcome, Record, error) {
	if account.Address == (common.Address{}) {
		return Outcome{}, record, clierr.New(clierr.CodeSubmission, "no wallet connected; run `distr wallet connect`")
	}
	data, err := args.Calldata(account.Address)
	if err != nil {
		return Outcome{}, record, err
	}
	if o.sender == nil {
		return Outcome{}, record, clierr.New(clierr.CodeSubmission, "wallet cannot sign transactions")
	}

	hash, err := o.sender.SendContractCall(ctx, registry.DistributionPrecompileAddress, data)
	if err == nil && hash == (common.Hash{}) {
		err = clierr.New(clierr.CodeSubmission, "wallet returned no transaction hash")
	}
	if err != nil {
		if _, ok := clierr.As(err); !ok {
			err = clierr.Wrap(clierr.CodeSubmission, "submit claim", err)
		}
		record.Status = StatusRejected
		record.Error = err.Error()
		o.save(&record)
		return Outcome{}, record, err
	}

	record.Status = StatusPending
	record.TxHash = hash.Hex()
	o.save(&record)
	o.logger.Info("claim submitted",
		zap.String("claim_id", record.ClaimID),
		zap.String("kind", string(record.Kind)),
		zap.String("tx_hash", record.TxHash),
	)

	receipt, err := o.waiter.WaitForReceipt(ctx, hash)
	if err != nil {
		outcome := Outcome{TxHash: record.TxHash, Code: CodeUnknown, RawLog: fmt.Sprintf("Transaction status unknown: %v", err)}
		record.Status = StatusUnknown
		record.Outcome = &outcome
		record.Error = err.Error()
		o.save(&record)
		if _, ok := clierr.As(err); !ok {
			err = clierr.Wrap(clierr.CodeConfirmation, "wait for claim receipt", err)
		}
		return outcome, record, err
	}

	outcome := Outcome{TxHash: record.TxHash, Code: CodeSuccess, RawLog: logSuccess}
	record.Status = StatusConfirmed
	if receipt.Status != types.ReceiptStatusSuccessful {
		outcome = Outcome{TxHash: record.TxHash, Code: CodeReverted, RawLog: logFailed}
		record.Status = StatusFailed
	}
	record.Outcome = &outcome
	o.save(&record)
	o.logger.Info("claim finished",
		zap.String("claim_id", record.ClaimID),
		zap.String("status", string(record.Status)),
		zap.Uint64("block", blockNumber(receipt)),
	)
	return outcome, record, nil
}

func (o *Orchestrator) newRecord(kind Kind, account wallet.Account) Record {
	now := o.now().UTC().Format(time.RFC3339)
	return Record{
		ClaimID:   NewClaimID(),
		Kind:      kind,
		ChainID:   account.Chain.ID,
		Account:   account.Address.Hex(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (o *Orchestrator) save(record *Record) {
	record.touch(o.now())
	if o.recorder == nil {
		return
	}
	if err := o.recorder.SaveClaim(*record); err != nil {
		o.logger.Warn("failed to record claim", zap.String("claim_id", record.ClaimID), zap.Error(err))
	}
}

func blockNumber(receipt *types.Receipt) uint64 {
	if receipt == nil || receipt.BlockNumber == nil {
		return 0
	}
	return receipt.BlockNumber.Uint64()
}
