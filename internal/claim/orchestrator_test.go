package claim

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ggonzalez94/distr-cli/internal/chains"
	clierr "github.com/ggonzalez94/distr-cli/internal/errors"
	"github.com/ggonzalez94/distr-cli/internal/registry"
	"github.com/ggonzalez94/distr-cli/internal/wallet"
)

type stubSender struct {
	hash  common.Hash
	err   error
	to    common.Address
	data  []byte
	calls int
}

func (s *stubSender) SendContractCall(_ context.Context, to common.Address, data []byte) (common.Hash, error) {
	s.calls++
	s.to = to
	s.data = data
	return s.hash, s.err
}

type stubWaiter struct {
	receipt *types.Receipt
	err     error
	calls   int
}

func (w *stubWaiter) WaitForReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	w.calls++
	return w.receipt, w.err
}

type memoryRecorder struct {
	saved []Record
}

func (m *memoryRecorder) SaveClaim(record Record) error {
	m.saved = append(m.saved, record)
	return nil
}

func (m *memoryRecorder) statuses() []Status {
	out := make([]Status, 0, len(m.saved))
	for _, r := range m.saved {
		out = append(out, r.Status)
	}
	return out
}

var (
	txHash  = common.HexToHash("0xfeed")
	account = wallet.Account{
		Address: common.HexToAddress("0x0000000000000000000000000000000000000abc"),
		Chain:   chains.Default(),
	}
)

func TestClaimAllConfirmed(t *testing.T) {
	sender := &stubSender{hash: txHash}
	waiter := &stubWaiter{receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(10)}}
	recorder := &memoryRecorder{}

	outcome, record, err := NewOrchestrator(sender, waiter, recorder, nil).ClaimAll(context.Background(), account, 4)
	if err != nil {
		t.Fatalf("ClaimAll failed: %v", err)
	}
	if outcome != (Outcome{TxHash: txHash.Hex(), Code: 0, RawLog: "Transaction successful"}) {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if !outcome.Succeeded() {
		t.Fatal("expected success")
	}
	if sender.to != registry.DistributionPrecompileAddress {
		t.Fatalf("unexpected target %s", sender.to.Hex())
	}
	want, _ := registry.PackClaimRewards(account.Address, 4)
	if common.Bytes2Hex(sender.data) != common.Bytes2Hex(want) {
		t.Fatal("unexpected claim calldata")
	}
	if record.Status != StatusConfirmed || record.MaxRetrieve != 4 || record.ChainID != 11235 {
		t.Fatalf("unexpected record %+v", record)
	}
	got := recorder.statuses()
	if len(got) != 2 || got[0] != StatusPending || got[1] != StatusConfirmed {
		t.Fatalf("unexpected recorded transitions %v", got)
	}
}

func TestClaimFromValidatorRevertedIsNotAnError(t *testing.T) {
	sender := &stubSender{hash: txHash}
	waiter := &stubWaiter{receipt: &types.Receipt{Status: types.ReceiptStatusFailed}}
	recorder := &memoryRecorder{}

	outcome, record, err := NewOrchestrator(sender, waiter, recorder, nil).ClaimFromValidator(context.Background(), account, "haqqvaloper1aaa")
	if err != nil {
		t.Fatalf("reverted claim must not return an error, got %v", err)
	}
	if outcome.Code == 0 || outcome.RawLog != "Transaction failed" || outcome.TxHash != txHash.Hex() {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if record.Status != StatusFailed || record.Validator != "haqqvaloper1aaa" {
		t.Fatalf("unexpected record %+v", record)
	}
	want, _ := registry.PackWithdrawDelegatorRewards(account.Address, "haqqvaloper1aaa")
	if common.Bytes2Hex(sender.data) != common.Bytes2Hex(want) {
		t.Fatal("unexpected withdraw calldata")
	}
}

func TestClaimReceiptLookupFailure(t *testing.T) {
	sender := &stubSender{hash: txHash}
	waiter := &stubWaiter{err: errors.New("connection reset")}
	recorder := &memoryRecorder{}

	outcome, record, err := NewOrchestrator(sender, waiter, recorder, nil).ClaimAll(context.Background(), account, 1)
	if !clierr.HasCode(err, clierr.CodeConfirmation) {
		t.Fatalf("expected confirmation error, got %v", err)
	}
	if outcome.Code != CodeUnknown || outcome.TxHash != txHash.Hex() {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if record.Status != StatusUnknown || record.Error == "" {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestClaimSubmissionFailures(t *testing.T) {
	tests := []struct {
		name    string
		account wallet.Account
		sender  *stubSender
		records int
	}{
		{"no transaction hash", account, &stubSender{}, 1},
		{"wallet rejects", account, &stubSender{err: errors.New("user rejected")}, 1},
		{"no account", wallet.Account{}, &stubSender{hash: txHash}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			waiter := &stubWaiter{}
			recorder := &memoryRecorder{}
			outcome, _, err := NewOrchestrator(tc.sender, waiter, recorder, nil).ClaimAll(context.Background(), tc.account, 1)
			if !clierr.HasCode(err, clierr.CodeSubmission) {
				t.Fatalf("expected submission error, got %v", err)
			}
			if outcome != (Outcome{}) {
				t.Fatalf("expected empty outcome, got %+v", outcome)
			}
			if waiter.calls != 0 {
				t.Fatal("must not wait for a receipt after a failed submit")
			}
			if len(recorder.saved) != tc.records {
				t.Fatalf("expected %d records, got %d", tc.records, len(recorder.saved))
			}
			for _, r := range recorder.saved {
				if r.Status != StatusRejected {
					t.Fatalf("unexpected status %s", r.Status)
				}
			}
		})
	}
}

func TestClaimValidatorRequiresAddress(t *testing.T) {
	sender := &stubSender{hash: txHash}
	_, _, err := NewOrchestrator(sender, &stubWaiter{}, nil, nil).ClaimFromValidator(context.Background(), account, "")
	if !clierr.HasCode(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if sender.calls != 0 {
		t.Fatal("must not submit without a validator")
	}
}
