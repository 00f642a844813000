package wallet

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type fakeClient struct {
	mu sync.Mutex

	chainID   int64
	gas       uint64
	gasPrice  *big.Int
	tipCap    *big.Int
	baseFee   *big.Int
	nonce     uint64
	sendErr   error
	receipts  []*types.Receipt
	receiptFn func(call int) (*types.Receipt, error)

	sent         []*types.Transaction
	receiptCalls int
	closed       bool
}

func (f *fakeClient) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(f.chainID), nil
}

func (f *fakeClient) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeClient) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return f.gas, nil
}

func (f *fakeClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	return f.gasPrice, nil
}

func (f *fakeClient) SuggestGasTipCap(context.Context) (*big.Int, error) {
	if f.tipCap == nil {
		return nil, errors.New("tip cap unsupported")
	}
	return f.tipCap, nil
}

func (f *fakeClient) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1), BaseFee: f.baseFee}, nil
}

func (f *fakeClient) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeClient) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	call := f.receiptCalls
	f.receiptCalls++
	f.mu.Unlock()
	if f.receiptFn != nil {
		return f.receiptFn(call)
	}
	return nil, ethereum.NotFound
}

func (f *fakeClient) Close() { f.closed = true }
