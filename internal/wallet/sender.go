package wallet

import (
	"context"
	"errors"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ggonzalez94/distr-cli/internal/chainclient"
	clierr "github.com/ggonzalez94/distr-cli/internal/errors"
	"github.com/ggonzalez94/distr-cli/internal/units"
	"go.uber.org/zap"
)

type SendOptions struct {
	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
}

func DefaultSendOptions() SendOptions {
	return SendOptions{GasMultiplier: 1.2}
}

// TxSender signs contract calls with the wallet signer and broadcasts them.
type TxSender struct {
	client chainclient.Client
	signer Signer
	opts   SendOptions
	logger *zap.Logger
}

func NewTxSender(client chainclient.Client, signer Signer, opts SendOptions, logger *zap.Logger) *TxSender {
	if opts.GasMultiplier <= 1 {
		opts.GasMultiplier = 1.2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TxSender{client: client, signer: signer, opts: opts, logger: logger}
}

// SendContractCall signs and broadcasts a zero-value call to target and
// returns the transaction hash.
func (s *TxSender) SendContractCall(ctx context.Context, target common.Address, data []byte) (common.Hash, error) {
	if s.signer == nil {
		return common.Hash{}, clierr.New(clierr.CodeSubmission, "missing signer")
	}
	from := s.signer.Address()
	chainID, err := s.client.ChainID(ctx)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeSubmission, "read chain id", err)
	}
	msg := ethereum.CallMsg{From: from, To: &target, Value: big.NewInt(0), Data: data}
	gasLimit, err := s.client.EstimateGas(ctx, msg)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeSubmission, "estimate gas", err)
	}
	gasLimit = applyGasMultiplier(gasLimit, s.opts.GasMultiplier)

	nonce, err := s.client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeSubmission, "fetch nonce", err)
	}
	tx, err := s.buildTx(ctx, chainID, nonce, gasLimit, target, data)
	if err != nil {
		return common.Hash{}, err
	}
	signed, err := s.signer.SignTx(chainID, tx)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeSubmission, "sign transaction", err)
	}
	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeSubmission, "broadcast transaction", err)
	}
	s.logger.Debug("transaction broadcast",
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas_limit", gasLimit),
	)
	return signed.Hash(), nil
}

// applyGasMultiplier scales gas in thousandths so 1.2 is exactly 120%.
func applyGasMultiplier(gas uint64, multiplier float64) uint64 {
	scaled := uint64(math.Round(multiplier * 1000))
	return gas * scaled / 1000
}

func (s *TxSender) buildTx(ctx context.Context, chainID *big.Int, nonce, gasLimit uint64, target common.Address, data []byte) (*types.Transaction, error) {
	header, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSubmission, "fetch latest header", err)
	}
	if header.BaseFee == nil {
		gasPrice, err := s.client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeSubmission, "fetch gas price", err)
		}
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gasLimit,
			To:       &target,
			Value:    big.NewInt(0),
			Data:     data,
		}), nil
	}
	tipCap, err := s.resolveTipCap(ctx)
	if err != nil {
		return nil, err
	}
	feeCap, err := resolveFeeCap(header.BaseFee, tipCap, s.opts.MaxFeeGwei)
	if err != nil {
		return nil, err
	}
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &target,
		Value:     big.NewInt(0),
		Data:      data,
	}), nil
}

func (s *TxSender) resolveTipCap(ctx context.Context) (*big.Int, error) {
	if strings.TrimSpace(s.opts.MaxPriorityFeeGwei) != "" {
		v, err := units.ParseGwei(s.opts.MaxPriorityFeeGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse --max-priority-fee-gwei", err)
		}
		return v, nil
	}
	tipCap, err := s.client.SuggestGasTipCap(ctx)
	if err != nil {
		return big.NewInt(2_000_000_000), nil // 2 gwei fallback
	}
	return tipCap, nil
}

func resolveFeeCap(baseFee, tipCap *big.Int, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := units.ParseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse --max-fee-gwei", err)
		}
		if v.Cmp(tipCap) < 0 {
			return nil, clierr.New(clierr.CodeUsage, "--max-fee-gwei must be >= --max-priority-fee-gwei")
		}
		return v, nil
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)
	return feeCap, nil
}

// ReceiptWaiter polls for a transaction receipt until it is mined or the
// timeout elapses.
type ReceiptWaiter struct {
	client       chainclient.Client
	pollInterval time.Duration
	timeout      time.Duration
}

func NewReceiptWaiter(client chainclient.Client, pollInterval, timeout time.Duration) *ReceiptWaiter {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &ReceiptWaiter{client: client, pollInterval: pollInterval, timeout: timeout}
}

func (w *ReceiptWaiter) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	var receipt *types.Receipt
	err := retry.Do(func() error {
		r, err := w.client.TransactionReceipt(waitCtx, hash)
		if err != nil {
			return err
		}
		if r == nil {
			return ethereum.NotFound
		}
		receipt = r
		return nil
	},
		retry.Context(waitCtx),
		retry.Attempts(0),
		retry.Delay(w.pollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, ethereum.NotFound) }),
	)
	if receipt != nil {
		return receipt, nil
	}
	if waitCtx.Err() != nil {
		return nil, clierr.Wrap(clierr.CodeConfirmation, "timed out waiting for receipt", waitCtx.Err())
	}
	if err == nil {
		err = ethereum.NotFound
	}
	return nil, clierr.Wrap(clierr.CodeConfirmation, "fetch transaction receipt", err)
}
