package fees

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/distr-cli/internal/chainclient"
	clierr "github.com/ggonzalez94/distr-cli/internal/errors"
	"github.com/ggonzalez94/distr-cli/internal/registry"
	"github.com/ggonzalez94/distr-cli/internal/wallet"
	"go.uber.org/zap"
)

// ClaimArgs selects which claim call is estimated or submitted. It is
// implemented by ClaimAll and ClaimValidator only.
type ClaimArgs interface {
	Method() string
	Calldata(delegator common.Address) ([]byte, error)
}

// ClaimAll withdraws rewards from up to MaxRetrieve delegations.
type ClaimAll struct {
	MaxRetrieve uint32
}

func (ClaimAll) Method() string { return registry.MethodClaimRewards }

func (a ClaimAll) Calldata(delegator common.Address) ([]byte, error) {
	if a.MaxRetrieve == 0 {
		return nil, clierr.New(clierr.CodeUsage, "max retrieve must be greater than zero")
	}
	data, err := registry.PackClaimRewards(delegator, a.MaxRetrieve)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "encode claim", err)
	}
	return data, nil
}

// ClaimValidator withdraws rewards from a single validator.
type ClaimValidator struct {
	ValidatorAddress string
}

func (ClaimValidator) Method() string { return registry.MethodWithdrawDelegatorRewards }

func (a ClaimValidator) Calldata(delegator common.Address) ([]byte, error) {
	validator := strings.TrimSpace(a.ValidatorAddress)
	if validator == "" {
		return nil, clierr.New(clierr.CodeUsage, "validator address is required")
	}
	data, err := registry.PackWithdrawDelegatorRewards(delegator, validator)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "encode claim", err)
	}
	return data, nil
}

// Estimate is a prospective claim cost in wei. Fee is always GasUsed * GasPrice.
type Estimate struct {
	Fee      string `json:"fee"`
	GasPrice string `json:"gas_price"`
	GasUsed  string `json:"gas_used"`
}

type Estimator struct {
	client chainclient.Client
	logger *zap.Logger
}

func NewEstimator(client chainclient.Client, logger *zap.Logger) *Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Estimator{client: client, logger: logger}
}

// EstimateClaimFee estimates the gas a claim would use from the account and
// prices it at the current network gas price. Nothing is submitted.
func (e *Estimator) EstimateClaimFee(ctx context.Context, account wallet.Account, args ClaimArgs) (Estimate, error) {
	if account.Address == (common.Address{}) {
		return Estimate{}, clierr.New(clierr.CodeQuery, "no wallet connected; run `distr wallet connect`")
	}
	if args == nil {
		return Estimate{}, clierr.New(clierr.CodeUsage, "missing claim arguments")
	}
	data, err := args.Calldata(account.Address)
	if err != nil {
		return Estimate{}, err
	}

	to := registry.DistributionPrecompileAddress
	gasUsed, err := e.client.EstimateGas(ctx, ethereum.CallMsg{From: account.Address, To: &to, Data: data})
	if err != nil {
		return Estimate{}, clierr.Wrap(clierr.CodeEstimation, "estimate gas", err)
	}
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return Estimate{}, clierr.Wrap(clierr.CodeEstimation, "fetch gas price", err)
	}
	if gasPrice == nil {
		return Estimate{}, clierr.New(clierr.CodeEstimation, "rpc returned no gas price")
	}

	gas := new(big.Int).SetUint64(gasUsed)
	fee := new(big.Int).Mul(gas, gasPrice)
	e.logger.Debug("estimated claim fee",
		zap.String("method", args.Method()),
		zap.Uint64("gas_used", gasUsed),
		zap.String("gas_price", gasPrice.String()),
	)
	return Estimate{
		Fee:      fee.String(),
		GasPrice: gasPrice.String(),
		GasUsed:  gas.String(),
	}, nil
}
