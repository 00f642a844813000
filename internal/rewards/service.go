package rewards

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/distr-cli/internal/chainclient"
	clierr "github.com/ggonzalez94/distr-cli/internal/errors"
	"github.com/ggonzalez94/distr-cli/internal/registry"
	"github.com/ggonzalez94/distr-cli/internal/wallet"
	"go.uber.org/zap"
)

// Service reads delegation rewards from the distribution precompile.
type Service struct {
	client chainclient.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewService(client chainclient.Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, logger: logger, now: time.Now}
}

// GetAllRewards returns per-validator and total rewards for the account.
func (s *Service) GetAllRewards(ctx context.Context, account wallet.Account) (Result, error) {
	if err := requireAccount(account); err != nil {
		return Result{}, err
	}
	data, err := registry.PackDelegationTotalRewards(account.Address)
	if err != nil {
		return Result{}, clierr.Wrap(clierr.CodeQuery, "encode delegationTotalRewards", err)
	}
	raw, err := s.call(ctx, account.Address, data)
	if err != nil {
		return Result{}, err
	}
	var decoded totalRewardsOutput
	if err := unpack(&decoded, registry.MethodDelegationTotalRewards, raw); err != nil {
		return Result{}, err
	}

	all := &AllRewards{
		Rewards: make([]DelegatorReward, 0, len(decoded.Rewards)),
		Total:   toDecCoins(decoded.Total),
	}
	for _, r := range decoded.Rewards {
		all.Rewards = append(all.Rewards, DelegatorReward{
			ValidatorAddress: r.ValidatorAddress,
			Reward:           toDecCoins(r.Reward),
		})
	}
	s.logger.Debug("fetched total rewards",
		zap.String("delegator", account.Address.Hex()),
		zap.Int("validators", len(all.Rewards)),
	)
	return s.result(KindAllRewards, account, all, nil), nil
}

// GetValidatorRewards returns the account's rewards from a single validator.
// The validator address is passed through unvalidated.
func (s *Service) GetValidatorRewards(ctx context.Context, account wallet.Account, validator string) (Result, error) {
	if err := requireAccount(account); err != nil {
		return Result{}, err
	}
	validator = strings.TrimSpace(validator)
	if validator == "" {
		return Result{}, clierr.New(clierr.CodeQuery, "validator address is required")
	}
	data, err := registry.PackDelegationRewards(account.Address, validator)
	if err != nil {
		return Result{}, clierr.Wrap(clierr.CodeQuery, "encode delegationRewards", err)
	}
	raw, err := s.call(ctx, account.Address, data)
	if err != nil {
		return Result{}, err
	}
	var decoded validatorRewardsOutput
	if err := unpack(&decoded, registry.MethodDelegationRewards, raw); err != nil {
		return Result{}, err
	}
	s.logger.Debug("fetched validator rewards",
		zap.String("delegator", account.Address.Hex()),
		zap.String("validator", validator),
	)
	return s.result(KindValidatorRewards, account, nil, &ValidatorRewards{
		Validator: validator,
		Rewards:   toDecCoins(decoded.Rewards),
	}), nil
}

func (s *Service) call(ctx context.Context, from common.Address, data []byte) ([]byte, error) {
	to := registry.DistributionPrecompileAddress
	raw, err := s.client.CallContract(ctx, ethereum.CallMsg{From: from, To: &to, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeQuery, "call distribution precompile", err)
	}
	if len(raw) == 0 {
		return nil, clierr.New(clierr.CodeQuery, "distribution precompile returned no data")
	}
	return raw, nil
}

func (s *Service) result(kind Kind, account wallet.Account, all *AllRewards, validator *ValidatorRewards) Result {
	return Result{
		Kind:      kind,
		Delegator: account.Address.Hex(),
		ChainID:   account.Chain.ID,
		All:       all,
		Validator: validator,
		FetchedAt: s.now().UTC().Format(time.RFC3339),
	}
}

func unpack(dst any, method string, raw []byte) error {
	parsed := registry.DistributionABI()
	if err := parsed.UnpackIntoInterface(dst, method, raw); err != nil {
		return clierr.Wrap(clierr.CodeQuery, fmt.Sprintf("decode %s response", method), err)
	}
	return nil
}

func requireAccount(account wallet.Account) error {
	if account.Address == (common.Address{}) {
		return clierr.New(clierr.CodeQuery, "no wallet connected; run `distr wallet connect`")
	}
	return nil
}
