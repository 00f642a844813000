package app

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ggonzalez94/distr-cli/internal/claim"
	"github.com/ggonzalez94/distr-cli/internal/config"
	clierr "github.com/ggonzalez94/distr-cli/internal/errors"
	"github.com/ggonzalez94/distr-cli/internal/fees"
	"github.com/ggonzalez94/distr-cli/internal/model"
	"github.com/ggonzalez94/distr-cli/internal/rewards"
	"github.com/ggonzalez94/distr-cli/internal/schema"
	"github.com/ggonzalez94/distr-cli/internal/units"
	"github.com/ggonzalez94/distr-cli/internal/wallet"
	"github.com/spf13/cobra"
)

// Fees are paid in the chain's native token, which uses 18 decimals.
const nativePrecision = 18

func (s *runtimeState) newRewardsCommand() *cobra.Command {
	root := &cobra.Command{Use: "rewards", Short: "Delegation reward query, fee estimation and claim commands"}
	root.AddCommand(s.newRewardsAllCommand())
	root.AddCommand(s.newRewardsValidatorCommand())
	return root
}

func (s *runtimeState) newRewardsAllCommand() *cobra.Command {
	root := &cobra.Command{Use: "all", Short: "Rewards across all validators"}

	queryCmd := &cobra.Command{
		Use:   "query",
		Short: "Fetch per-validator and total rewards of the connected account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.runQuery(cmd, func(ctx context.Context, svc *rewards.Service, account wallet.Account) (rewards.Result, error) {
				return svc.GetAllRewards(ctx, account)
			})
		},
	}

	var estimateMax uint32
	estimateCmd := &cobra.Command{
		Use:   "estimate-fee",
		Short: "Estimate the fee of claiming rewards from all validators",
		RunE: func(cmd *cobra.Command, _ []string) error {
			account, err := s.requireActionAccount()
			if err != nil {
				return err
			}
			maxRetrieve, view, err := s.resolveMaxRetrieve(account, estimateMax)
			if err != nil {
				return err
			}
			return s.runEstimate(cmd, account, fees.ClaimAll{MaxRetrieve: maxRetrieve}, view)
		},
	}
	estimateCmd.Flags().Uint32Var(&estimateMax, "max-retrieve", 0, "Maximum delegations to withdraw from (defaults to the validators in the last query)")

	var claimMax uint32
	var claimOpts claimFlags
	claimCmd := schema.MarkWrites(&cobra.Command{
		Use:   "claim",
		Short: "Claim rewards from all validators and wait for the receipt",
		RunE: func(cmd *cobra.Command, _ []string) error {
			account, err := s.requireActionAccount()
			if err != nil {
				return err
			}
			maxRetrieve, view, err := s.resolveMaxRetrieve(account, claimMax)
			if err != nil {
				return err
			}
			return s.runClaim(cmd, account, claimOpts, view, func(ctx context.Context, o *claim.Orchestrator) (claim.Outcome, claim.Record, error) {
				return o.ClaimAll(ctx, account, maxRetrieve)
			})
		},
	})
	claimCmd.Flags().Uint32Var(&claimMax, "max-retrieve", 0, "Maximum delegations to withdraw from (defaults to the validators in the last query)")
	claimOpts.register(claimCmd)

	root.AddCommand(queryCmd, estimateCmd, claimCmd)
	return root
}

func (s *runtimeState) newRewardsValidatorCommand() *cobra.Command {
	root := &cobra.Command{Use: "validator", Short: "Rewards from a single validator"}

	var queryValidator string
	queryCmd := &cobra.Command{
		Use:   "query",
		Short: "Fetch the connected account's rewards from one validator",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.runQuery(cmd, func(ctx context.Context, svc *rewards.Service, account wallet.Account) (rewards.Result, error) {
				return svc.GetValidatorRewards(ctx, account, queryValidator)
			})
		},
	}
	queryCmd.Flags().StringVar(&queryValidator, "validator", "", "Validator operator address")
	_ = queryCmd.MarkFlagRequired("validator")

	var estimateValidator string
	estimateCmd := &cobra.Command{
		Use:   "estimate-fee",
		Short: "Estimate the fee of withdrawing rewards from one validator",
		RunE: func(cmd *cobra.Command, _ []string) error {
			account, err := s.requireActionAccount()
			if err != nil {
				return err
			}
			validator, view, err := s.resolveValidator(account, estimateValidator)
			if err != nil {
				return err
			}
			return s.runEstimate(cmd, account, fees.ClaimValidator{ValidatorAddress: validator}, view)
		},
	}
	estimateCmd.Flags().StringVar(&estimateValidator, "validator", "", "Validator operator address (defaults to the last queried validator)")

	var claimValidator string
	var claimOpts claimFlags
	claimCmd := schema.MarkWrites(&cobra.Command{
		Use:   "claim",
		Short: "Withdraw rewards from one validator and wait for the receipt",
		RunE: func(cmd *cobra.Command, _ []string) error {
			account, err := s.requireActionAccount()
			if err != nil {
				return err
			}
			validator, view, err := s.resolveValidator(account, claimValidator)
			if err != nil {
				return err
			}
			return s.runClaim(cmd, account, claimOpts, view, func(ctx context.Context, o *claim.Orchestrator) (claim.Outcome, claim.Record, error) {
				return o.ClaimFromValidator(ctx, account, validator)
			})
		},
	})
	claimCmd.Flags().StringVar(&claimValidator, "validator", "", "Validator operator address (defaults to the last queried validator)")
	claimOpts.register(claimCmd)

	root.AddCommand(queryCmd, estimateCmd, claimCmd)
	return root
}

type queryFn func(ctx context.Context, svc *rewards.Service, account wallet.Account) (rewards.Result, error)

func (s *runtimeState) runQuery(cmd *cobra.Command, query queryFn) error {
	account, ok, err := s.currentAccount()
	if err != nil {
		return err
	}
	if !ok {
		return clierr.New(clierr.CodeQuery, "no wallet connected; run `distr wallet connect`")
	}
	ctx, cancel := s.commandContext(0)
	defer cancel()
	client, err := s.dialAccount(ctx, account, clierr.CodeQuery)
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := query(ctx, rewards.NewService(client, s.logger), account)
	if err != nil {
		return err
	}
	view, err := s.saveView(account, result)
	if err != nil {
		return err
	}
	return s.emitSuccess(trimRootPath(cmd.CommandPath()), result, nil, view)
}

func (s *runtimeState) runEstimate(cmd *cobra.Command, account wallet.Account, args fees.ClaimArgs, view model.ViewStatus) error {
	ctx, cancel := s.commandContext(0)
	defer cancel()
	client, err := s.dialAccount(ctx, account, clierr.CodeEstimation)
	if err != nil {
		return err
	}
	defer client.Close()

	est, err := fees.NewEstimator(client, s.logger).EstimateClaimFee(ctx, account, args)
	if err != nil {
		return err
	}
	fee, _ := new(big.Int).SetString(est.Fee, 10)
	return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.FeeEstimate{
		Method:     args.Method(),
		Fee:        est.Fee,
		GasPrice:   est.GasPrice,
		GasUsed:    est.GasUsed,
		FeeDisplay: units.FormatUnits(fee, nativePrecision),
		Symbol:     account.Chain.Symbol,
	}, nil, view)
}

type claimFn func(ctx context.Context, o *claim.Orchestrator) (claim.Outcome, claim.Record, error)

func (s *runtimeState) runClaim(cmd *cobra.Command, account wallet.Account, flags claimFlags, view model.ViewStatus, run claimFn) error {
	opts, poll, wait, err := flags.resolve(s.settings)
	if err != nil {
		return err
	}
	session, err := s.walletSession()
	if err != nil {
		return err
	}
	signer, err := session.Signer(account)
	if err != nil {
		return err
	}

	ctx, cancel := s.commandContext(wait)
	defer cancel()
	client, err := s.dialAccount(ctx, account, clierr.CodeSubmission)
	if err != nil {
		return err
	}
	defer client.Close()

	orchestrator := claim.NewOrchestrator(
		wallet.NewTxSender(client, signer, opts, s.logger),
		wallet.NewReceiptWaiter(client, poll, wait),
		s.store,
		s.logger,
	)
	outcome, record, err := run(ctx, orchestrator)
	if err != nil {
		if record.TxHash != "" {
			return clierr.Wrap(clierr.Code(clierr.ExitCode(err)), fmt.Sprintf("claim %s (tx %s)", record.ClaimID, record.TxHash), err)
		}
		return err
	}

	var warnings []string
	if !outcome.Succeeded() {
		warnings = append(warnings, "claim transaction reverted on chain")
	}
	return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.ClaimResult{
		ClaimID: record.ClaimID,
		Status:  string(record.Status),
		TxHash:  outcome.TxHash,
		Code:    outcome.Code,
		RawLog:  outcome.RawLog,
	}, warnings, view)
}

// requireActionAccount gates estimate and claim commands on a connected wallet.
func (s *runtimeState) requireActionAccount() (wallet.Account, error) {
	account, ok, err := s.currentAccount()
	if err != nil {
		return wallet.Account{}, err
	}
	if !ok {
		return wallet.Account{}, clierr.New(clierr.CodeUsage, "no wallet connected; run `distr wallet connect` first")
	}
	return account, nil
}

// resolveMaxRetrieve uses the explicit flag or the validator count of the
// last all-rewards query. A prior query is required either way.
func (s *runtimeState) resolveMaxRetrieve(account wallet.Account, flagValue uint32) (uint32, model.ViewStatus, error) {
	last, view, ok, err := s.loadView(account, rewards.KindAllRewards)
	if err != nil {
		return 0, view, err
	}
	if !ok {
		return 0, view, clierr.New(clierr.CodeUsage, "no rewards loaded; run `distr rewards all query` first")
	}
	if flagValue > 0 {
		return flagValue, view, nil
	}
	count := last.ValidatorCount()
	if count == 0 {
		return 0, view, clierr.New(clierr.CodeUsage, "the last query listed no delegations to claim")
	}
	return uint32(count), view, nil
}

// resolveValidator uses the explicit flag or the validator of the last
// single-validator query.
func (s *runtimeState) resolveValidator(account wallet.Account, flagValue string) (string, model.ViewStatus, error) {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v, viewBypass(), nil
	}
	last, view, ok, err := s.loadView(account, rewards.KindValidatorRewards)
	if err != nil {
		return "", view, err
	}
	if !ok || last.Validator == nil || strings.TrimSpace(last.Validator.Validator) == "" {
		return "", view, clierr.New(clierr.CodeUsage, "no validator selected; pass --validator or run `distr rewards validator query` first")
	}
	return last.Validator.Validator, view, nil
}

type claimFlags struct {
	gasMultiplier      float64
	maxFeeGwei         string
	maxPriorityFeeGwei string
	pollInterval       string
	receiptTimeout     string
}

func (f *claimFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.gasMultiplier, "gas-multiplier", 0, "Gas limit multiplier over the estimate (> 1)")
	cmd.Flags().StringVar(&f.maxFeeGwei, "max-fee-gwei", "", "EIP-1559 max fee per gas in gwei")
	cmd.Flags().StringVar(&f.maxPriorityFeeGwei, "max-priority-fee-gwei", "", "EIP-1559 max priority fee per gas in gwei")
	cmd.Flags().StringVar(&f.pollInterval, "poll-interval", "", "Receipt polling interval")
	cmd.Flags().StringVar(&f.receiptTimeout, "receipt-timeout", "", "Maximum time to wait for the receipt")
}

// resolve layers the command flags over the configured transaction defaults.
func (f claimFlags) resolve(settings config.Settings) (wallet.SendOptions, time.Duration, time.Duration, error) {
	opts := wallet.SendOptions{
		GasMultiplier:      settings.GasMultiplier,
		MaxFeeGwei:         settings.MaxFeeGwei,
		MaxPriorityFeeGwei: settings.MaxPriorityFeeGwei,
	}
	if f.gasMultiplier != 0 {
		if f.gasMultiplier <= 1 {
			return opts, 0, 0, clierr.New(clierr.CodeUsage, "--gas-multiplier must be > 1")
		}
		opts.GasMultiplier = f.gasMultiplier
	}
	setIfSet(&opts.MaxFeeGwei, f.maxFeeGwei)
	setIfSet(&opts.MaxPriorityFeeGwei, f.maxPriorityFeeGwei)

	poll, err := durationOr(f.pollInterval, settings.PollInterval, "--poll-interval")
	if err != nil {
		return opts, 0, 0, err
	}
	wait, err := durationOr(f.receiptTimeout, settings.ReceiptTimeout, "--receipt-timeout")
	if err != nil {
		return opts, 0, 0, err
	}
	return opts, poll, wait, nil
}

func setIfSet(dst *string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		*dst = v
	}
}

func durationOr(raw string, fallback time.Duration, flag string) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		return 0, clierr.New(clierr.CodeUsage, fmt.Sprintf("%s must be a positive duration", flag))
	}
	return d, nil
}
