package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ggonzalez94/distr-cli/internal/cache"
	"github.com/ggonzalez94/distr-cli/internal/chainclient"
	"github.com/ggonzalez94/distr-cli/internal/chains"
	"github.com/ggonzalez94/distr-cli/internal/config"
	clierr "github.com/ggonzalez94/distr-cli/internal/errors"
	"github.com/ggonzalez94/distr-cli/internal/logging"
	"github.com/ggonzalez94/distr-cli/internal/model"
	"github.com/ggonzalez94/distr-cli/internal/out"
	"github.com/ggonzalez94/distr-cli/internal/policy"
	"github.com/ggonzalez94/distr-cli/internal/registry"
	"github.com/ggonzalez94/distr-cli/internal/schema"
	"github.com/ggonzalez94/distr-cli/internal/store"
	"github.com/ggonzalez94/distr-cli/internal/version"
	"github.com/ggonzalez94/distr-cli/internal/wallet"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type Runner struct {
	stdout     io.Writer
	stderr     io.Writer
	now        func() time.Time
	dial       chainclient.Dialer
	connectors []wallet.Connector
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout:     stdout,
		stderr:     stderr,
		now:        time.Now,
		dial:       chainclient.Dial,
		connectors: wallet.DefaultConnectors(),
	}
}

type runtimeState struct {
	runner   *Runner
	flags    config.GlobalFlags
	settings config.Settings
	logger   *zap.Logger
	cache    *cache.Store
	store    *store.Store
	session  *wallet.Session
	root     *cobra.Command

	lastCommand string
	lastChain   string
	lastAccount string
	lastRPC     *model.RPCStatus
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r, logger: zap.NewNop()}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := normalizeRunError(root.Execute())
	if err != nil {
		state.logFailure(err)
		state.renderError("", err)
	}
	state.close()
	return clierr.ExitCode(err)
}

// logFailure records a failed command on stderr ahead of its error envelope.
func (s *runtimeState) logFailure(err error) {
	fields := []zap.Field{
		zap.String("command", s.lastCommand),
		zap.Int("code", clierr.ExitCode(err)),
		zap.Error(err),
	}
	switch clierr.Code(clierr.ExitCode(err)) {
	case clierr.CodeUsage, clierr.CodeBlocked:
		s.logger.Warn("command failed", fields...)
	default:
		s.logger.Error("command failed", fields...)
	}
}

func (s *runtimeState) close() {
	if s.cache != nil {
		_ = s.cache.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
	_ = s.logger.Sync()
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Query and claim staking rewards through the distribution precompile",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings

			logger, err := logging.New(s.runner.stderr, settings.LogLevel)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "configure logging", err)
			}
			s.logger = logger

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			if err := policy.CheckCommandAllowed(settings.EnableCommands, path); err != nil {
				return err
			}
			return policy.CheckWriteAllowed(settings.ReadOnly, schema.Writes(cmd), path)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated, dotted paths allowed)")
	cmd.PersistentFlags().BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	cmd.PersistentFlags().StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	cmd.PersistentFlags().BoolVar(&s.flags.ReadOnly, "read-only", false, "Block commands that submit transactions")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "RPC request timeout")
	cmd.PersistentFlags().StringVar(&s.flags.LogLevel, "log-level", "", "Log level written to stderr (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&s.flags.Chain, "chain", "", "Chain slug, id or CAIP-2 identifier used by wallet connect")
	cmd.PersistentFlags().StringVar(&s.flags.RPCURL, "rpc-url", "", "RPC URL override")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")

	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(s.newChainsCommand())
	cmd.AddCommand(s.newWalletCommand())
	cmd.AddCommand(s.newRewardsCommand())
	cmd.AddCommand(s.newClaimsCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.Build(s.root, strings.Join(args, " "))
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, viewBypass())
		},
	}
}

type chainInfo struct {
	chains.Chain
	DefaultRPCURL string `json:"default_rpc_url,omitempty"`
	Precompile    string `json:"precompile"`
}

func (s *runtimeState) newChainsCommand() *cobra.Command {
	root := &cobra.Command{Use: "chains", Short: "Chain commands"}
	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List supported chains and their default RPC endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			items := make([]chainInfo, 0)
			for _, chain := range chains.List() {
				rpcURL, _ := registry.DefaultRPCURL(chain.ID)
				items = append(items, chainInfo{
					Chain:         chain,
					DefaultRPCURL: rpcURL,
					Precompile:    registry.DistributionPrecompileAddress.Hex(),
				})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil, viewBypass())
		},
	})
	return root
}

func (s *runtimeState) ensureStore() error {
	if s.store != nil {
		return nil
	}
	st, err := store.Open(s.settings.StatePath, s.settings.StateLockPath)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "open state store", err)
	}
	s.store = st
	return nil
}

func (s *runtimeState) ensureCache() error {
	if s.cache != nil {
		return nil
	}
	c, err := cache.Open(s.settings.CachePath, s.settings.CacheLockPath)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "open view-state cache", err)
	}
	s.cache = c
	return nil
}

func (s *runtimeState) walletSession() (*wallet.Session, error) {
	if s.session != nil {
		return s.session, nil
	}
	if err := s.ensureStore(); err != nil {
		return nil, err
	}
	s.session = wallet.NewSession(s.store, s.runner.connectors, s.runner.dial, s.logger)
	return s.session, nil
}

// currentAccount returns the connected account; ok is false without a session.
func (s *runtimeState) currentAccount() (wallet.Account, bool, error) {
	session, err := s.walletSession()
	if err != nil {
		return wallet.Account{}, false, err
	}
	account, ok, err := session.Account()
	if err != nil || !ok {
		return wallet.Account{}, false, err
	}
	s.lastChain = account.Chain.Slug
	s.lastAccount = account.Address.Hex()
	return account, true, nil
}

// dialAccount connects to the account's RPC (or the --rpc-url override) and
// checks it still serves the account's chain. Failures carry code, the
// taxonomy code of the calling workflow.
func (s *runtimeState) dialAccount(ctx context.Context, account wallet.Account, code clierr.Code) (chainclient.Client, error) {
	rpcURL := account.RPCURL
	if strings.TrimSpace(s.settings.RPCURL) != "" {
		rpcURL = strings.TrimSpace(s.settings.RPCURL)
	}
	start := time.Now()
	status := &model.RPCStatus{URL: rpcURL, Status: "ok"}
	s.lastRPC = status

	client, err := s.runner.dial(ctx, rpcURL)
	if err == nil {
		var remoteID int64
		remoteID, err = remoteChainID(ctx, client)
		if err != nil {
			err = clierr.Wrap(code, "rpc unavailable", err)
		} else if remoteID != account.Chain.ID {
			err = clierr.New(code, fmt.Sprintf("rpc serves chain id %d but the wallet is connected to %d; reconnect", remoteID, account.Chain.ID))
		}
		if err != nil {
			client.Close()
		}
	} else if !clierr.HasCode(err, clierr.CodeUsage) {
		err = clierr.Wrap(code, "rpc unavailable", err)
	}
	status.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		status.Status = "error"
		return nil, err
	}
	return client, nil
}

func remoteChainID(ctx context.Context, client chainclient.Client) (int64, error) {
	id, err := client.ChainID(ctx)
	if err != nil {
		return 0, err
	}
	return id.Int64(), nil
}

func (s *runtimeState) commandContext(extra time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.settings.Timeout+extra)
}

func (s *runtimeState) meta(commandPath string, view model.ViewStatus) model.EnvelopeMeta {
	return model.EnvelopeMeta{
		RequestID: newRequestID(),
		Timestamp: s.runner.now().UTC(),
		Command:   commandPath,
		Chain:     s.lastChain,
		Account:   s.lastAccount,
		RPC:       s.lastRPC,
		ViewState: view,
	}
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, view model.ViewStatus) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta:     s.meta(commandPath, view),
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.ExitCode(err)
	typ := clierr.TypeName(clierr.Code(code))
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Error()
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    code,
			Type:    typ,
			Message: message,
		},
		Meta: s.meta(commandPath, viewBypass()),
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

func newRequestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
