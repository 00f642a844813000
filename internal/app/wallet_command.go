package app

import (
	"github.com/ggonzalez94/distr-cli/internal/chains"
	clierr "github.com/ggonzalez94/distr-cli/internal/errors"
	"github.com/ggonzalez94/distr-cli/internal/model"
	"github.com/ggonzalez94/distr-cli/internal/registry"
	"github.com/ggonzalez94/distr-cli/internal/wallet"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (s *runtimeState) newWalletCommand() *cobra.Command {
	root := &cobra.Command{Use: "wallet", Short: "Wallet connection commands"}
	root.AddCommand(s.newWalletConnectorsCommand())
	root.AddCommand(s.newWalletConnectCommand())
	root.AddCommand(s.newWalletDisconnectCommand())
	root.AddCommand(s.newWalletStatusCommand())
	return root
}

func (s *runtimeState) newWalletConnectorsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "connectors",
		Short: "List wallet connectors in connect order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, err := s.walletSession()
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), session.ListConnectors(), nil, viewBypass())
		},
	}
}

func (s *runtimeState) newWalletConnectCommand() *cobra.Command {
	var connectorID int
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect a wallet through a connector and bind it to a chain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			chain, err := chains.ParseChain(s.settings.Chain)
			if err != nil {
				return err
			}
			rpcURL, err := registry.ResolveRPCURL(s.settings.RPCURL, chain.ID)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "resolve rpc url", err)
			}
			session, err := s.walletSession()
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext(0)
			defer cancel()
			s.lastChain = chain.Slug
			s.lastRPC = &model.RPCStatus{URL: rpcURL, Status: "ok"}
			account, err := session.Connect(ctx, connectorID, chain, rpcURL)
			if err != nil {
				s.lastRPC.Status = "error"
				return err
			}
			s.lastAccount = account.Address.Hex()
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), walletStatus(account, true), nil, viewBypass())
		},
	}
	cmd.Flags().IntVar(&connectorID, "connector", 0, "Connector id as listed by wallet connectors")
	return cmd
}

func (s *runtimeState) newWalletDisconnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Disconnect the wallet and clear its view state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			account, ok, err := s.currentAccount()
			if err != nil {
				return err
			}
			session, err := s.walletSession()
			if err != nil {
				return err
			}
			if err := session.Disconnect(); err != nil {
				return err
			}
			view := viewBypass()
			if ok {
				n, err := s.clearView(account)
				if err != nil {
					return err
				}
				s.logger.Debug("cleared view state", zap.Int64("entries", n))
				view = model.ViewStatus{Status: "cleared"}
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.WalletStatus{Connected: false}, nil, view)
		},
	}
}

func (s *runtimeState) newWalletStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the connected account and chain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			account, ok, err := s.currentAccount()
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), walletStatus(account, ok), nil, viewBypass())
		},
	}
}

func walletStatus(account wallet.Account, connected bool) model.WalletStatus {
	if !connected {
		return model.WalletStatus{Connected: false}
	}
	connectorID := account.ConnectorID
	// The registry name wins over the one stored at connect time.
	chainName := account.Chain.Name
	if chain, ok := chains.ByID(account.Chain.ID); ok {
		chainName = chain.Name
	}
	return model.WalletStatus{
		Connected:   true,
		Address:     account.Address.Hex(),
		ChainID:     account.Chain.ID,
		ChainName:   chainName,
		RPCURL:      account.RPCURL,
		ConnectorID: &connectorID,
		ConnectedAt: account.ConnectedAt,
	}
}
