package wallet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/distr-cli/internal/chainclient"
	"github.com/ggonzalez94/distr-cli/internal/chains"
	clierr "github.com/ggonzalez94/distr-cli/internal/errors"
	"go.uber.org/zap"
)

// Account is the connected wallet account and the chain it is bound to.
type Account struct {
	Address     common.Address `json:"address"`
	Chain       chains.Chain   `json:"chain"`
	RPCURL      string         `json:"rpc_url"`
	ConnectorID int            `json:"connector_id"`
	ConnectedAt string         `json:"connected_at"`
}

// SessionStore persists the active wallet session between invocations.
type SessionStore interface {
	LoadSession() (Account, bool, error)
	SaveSession(account Account) error
	ClearSession() (bool, error)
}

// Session is the wallet-session handle passed explicitly to commands.
type Session struct {
	store      SessionStore
	connectors []Connector
	dial       chainclient.Dialer
	logger     *zap.Logger
	now        func() time.Time
}

func NewSession(store SessionStore, connectors []Connector, dial chainclient.Dialer, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dial == nil {
		dial = chainclient.Dial
	}
	return &Session{
		store:      store,
		connectors: connectors,
		dial:       dial,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Session) ListConnectors() []ConnectorInfo {
	out := make([]ConnectorInfo, 0, len(s.connectors))
	for i, c := range s.connectors {
		out = append(out, ConnectorInfo{
			ID:        i,
			Name:      c.Name,
			KeySource: c.KeySource,
			Available: c.Available(),
		})
	}
	return out
}

// Connect opens the connector's signer, verifies the RPC endpoint serves the
// requested chain and persists the session.
func (s *Session) Connect(ctx context.Context, connectorID int, chain chains.Chain, rpcURL string) (Account, error) {
	if connectorID < 0 || connectorID >= len(s.connectors) {
		return Account{}, clierr.New(clierr.CodeConnection, fmt.Sprintf("unknown connector id %d", connectorID))
	}
	connector := s.connectors[connectorID]
	signer, err := connector.Open()
	if err != nil {
		return Account{}, clierr.Wrap(clierr.CodeConnection, fmt.Sprintf("connector %q unavailable", connector.Name), err)
	}
	rpcURL = strings.TrimSpace(rpcURL)
	if rpcURL == "" {
		return Account{}, clierr.New(clierr.CodeConnection, fmt.Sprintf("no rpc url for chain %s", chain.Slug))
	}

	client, err := s.dial(ctx, rpcURL)
	if err != nil {
		return Account{}, clierr.Wrap(clierr.CodeConnection, "connect rpc", err)
	}
	defer client.Close()
	remoteID, err := client.ChainID(ctx)
	if err != nil {
		return Account{}, clierr.Wrap(clierr.CodeConnection, "read chain id", err)
	}
	if remoteID.Int64() != chain.ID {
		return Account{}, clierr.New(clierr.CodeConnection, fmt.Sprintf("rpc serves chain id %d, expected %d (%s)", remoteID.Int64(), chain.ID, chain.Name))
	}

	account := Account{
		Address:     signer.Address(),
		Chain:       chain,
		RPCURL:      rpcURL,
		ConnectorID: connectorID,
		ConnectedAt: s.now().UTC().Format(time.RFC3339),
	}
	if err := s.store.SaveSession(account); err != nil {
		return Account{}, clierr.Wrap(clierr.CodeInternal, "persist wallet session", err)
	}
	s.logger.Info("wallet connected",
		zap.String("address", account.Address.Hex()),
		zap.String("chain", chain.Slug),
		zap.String("connector", connector.Name),
	)
	return account, nil
}

// Disconnect clears the session. Disconnecting without a session only logs.
func (s *Session) Disconnect() error {
	cleared, err := s.store.ClearSession()
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "clear wallet session", err)
	}
	if !cleared {
		s.logger.Warn("disconnect requested without an active wallet session")
		return nil
	}
	s.logger.Info("wallet disconnected")
	return nil
}

// Account returns the active account, if any.
func (s *Session) Account() (Account, bool, error) {
	account, ok, err := s.store.LoadSession()
	if err != nil {
		return Account{}, false, clierr.Wrap(clierr.CodeInternal, "load wallet session", err)
	}
	return account, ok, nil
}

// Signer reopens the connector the account was connected through and checks it
// still controls the account address.
func (s *Session) Signer(account Account) (Signer, error) {
	if account.ConnectorID < 0 || account.ConnectorID >= len(s.connectors) {
		return nil, clierr.New(clierr.CodeSubmission, fmt.Sprintf("unknown connector id %d", account.ConnectorID))
	}
	signer, err := s.connectors[account.ConnectorID].Open()
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSubmission, "open wallet signer", err)
	}
	if signer.Address() != account.Address {
		return nil, clierr.New(clierr.CodeSubmission, "wallet signer no longer matches the connected account; reconnect")
	}
	return signer, nil
}
