package wallet

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

func testAddress(t *testing.T) common.Address {
	t.Helper()
	pk, err := crypto.HexToECDSA(testPrivateKey)
	if err != nil {
		t.Fatalf("parse test key: %v", err)
	}
	return crypto.PubkeyToAddress(pk.PublicKey)
}

func TestNewLocalSignerFromHex(t *testing.T) {
	s, err := NewLocalSigner(LocalSignerConfig{PrivateKeyHex: "0x" + testPrivateKey})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	if s.Address() != testAddress(t) {
		t.Fatalf("unexpected signer address %s", s.Address().Hex())
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    0,
		To:       ptrAddress(common.HexToAddress("0x0000000000000000000000000000000000000001")),
		Value:    big.NewInt(0),
		Gas:      21_000,
		GasPrice: big.NewInt(1),
	})
	signed, err := s.SignTx(common.Big1, tx)
	if err != nil {
		t.Fatalf("SignTx failed: %v", err)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(common.Big1), signed)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender != s.Address() {
		t.Fatalf("recovered sender %s, expected %s", sender.Hex(), s.Address().Hex())
	}
}

func TestNewLocalSignerFromFile(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "key.txt")
	if err := os.WriteFile(keyFile, []byte(testPrivateKey+"\n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	s, err := NewLocalSigner(LocalSignerConfig{PrivateKeyFile: keyFile})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	if s.Address() != testAddress(t) {
		t.Fatalf("unexpected signer address %s", s.Address().Hex())
	}
}

func TestNewLocalSignerRejectsGarbageKey(t *testing.T) {
	if _, err := NewLocalSigner(LocalSignerConfig{PrivateKeyHex: "not-a-key"}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNewLocalSignerKeystoreRequiresPassword(t *testing.T) {
	_, err := NewLocalSigner(LocalSignerConfig{KeystorePath: filepath.Join(t.TempDir(), "ks.json")})
	if err == nil || !strings.Contains(err.Error(), "password") {
		t.Fatalf("expected password error, got %v", err)
	}
}

func TestNewLocalSignerMissingKeyErrorNamesSources(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	_, err := NewLocalSigner(LocalSignerConfig{})
	if err == nil {
		t.Fatal("expected missing key error")
	}
	for _, want := range []string{EnvPrivateKey, EnvPrivateKeyFile, EnvKeystorePath} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in error, got %v", want, err)
		}
	}
}

func TestDefaultPrivateKeyPathUsesXDGConfigHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	want := filepath.Join(dir, "distr", "key.hex")
	if got := defaultPrivateKeyPath(); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestFileConnectorDiscoversDefaultKeyFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv(EnvPrivateKeyFile, "")
	path := filepath.Join(dir, "distr", "key.hex")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(testPrivateKey), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	cfg := fileKeyConfig()
	if cfg.PrivateKeyFile != path {
		t.Fatalf("expected discovered key file %s, got %q", path, cfg.PrivateKeyFile)
	}
}

func TestConnectorAvailability(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(EnvPrivateKey, "")
	t.Setenv(EnvPrivateKeyFile, "")
	t.Setenv(EnvKeystorePath, "")

	connectors := DefaultConnectors()
	if len(connectors) != 3 {
		t.Fatalf("expected 3 connectors, got %d", len(connectors))
	}
	for _, c := range connectors {
		if c.Available() {
			t.Fatalf("connector %q should be unavailable without key material", c.Name)
		}
	}

	t.Setenv(EnvPrivateKey, testPrivateKey)
	if !connectors[0].Available() {
		t.Fatal("env connector should be available once the key is set")
	}
	s, err := connectors[0].Open()
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if s.Address() != testAddress(t) {
		t.Fatalf("unexpected address %s", s.Address().Hex())
	}
}

func TestZeroConnectorOpenFails(t *testing.T) {
	s, err := (Connector{Name: "empty"}).Open()
	if err == nil || s != nil {
		t.Fatalf("expected error and nil signer, got %v %v", s, err)
	}
}

func ptrAddress(v common.Address) *common.Address { return &v }
