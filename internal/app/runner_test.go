package app

import (
	"bytes"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ggonzalez94/distr-cli/internal/registry"
)

const testPrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082796fe0f1d2a0a6f5b1f3"

func isolateDirs(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, key := range []string{"DISTR_PRIVATE_KEY", "DISTR_PRIVATE_KEY_FILE", "DISTR_KEYSTORE_PATH", "DISTR_RPC_URL", "DISTR_CHAIN"} {
		t.Setenv(key, "")
	}
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := NewRunnerWithWriters(&stdout, &stderr).Run(args)
	return code, stdout.String(), stderr.String()
}

// envelopeText drops log lines written to stderr ahead of an error envelope.
func envelopeText(raw string) string {
	if strings.HasPrefix(raw, "{") {
		return raw
	}
	if idx := strings.Index(raw, "\n{"); idx >= 0 {
		return raw[idx+1:]
	}
	return raw
}

func decodeEnvelope(t *testing.T, raw string) map[string]any {
	t.Helper()
	var env map[string]any
	if err := json.Unmarshal([]byte(envelopeText(raw)), &env); err != nil {
		t.Fatalf("failed to parse envelope: %v output=%s", err, raw)
	}
	return env
}

func errorCode(t *testing.T, stderr string) float64 {
	t.Helper()
	env := decodeEnvelope(t, stderr)
	body, ok := env["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error body, got %s", stderr)
	}
	return body["code"].(float64)
}

func TestTrimRootPath(t *testing.T) {
	if got := trimRootPath("distr rewards all query"); got != "rewards all query" {
		t.Fatalf("unexpected trim result: %s", got)
	}
}

func TestRunnerVersion(t *testing.T) {
	isolateDirs(t)
	code, stdout, stderr := runCLI(t, "version")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	if strings.TrimSpace(stdout) == "" {
		t.Fatal("expected version output")
	}
}

func TestRunnerChainsList(t *testing.T) {
	isolateDirs(t)
	code, stdout, stderr := runCLI(t, "chains", "list", "--results-only")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	var items []map[string]any
	if err := json.Unmarshal([]byte(stdout), &items); err != nil {
		t.Fatalf("failed to parse output json: %v output=%s", err, stdout)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 chains, got %d", len(items))
	}
	if items[0]["precompile"] != registry.DistributionPrecompileAddress.Hex() {
		t.Fatalf("unexpected precompile %v", items[0]["precompile"])
	}
}

func TestRunnerQueryWithoutWalletIsQueryError(t *testing.T) {
	isolateDirs(t)
	code, _, stderr := runCLI(t, "rewards", "all", "query")
	if code != 21 {
		t.Fatalf("expected exit 21, got %d stderr=%s", code, stderr)
	}
	if errorCode(t, stderr) != 21 {
		t.Fatalf("unexpected error envelope %s", stderr)
	}
	if !strings.Contains(stderr, "ERROR") || !strings.Contains(stderr, "command failed") {
		t.Fatalf("expected the failure to be logged at the default level, got %s", stderr)
	}
}

func TestRunnerClaimWithoutWalletIsUsageError(t *testing.T) {
	isolateDirs(t)
	code, _, stderr := runCLI(t, "rewards", "all", "claim")
	if code != 2 {
		t.Fatalf("expected exit 2, got %d stderr=%s", code, stderr)
	}
}

func TestRunnerReadOnlyBlocksClaims(t *testing.T) {
	isolateDirs(t)
	code, _, stderr := runCLI(t, "rewards", "validator", "claim", "--validator", "haqqvaloper1aaa", "--read-only")
	if code != 16 {
		t.Fatalf("expected exit 16, got %d stderr=%s", code, stderr)
	}
	// Estimates do not write and stay allowed (then fail on the missing wallet).
	code, _, stderr = runCLI(t, "rewards", "validator", "estimate-fee", "--validator", "haqqvaloper1aaa", "--read-only")
	if code != 2 {
		t.Fatalf("expected exit 2, got %d stderr=%s", code, stderr)
	}
}

func TestRunnerErrorEnvelopeIgnoresResultsOnly(t *testing.T) {
	isolateDirs(t)
	code, _, stderr := runCLI(t, "chains", "list", "--enable-commands", "rewards all query", "--results-only")
	if code != 16 {
		t.Fatalf("expected exit 16, got %d stderr=%s", code, stderr)
	}
	env := decodeEnvelope(t, stderr)
	if env["success"] != false {
		t.Fatalf("expected success=false, got %v", env["success"])
	}
}

func TestRunnerSchemaMarksWriteCommands(t *testing.T) {
	isolateDirs(t)
	code, stdout, stderr := runCLI(t, "schema", "rewards", "all", "claim", "--results-only")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("failed to parse schema: %v output=%s", err, stdout)
	}
	if out["writes"] != true {
		t.Fatalf("expected claim schema to be marked as writing, got %v", out["writes"])
	}
}

func TestRunnerClaimsStatusUnknownID(t *testing.T) {
	isolateDirs(t)
	code, _, stderr := runCLI(t, "claims", "status", "--claim-id", "clm_missing")
	if code != 2 {
		t.Fatalf("expected exit 2, got %d stderr=%s", code, stderr)
	}
}

// fakeRPC serves the JSON-RPC subset used by the reward workflow.
type fakeRPC struct {
	mu           sync.Mutex
	callResult   []byte
	receiptFound bool
	sentHash     common.Hash
	sentTx       *types.Transaction
	methods      []string
}

func (f *fakeRPC) setCallResult(out []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callResult = out
}

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func (f *fakeRPC) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.methods = append(f.methods, req.Method)

	var result any
	switch req.Method {
	case "eth_chainId":
		result = "0x2be3"
	case "eth_call":
		result = hexutil.Bytes(f.callResult)
	case "eth_estimateGas":
		result = "0x5208"
	case "eth_gasPrice":
		result = "0xa"
	case "eth_getBlockByNumber":
		result = &types.Header{Number: big.NewInt(100), Difficulty: big.NewInt(0), GasLimit: 30_000_000}
	case "eth_getTransactionCount":
		result = "0x3"
	case "eth_sendRawTransaction":
		var raw hexutil.Bytes
		_ = json.Unmarshal(req.Params[0], &raw)
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(raw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.sentTx = tx
		f.sentHash = tx.Hash()
		result = tx.Hash()
	case "eth_getTransactionReceipt":
		if !f.receiptFound {
			result = nil
			break
		}
		result = &types.Receipt{
			Status:            types.ReceiptStatusSuccessful,
			CumulativeGasUsed: 21000,
			GasUsed:           21000,
			Logs:              []*types.Log{},
			TxHash:            f.sentHash,
			BlockNumber:       big.NewInt(101),
		}
	default:
		http.Error(w, "unexpected method "+req.Method, http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
}

type testDecCoin struct {
	Denom     string
	Amount    *big.Int
	Precision uint8
}

type testDelegatorReward struct {
	ValidatorAddress string
	Reward           []testDecCoin
}

func packTotalRewards(t *testing.T) []byte {
	t.Helper()
	method := registry.DistributionABI().Methods[registry.MethodDelegationTotalRewards]
	out, err := method.Outputs.Pack(
		[]testDelegatorReward{
			{ValidatorAddress: "haqqvaloper1aaa", Reward: []testDecCoin{{Denom: "aISLM", Amount: big.NewInt(500), Precision: 18}}},
			{ValidatorAddress: "haqqvaloper1bbb", Reward: []testDecCoin{{Denom: "aISLM", Amount: big.NewInt(250), Precision: 18}}},
		},
		[]testDecCoin{{Denom: "aISLM", Amount: big.NewInt(750), Precision: 18}},
	)
	if err != nil {
		t.Fatalf("pack outputs: %v", err)
	}
	return out
}

func TestRunnerRewardWorkflow(t *testing.T) {
	isolateDirs(t)
	t.Setenv("DISTR_PRIVATE_KEY", testPrivateKey)

	rpc := &fakeRPC{callResult: packTotalRewards(t), receiptFound: true}
	srv := httptest.NewServer(rpc)
	defer srv.Close()

	code, stdout, stderr := runCLI(t, "wallet", "connect", "--connector", "0", "--rpc-url", srv.URL, "--results-only")
	if code != 0 {
		t.Fatalf("connect: expected exit 0, got %d stderr=%s", code, stderr)
	}
	var status map[string]any
	if err := json.Unmarshal([]byte(stdout), &status); err != nil {
		t.Fatalf("parse wallet status: %v output=%s", err, stdout)
	}
	if status["connected"] != true || status["chain_id"].(float64) != 11235 || status["chain_name"] != "HAQQ Network" {
		t.Fatalf("unexpected wallet status %v", status)
	}

	code, _, stderr = runCLI(t, "rewards", "all", "estimate-fee")
	if code != 2 {
		t.Fatalf("estimate before query: expected exit 2, got %d stderr=%s", code, stderr)
	}

	code, stdout, stderr = runCLI(t, "rewards", "all", "query")
	if code != 0 {
		t.Fatalf("query: expected exit 0, got %d stderr=%s", code, stderr)
	}
	env := decodeEnvelope(t, stdout)
	meta := env["meta"].(map[string]any)
	if meta["view_state"].(map[string]any)["status"] != "stored" {
		t.Fatalf("expected stored view state, got %v", meta["view_state"])
	}
	data := env["data"].(map[string]any)
	all := data["all"].(map[string]any)
	if len(all["rewards"].([]any)) != 2 {
		t.Fatalf("expected 2 validator rewards, got %v", all["rewards"])
	}

	code, stdout, stderr = runCLI(t, "rewards", "all", "estimate-fee", "--results-only")
	if code != 0 {
		t.Fatalf("estimate: expected exit 0, got %d stderr=%s", code, stderr)
	}
	var estimate map[string]any
	if err := json.Unmarshal([]byte(stdout), &estimate); err != nil {
		t.Fatalf("parse estimate: %v output=%s", err, stdout)
	}
	if estimate["fee"] != "210000" || estimate["method"] != registry.MethodClaimRewards {
		t.Fatalf("unexpected estimate %v", estimate)
	}

	code, stdout, stderr = runCLI(t, "rewards", "all", "claim", "--poll-interval", "10ms", "--results-only")
	if code != 0 {
		t.Fatalf("claim: expected exit 0, got %d stderr=%s", code, stderr)
	}
	var result map[string]any
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("parse claim result: %v output=%s", err, stdout)
	}
	if result["code"].(float64) != 0 || result["status"] != "confirmed" {
		t.Fatalf("unexpected claim result %v", result)
	}
	if result["txhash"] != rpc.sentHash.Hex() {
		t.Fatalf("expected tx hash %s, got %v", rpc.sentHash.Hex(), result["txhash"])
	}
	if rpc.sentTx.To() == nil || *rpc.sentTx.To() != registry.DistributionPrecompileAddress {
		t.Fatalf("claim was not sent to the precompile: %v", rpc.sentTx.To())
	}
	if rpc.sentTx.Gas() != 25200 || rpc.sentTx.Nonce() != 3 {
		t.Fatalf("unexpected gas %d or nonce %d", rpc.sentTx.Gas(), rpc.sentTx.Nonce())
	}
	// Default max-retrieve is the number of validators in the last query.
	wantData, err := registry.PackClaimRewards(common.HexToAddress(status["address"].(string)), 2)
	if err != nil {
		t.Fatalf("pack claim calldata: %v", err)
	}
	if !bytes.Equal(rpc.sentTx.Data(), wantData) {
		t.Fatalf("unexpected claim calldata %x", rpc.sentTx.Data())
	}

	code, stdout, stderr = runCLI(t, "claims", "list", "--results-only")
	if code != 0 {
		t.Fatalf("claims list: expected exit 0, got %d stderr=%s", code, stderr)
	}
	var records []map[string]any
	if err := json.Unmarshal([]byte(stdout), &records); err != nil {
		t.Fatalf("parse claims: %v output=%s", err, stdout)
	}
	if len(records) != 1 || records[0]["status"] != "confirmed" {
		t.Fatalf("unexpected claim records %v", records)
	}

	// A failed query keeps the previous view state.
	rpc.setCallResult([]byte{0x01, 0x02})
	code, _, stderr = runCLI(t, "rewards", "all", "query")
	if code != 21 {
		t.Fatalf("undecodable query: expected exit 21, got %d stderr=%s", code, stderr)
	}
	code, _, stderr = runCLI(t, "rewards", "all", "estimate-fee")
	if code != 0 {
		t.Fatalf("estimate after failed query: expected exit 0, got %d stderr=%s", code, stderr)
	}

	code, _, stderr = runCLI(t, "wallet", "disconnect")
	if code != 0 {
		t.Fatalf("disconnect: expected exit 0, got %d stderr=%s", code, stderr)
	}
	code, _, stderr = runCLI(t, "rewards", "all", "estimate-fee")
	if code != 2 {
		t.Fatalf("estimate after disconnect: expected exit 2, got %d stderr=%s", code, stderr)
	}

	// Reconnecting the same account does not bring back the cleared view state.
	code, _, stderr = runCLI(t, "wallet", "connect", "--connector", "0", "--rpc-url", srv.URL)
	if code != 0 {
		t.Fatalf("reconnect: expected exit 0, got %d stderr=%s", code, stderr)
	}
	code, _, stderr = runCLI(t, "rewards", "all", "estimate-fee")
	if code != 2 {
		t.Fatalf("estimate after reconnect: expected exit 2, got %d stderr=%s", code, stderr)
	}
}

func TestRunnerUnreachableRPCUsesWorkflowCodes(t *testing.T) {
	isolateDirs(t)
	t.Setenv("DISTR_PRIVATE_KEY", testPrivateKey)

	srv := httptest.NewServer(&fakeRPC{callResult: packTotalRewards(t), receiptFound: true})
	defer srv.Close()

	if code, _, stderr := runCLI(t, "wallet", "connect", "--connector", "0", "--rpc-url", srv.URL); code != 0 {
		t.Fatalf("connect: expected exit 0, got %d stderr=%s", code, stderr)
	}
	if code, _, stderr := runCLI(t, "rewards", "all", "query"); code != 0 {
		t.Fatalf("query: expected exit 0, got %d stderr=%s", code, stderr)
	}
	srv.Close()

	cases := []struct {
		args []string
		want int
	}{
		{args: []string{"rewards", "all", "query"}, want: 21},
		{args: []string{"rewards", "all", "estimate-fee"}, want: 22},
		{args: []string{"rewards", "all", "claim"}, want: 23},
	}
	for _, tc := range cases {
		code, _, stderr := runCLI(t, tc.args...)
		if code != tc.want {
			t.Fatalf("%v: expected exit %d, got %d stderr=%s", tc.args, tc.want, code, stderr)
		}
		if errorCode(t, stderr) != float64(tc.want) {
			t.Fatalf("%v: unexpected error envelope %s", tc.args, stderr)
		}
	}
}
