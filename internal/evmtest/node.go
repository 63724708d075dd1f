// Package evmtest serves a minimal in-process JSON-RPC node for tests.
package evmtest

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ggonzalez94/agent-wallet/internal/registry"
)

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type callArgs struct {
	To    *common.Address `json:"to"`
	Data  hexutil.Bytes   `json:"data"`
	Input hexutil.Bytes   `json:"input"`
}

// Node answers the subset of eth_* methods used by wallets. Unknown tokens
// answer balanceOf with zero; decimals reverts unless configured.
type Node struct {
	server  *httptest.Server
	chainID int64

	mu             sync.Mutex
	balances       map[common.Address]*big.Int
	tokenBalances  map[common.Address]map[common.Address]*big.Int
	decimals       map[common.Address]uint8
	failingMethods map[string]bool
	calls          map[string]int
	sent           []*types.Transaction
}

func NewNode(t testing.TB, chainID int64) *Node {
	t.Helper()
	n := &Node{
		chainID:        chainID,
		balances:       map[common.Address]*big.Int{},
		tokenBalances:  map[common.Address]map[common.Address]*big.Int{},
		decimals:       map[common.Address]uint8{},
		failingMethods: map[string]bool{},
		calls:          map[string]int{},
	}
	n.server = httptest.NewServer(http.HandlerFunc(n.handle))
	t.Cleanup(n.server.Close)
	return n
}

func (n *Node) URL() string { return n.server.URL }

// Chain returns a registry entry pointing at this node.
func (n *Node) Chain(slug string) registry.ChainConfig {
	return registry.ChainConfig{
		ID:             n.chainID,
		Name:           slug,
		Slug:           slug,
		RPC:            registry.RPCURLs{Default: []string{n.URL()}},
		NativeCurrency: registry.Currency{Name: "Ether", Symbol: "ETH", Decimals: 18},
	}
}

func (n *Node) SetBalance(account common.Address, wei *big.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.balances[account] = new(big.Int).Set(wei)
}

func (n *Node) SetTokenBalance(token, account common.Address, amount *big.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.tokenBalances[token] == nil {
		n.tokenBalances[token] = map[common.Address]*big.Int{}
	}
	n.tokenBalances[token][account] = new(big.Int).Set(amount)
}

func (n *Node) SetDecimals(token common.Address, decimals uint8) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.decimals[token] = decimals
}

// Fail makes every call to method return a JSON-RPC error.
func (n *Node) Fail(method string, fail bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failingMethods[method] = fail
}

// Calls reports how many times method was served.
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

// Sent returns the raw transactions broadcast to the node.
func (n *Node) Sent() []*types.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*types.Transaction(nil), n.sent...)
}

func (n *Node) handle(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[req.Method]++
	if n.failingMethods[req.Method] {
		writeError(w, req.ID, -32000, "injected failure for "+req.Method)
		return
	}

	switch req.Method {
	case "eth_chainId":
		writeResult(w, req.ID, hexutil.EncodeBig(big.NewInt(n.chainID)))
	case "eth_getBalance":
		var account common.Address
		if err := param(req, 0, &account); err != nil {
			writeError(w, req.ID, -32602, err.Error())
			return
		}
		writeResult(w, req.ID, hexutil.EncodeBig(orZero(n.balances[account])))
	case "eth_call":
		n.handleCall(w, req)
	case "eth_estimateGas":
		writeResult(w, req.ID, hexutil.EncodeUint64(21_000))
	case "eth_maxPriorityFeePerGas":
		writeResult(w, req.ID, hexutil.EncodeBig(big.NewInt(1_000_000_000)))
	case "eth_getBlockByNumber":
		writeRaw(w, req.ID, latestHeaderJSON)
	case "eth_getTransactionCount":
		writeResult(w, req.ID, hexutil.EncodeUint64(uint64(len(n.sent))))
	case "eth_sendRawTransaction":
		var raw hexutil.Bytes
		if err := param(req, 0, &raw); err != nil {
			writeError(w, req.ID, -32602, err.Error())
			return
		}
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(raw); err != nil {
			writeError(w, req.ID, -32602, err.Error())
			return
		}
		n.sent = append(n.sent, tx)
		writeResult(w, req.ID, tx.Hash().Hex())
	case "eth_getTransactionReceipt":
		var hash common.Hash
		if err := param(req, 0, &hash); err != nil {
			writeError(w, req.ID, -32602, err.Error())
			return
		}
		for _, tx := range n.sent {
			if tx.Hash() == hash {
				writeRaw(w, req.ID, receiptJSON(hash))
				return
			}
		}
		writeRaw(w, req.ID, "null")
	default:
		writeError(w, req.ID, -32601, fmt.Sprintf("method not supported in test: %s", req.Method))
	}
}

func (n *Node) handleCall(w http.ResponseWriter, req rpcRequest) {
	var args callArgs
	if err := param(req, 0, &args); err != nil || args.To == nil {
		writeError(w, req.ID, -32602, "invalid call args")
		return
	}
	data := args.Input
	if len(data) == 0 {
		data = args.Data
	}
	if len(data) < 4 {
		writeError(w, req.ID, -32602, "missing selector")
		return
	}
	erc20 := registry.ERC20()
	method, err := erc20.MethodById(data[:4])
	if err != nil {
		writeError(w, req.ID, 3, "execution reverted")
		return
	}
	var out []byte
	switch method.Name {
	case "balanceOf":
		inputs, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			writeError(w, req.ID, -32602, err.Error())
			return
		}
		account := inputs[0].(common.Address)
		out, err = method.Outputs.Pack(orZero(n.tokenBalances[*args.To][account]))
		if err != nil {
			writeError(w, req.ID, -32603, err.Error())
			return
		}
	case "decimals":
		dec, ok := n.decimals[*args.To]
		if !ok {
			writeError(w, req.ID, 3, "execution reverted")
			return
		}
		out, _ = method.Outputs.Pack(dec)
	default:
		writeError(w, req.ID, 3, "execution reverted")
		return
	}
	writeResult(w, req.ID, "0x"+hex.EncodeToString(out))
}

func param(req rpcRequest, i int, v any) error {
	if len(req.Params) <= i {
		return fmt.Errorf("missing param %d", i)
	}
	return json.Unmarshal(req.Params[i], v)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result string) {
	writeRaw(w, id, fmt.Sprintf("%q", result))
}

func writeRaw(w http.ResponseWriter, id json.RawMessage, result string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, rawID(id), result)
}

func writeError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":%d,"message":%q}}`, rawID(id), code, message)
}

func rawID(id json.RawMessage) string {
	if len(id) == 0 {
		return "1"
	}
	return string(id)
}

var zeroHash = "0x" + strings.Repeat("0", 64)

var latestHeaderJSON = fmt.Sprintf(`{
	"parentHash": %[1]q,
	"sha3Uncles": %[1]q,
	"miner": "0x0000000000000000000000000000000000000000",
	"stateRoot": %[1]q,
	"transactionsRoot": %[1]q,
	"receiptsRoot": %[1]q,
	"logsBloom": "0x%[2]s",
	"difficulty": "0x0",
	"number": "0x10",
	"gasLimit": "0x1c9c380",
	"gasUsed": "0x0",
	"timestamp": "0x6553f100",
	"extraData": "0x",
	"mixHash": %[1]q,
	"nonce": "0x0000000000000000",
	"baseFeePerGas": "0x3b9aca00"
}`, zeroHash, strings.Repeat("0", 512))

func receiptJSON(hash common.Hash) string {
	return fmt.Sprintf(`{
		"transactionHash": %q,
		"transactionIndex": "0x0",
		"blockHash": %q,
		"blockNumber": "0x11",
		"cumulativeGasUsed": "0x5208",
		"gasUsed": "0x5208",
		"effectiveGasPrice": "0x3b9aca00",
		"logsBloom": "0x%s",
		"logs": [],
		"status": "0x1",
		"type": "0x2"
	}`, hash.Hex(), zeroHash, strings.Repeat("0", 512))
}
