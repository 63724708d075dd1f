// Package transfer sends native currency or ERC-20 tokens from a wallet.
// Unlike balance reads, every failure here is returned so a transfer is
// never assumed to have happened.
package transfer

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ggonzalez94/agent-wallet/internal/chainclient"
	clierr "github.com/ggonzalez94/agent-wallet/internal/errors"
	"github.com/ggonzalez94/agent-wallet/internal/registry"
	"github.com/ggonzalez94/agent-wallet/internal/units"
)

const (
	StatusSubmitted = "submitted"
	StatusConfirmed = "confirmed"
	StatusReverted  = "reverted"
)

// Sender is the signing surface a transfer needs.
type Sender interface {
	Address() common.Address
	Send(ctx context.Context, req chainclient.TxRequest) (*types.Transaction, error)
	WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Request describes one transfer. Token empty or the zero address sends the
// native currency. Data is only allowed on native transfers.
type Request struct {
	To       string
	Amount   string
	Token    string
	Decimals int
	Data     string
	Wait     bool
}

type Result struct {
	Hash      string `json:"hash"`
	From      string `json:"from"`
	To        string `json:"to"`
	Token     string `json:"token"`
	Amount    string `json:"amount"`
	BaseUnits string `json:"base_units"`
	Chain     string `json:"chain"`
	Status    string `json:"status"`
	Block     uint64 `json:"block,omitempty"`
}

// Execute validates req, builds the transaction and broadcasts it through
// client. With req.Wait it also waits for the receipt; a reverted receipt
// is reported as an error alongside the result.
func Execute(ctx context.Context, client Sender, chain registry.ChainConfig, req Request) (Result, error) {
	to, err := parseAddress("recipient", req.To)
	if err != nil {
		return Result{}, err
	}
	native := strings.TrimSpace(req.Token) == "" || registry.IsNativeToken(req.Token)
	decimals := req.Decimals
	if native {
		decimals = chain.NativeCurrency.Decimals
	}
	amount, err := units.ParseUnits(req.Amount, decimals)
	if err != nil {
		return Result{}, err
	}
	if amount.Sign() <= 0 {
		return Result{}, clierr.New(clierr.CodeUsage, "amount must be greater than zero")
	}

	var (
		tx     chainclient.TxRequest
		symbol string
	)
	if native {
		data, err := parseData(req.Data)
		if err != nil {
			return Result{}, err
		}
		tx = chainclient.TxRequest{To: to, Value: amount, Data: data}
		symbol = chain.NativeCurrency.Symbol
	} else {
		if strings.TrimSpace(req.Data) != "" {
			return Result{}, clierr.New(clierr.CodeUsage, "data is only supported on native transfers")
		}
		token, err := parseAddress("token", req.Token)
		if err != nil {
			return Result{}, err
		}
		calldata, err := registry.ERC20().Pack("transfer", to, amount)
		if err != nil {
			return Result{}, clierr.Wrap(clierr.CodeInternal, "pack transfer calldata", err)
		}
		tx = chainclient.TxRequest{To: token, Value: new(big.Int), Data: calldata}
		symbol = token.Hex()
	}

	signed, err := client.Send(ctx, tx)
	if err != nil {
		return Result{}, err
	}
	res := Result{
		Hash:      signed.Hash().Hex(),
		From:      client.Address().Hex(),
		To:        to.Hex(),
		Token:     symbol,
		Amount:    units.FormatUnits(amount, decimals),
		BaseUnits: amount.String(),
		Chain:     chain.Slug,
		Status:    StatusSubmitted,
	}
	if !req.Wait {
		return res, nil
	}
	receipt, err := client.WaitReceipt(ctx, signed.Hash())
	if receipt != nil {
		if receipt.BlockNumber != nil {
			res.Block = receipt.BlockNumber.Uint64()
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			res.Status = StatusReverted
			return res, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("transaction %s reverted", res.Hash))
		}
	}
	if err != nil {
		return res, err
	}
	res.Status = StatusConfirmed
	return res, nil
}

func parseAddress(field, raw string) (common.Address, error) {
	v := strings.TrimSpace(raw)
	if !strings.HasPrefix(strings.ToLower(v), "0x") || !common.IsHexAddress(v) {
		return common.Address{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid %s address %q", field, raw))
	}
	addr := common.HexToAddress(v)
	if addr == (common.Address{}) && field == "recipient" {
		return common.Address{}, clierr.New(clierr.CodeUsage, "refusing to send to the zero address")
	}
	return addr, nil
}

func parseData(raw string) ([]byte, error) {
	v := strings.TrimSpace(raw)
	if v == "" || v == "0x" {
		return nil, nil
	}
	data, err := hexutil.Decode(v)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "data must be 0x-prefixed hex", err)
	}
	return data, nil
}
