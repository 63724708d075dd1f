package chainclient

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	clierr "github.com/ggonzalez94/agent-wallet/internal/errors"
	"github.com/ggonzalez94/agent-wallet/internal/signer"
)

type SendOptions struct {
	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
	PollInterval       time.Duration
	ReceiptTimeout     time.Duration
}

func DefaultSendOptions() SendOptions {
	return SendOptions{
		GasMultiplier:  1.2,
		PollInterval:   2 * time.Second,
		ReceiptTimeout: 2 * time.Minute,
	}
}

type TxRequest struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

type SigningClient struct {
	*ReadClient
	signer signer.Signer
	opts   SendOptions
}

func (c *SigningClient) Address() common.Address {
	return c.signer.Address()
}

// Send estimates, prices, signs and broadcasts an EIP-1559 transaction.
func (c *SigningClient) Send(ctx context.Context, req TxRequest) (*types.Transaction, error) {
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	from := c.signer.Address()
	msg := ethereum.CallMsg{From: from, To: &req.To, Value: value, Data: req.Data}

	gasLimit, err := c.eth.EstimateGas(ctx, msg)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "estimate gas", err)
	}
	multiplier := c.opts.GasMultiplier
	if multiplier <= 1 {
		multiplier = 1.2
	}
	gasLimit = uint64(float64(gasLimit) * multiplier)

	tipCap, err := c.resolveTipCap(ctx)
	if err != nil {
		return nil, err
	}
	header, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap, err := resolveFeeCap(baseFee, tipCap, c.opts.MaxFeeGwei)
	if err != nil {
		return nil, err
	}

	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &req.To,
		Value:     value,
		Data:      req.Data,
	})
	signed, err := c.signer.SignTx(chainID, tx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "broadcast transaction", err)
	}
	return signed, nil
}

// WaitReceipt polls until the transaction is mined or the receipt timeout elapses.
func (c *SigningClient) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	poll := c.opts.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	timeout := c.opts.ReceiptTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		receipt, err := c.eth.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				return receipt, nil
			}
			return receipt, clierr.New(clierr.CodeUnavailable, "transaction reverted on-chain")
		}
		// ethereum.NotFound and transient polling failures are retried until the timeout.
		select {
		case <-waitCtx.Done():
			return nil, clierr.Wrap(clierr.CodeUnavailable, "timed out waiting for receipt", waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (c *SigningClient) resolveTipCap(ctx context.Context) (*big.Int, error) {
	if strings.TrimSpace(c.opts.MaxPriorityFeeGwei) != "" {
		v, err := parseGwei(c.opts.MaxPriorityFeeGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse max priority fee", err)
		}
		return v, nil
	}
	tipCap, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return big.NewInt(2_000_000_000), nil // 2 gwei fallback
	}
	return tipCap, nil
}

func resolveFeeCap(baseFee, tipCap *big.Int, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := parseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse max fee", err)
		}
		if v.Cmp(tipCap) < 0 {
			return nil, clierr.New(clierr.CodeUsage, "max fee must be >= max priority fee")
		}
		return v, nil
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)
	return feeCap, nil
}

func parseGwei(v string) (*big.Int, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return nil, fmt.Errorf("empty gwei value")
	}
	rat, ok := new(big.Rat).SetString(clean)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", v)
	}
	if rat.Sign() < 0 {
		return nil, fmt.Errorf("value must be non-negative")
	}
	rat.Mul(rat, big.NewRat(1_000_000_000, 1))
	if !rat.IsInt() {
		return nil, fmt.Errorf("value must resolve to an integer wei amount")
	}
	return new(big.Int).Set(rat.Num()), nil
}
