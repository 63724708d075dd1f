package app

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/agent-wallet/internal/chainclient"
	clierr "github.com/ggonzalez94/agent-wallet/internal/errors"
	"github.com/ggonzalez94/agent-wallet/internal/out"
	"github.com/ggonzalez94/agent-wallet/internal/transfer"
)

func (s *runtimeState) newTransferCommand() *cobra.Command {
	var (
		userID, chain, to, amount, token, data string
		decimals                               int
		wait                                   bool
	)
	send := chainclient.DefaultSendOptions()
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Send native currency or an ERC-20 token from the user's wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			s.lastUser = userID
			if send.GasMultiplier <= 1 {
				return clierr.New(clierr.CodeUsage, "--gas-multiplier must be > 1")
			}
			extra := send.ReceiptTimeout
			if !wait {
				extra = 0
			}
			ctx, cancel := s.commandContext(cmd, extra)
			defer cancel()

			p, err := s.res.Provider(ctx, userID, chain, send)
			if err != nil {
				return err
			}
			cfg, err := p.ChainConfig("")
			if err != nil {
				return err
			}
			s.lastChain = p.CurrentChain()

			req := transfer.Request{To: to, Amount: amount, Data: data, Wait: wait}
			if strings.TrimSpace(token) != "" {
				tok, d, err := resolveTokenDecimals(ctx, p, cfg, token, decimals, true)
				if err != nil {
					return err
				}
				req.Token = tok.Address
				req.Decimals = d
			}

			sc, err := p.SigningClient(ctx, "")
			if err != nil {
				return err
			}
			defer sc.Close()

			res, err := transfer.Execute(ctx, sc, cfg, req)
			if err != nil {
				if res.Hash != "" {
					s.log.Error().Err(err).Str("hash", res.Hash).Str("status", res.Status).Msg("transfer broadcast but not confirmed")
				}
				return err
			}
			s.log.Info().Str("hash", res.Hash).Str("chain", res.Chain).Str("status", res.Status).Msg("transfer sent")
			return s.emitSuccess(cmd, res, nil, out.CacheBypass())
		},
	}
	addUserFlag(cmd, &userID)
	cmd.Flags().StringVar(&chain, "chain", "", "Chain to send on (default: first configured chain)")
	cmd.Flags().StringVar(&to, "to", "", "Recipient address")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount in decimal units, e.g. 0.25")
	cmd.Flags().StringVar(&token, "token", "", "Token symbol or address (default: native currency)")
	cmd.Flags().IntVar(&decimals, "decimals", -1, "Token decimals (default: registry or on-chain lookup)")
	cmd.Flags().StringVar(&data, "data", "", "Optional 0x calldata for native transfers")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the transaction receipt")
	cmd.Flags().Float64Var(&send.GasMultiplier, "gas-multiplier", send.GasMultiplier, "Gas limit multiplier applied to estimates")
	cmd.Flags().StringVar(&send.MaxFeeGwei, "max-fee-gwei", "", "Max fee per gas in gwei")
	cmd.Flags().StringVar(&send.MaxPriorityFeeGwei, "max-priority-fee-gwei", "", "Max priority fee per gas in gwei")
	cmd.Flags().DurationVar(&send.ReceiptTimeout, "receipt-timeout", send.ReceiptTimeout, "How long --wait polls for a receipt")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
