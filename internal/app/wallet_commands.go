package app

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/agent-wallet/internal/custody"
	clierr "github.com/ggonzalez94/agent-wallet/internal/errors"
	"github.com/ggonzalez94/agent-wallet/internal/out"
	"github.com/ggonzalez94/agent-wallet/internal/signer"
)

type walletView struct {
	UserID     string    `json:"user_id"`
	Address    string    `json:"address"`
	PrivateKey string    `json:"private_key,omitempty"`
	Created    *bool     `json:"created,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func newWalletView(w custody.Wallet) walletView {
	return walletView{
		UserID:    w.UserID,
		Address:   w.Address,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

func (s *runtimeState) newWalletCommand() *cobra.Command {
	root := &cobra.Command{Use: "wallet", Short: "Create and manage per-user custodial wallets"}
	root.AddCommand(s.newWalletCreateCommand())
	root.AddCommand(s.newWalletShowCommand())
	root.AddCommand(s.newWalletRotateCommand())
	root.AddCommand(s.newWalletDeleteCommand())
	root.AddCommand(s.newWalletInfoCommand())
	return root
}

func (s *runtimeState) newWalletCreateCommand() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Return the user's wallet, creating it on first use",
		RunE: func(cmd *cobra.Command, args []string) error {
			s.lastUser = userID
			ctx, cancel := s.commandContext(cmd, 0)
			defer cancel()
			svc, err := s.res.Custody(ctx)
			if err != nil {
				return err
			}
			_, existed, err := svc.Lookup(ctx, userID)
			if err != nil {
				return err
			}
			w, err := svc.GetOrCreate(ctx, userID)
			if err != nil {
				return err
			}
			view := newWalletView(w)
			created := !existed
			view.Created = &created
			return s.emitSuccess(cmd, view, nil, out.CacheBypass())
		},
	}
	addUserFlag(cmd, &userID)
	return cmd
}

func (s *runtimeState) newWalletShowCommand() *cobra.Command {
	var (
		userID string
		reveal bool
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show an existing wallet without creating one",
		RunE: func(cmd *cobra.Command, args []string) error {
			s.lastUser = userID
			ctx, cancel := s.commandContext(cmd, 0)
			defer cancel()
			svc, err := s.res.Custody(ctx)
			if err != nil {
				return err
			}
			w, found, err := svc.Lookup(ctx, userID)
			if err != nil {
				return err
			}
			if !found {
				return clierr.New(clierr.CodeNotFound, "no wallet for user "+userID)
			}
			view := newWalletView(w)
			var warnings []string
			if reveal {
				view.PrivateKey = "0x" + strings.TrimPrefix(w.PrivateKey, "0x")
				warnings = append(warnings, "output contains a plaintext private key")
			}
			return s.emitSuccess(cmd, view, warnings, out.CacheTTL("wallet", s.settings.WalletCacheTTL))
		},
	}
	addUserFlag(cmd, &userID)
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Include the plaintext private key")
	return cmd
}

func (s *runtimeState) newWalletRotateCommand() *cobra.Command {
	var (
		userID        string
		privateKeyEnv string
		keystorePath  string
		passwordEnv   string
		confirm       bool
	)
	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Replace the user's key with an imported or freshly generated one",
		RunE: func(cmd *cobra.Command, args []string) error {
			s.lastUser = userID
			if !confirm {
				return clierr.New(clierr.CodeUsage, "wallet rotate replaces the signing key; pass --yes to confirm")
			}
			key, err := replacementKey(privateKeyEnv, keystorePath, passwordEnv)
			if err != nil {
				return err
			}
			addr, err := signer.AddressFromHex(key)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "replacement key is not a valid private key", err)
			}

			ctx, cancel := s.commandContext(cmd, 0)
			defer cancel()
			svc, err := s.res.Custody(ctx)
			if err != nil {
				return err
			}
			if err := svc.Update(ctx, userID, custody.WalletUpdate{PrivateKey: &key}); err != nil {
				return err
			}
			w, found, err := svc.Lookup(ctx, userID)
			if err != nil {
				return err
			}
			if !found || !strings.EqualFold(w.Address, addr.Hex()) {
				return clierr.New(clierr.CodeInternal, "rotated wallet did not persist the new key")
			}
			s.log.Info().Str("user_id", userID).Str("address", addr.Hex()).Msg("wallet key rotated")
			return s.emitSuccess(cmd, newWalletView(w), nil, out.CacheBypass())
		},
	}
	addUserFlag(cmd, &userID)
	cmd.Flags().StringVar(&privateKeyEnv, "private-key-env", "", "Environment variable holding the hex private key to import")
	cmd.Flags().StringVar(&keystorePath, "keystore", "", "Keystore v3 file to import")
	cmd.Flags().StringVar(&passwordEnv, "password-env", "", "Environment variable holding the keystore password")
	cmd.Flags().BoolVar(&confirm, "yes", false, "Confirm the key replacement")
	return cmd
}

// replacementKey reads the key named by the flags, or generates one when
// neither an env var nor a keystore is given.
func replacementKey(privateKeyEnv, keystorePath, passwordEnv string) (string, error) {
	privateKeyEnv = strings.TrimSpace(privateKeyEnv)
	keystorePath = strings.TrimSpace(keystorePath)
	switch {
	case privateKeyEnv != "" && keystorePath != "":
		return "", clierr.New(clierr.CodeUsage, "use either --private-key-env or --keystore, not both")
	case privateKeyEnv != "":
		v := strings.TrimSpace(os.Getenv(privateKeyEnv))
		if v == "" {
			return "", clierr.New(clierr.CodeUsage, "environment variable "+privateKeyEnv+" is empty")
		}
		return v, nil
	case keystorePath != "":
		if strings.TrimSpace(passwordEnv) == "" {
			return "", clierr.New(clierr.CodeUsage, "--keystore requires --password-env")
		}
		ks, err := signer.NewLocalSignerFromKeystore(keystorePath, os.Getenv(passwordEnv))
		if err != nil {
			return "", err
		}
		return ks.PrivateKeyHex(), nil
	default:
		fresh, err := signer.GenerateLocalSigner()
		if err != nil {
			return "", err
		}
		return fresh.PrivateKeyHex(), nil
	}
}

func (s *runtimeState) newWalletDeleteCommand() *cobra.Command {
	var (
		userID  string
		confirm bool
	)
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the user's wallet record",
		RunE: func(cmd *cobra.Command, args []string) error {
			s.lastUser = userID
			if !confirm {
				return clierr.New(clierr.CodeUsage, "wallet delete destroys the stored key; pass --yes to confirm")
			}
			ctx, cancel := s.commandContext(cmd, 0)
			defer cancel()
			svc, err := s.res.Custody(ctx)
			if err != nil {
				return err
			}
			if err := svc.Delete(ctx, userID); err != nil {
				return err
			}
			return s.emitSuccess(cmd, map[string]any{"user_id": userID, "deleted": true}, nil, out.CacheBypass())
		},
	}
	addUserFlag(cmd, &userID)
	cmd.Flags().BoolVar(&confirm, "yes", false, "Confirm the deletion")
	return cmd
}

func (s *runtimeState) newWalletInfoCommand() *cobra.Command {
	var userID, chain string
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show address, native balance and chain metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			s.lastUser = userID
			ctx, cancel := s.commandContext(cmd, 0)
			defer cancel()
			p, err := s.res.Provider(ctx, userID, chain, defaultSend())
			if err != nil {
				return err
			}
			s.lastChain = p.CurrentChain()
			info, err := p.Info(ctx, "")
			if err != nil {
				return err
			}
			var warnings []string
			if !info.BalanceKnown {
				warnings = append(warnings, "native balance unavailable on "+info.Chain)
			}
			return s.emitSuccess(cmd, info, warnings, s.balanceCacheStatus())
		},
	}
	addUserFlag(cmd, &userID)
	cmd.Flags().StringVar(&chain, "chain", "", "Chain to report on (default: first configured chain)")
	return cmd
}

func addUserFlag(cmd *cobra.Command, userID *string) {
	cmd.Flags().StringVar(userID, "user", "", "User identifier owning the wallet")
	_ = cmd.MarkFlagRequired("user")
}
