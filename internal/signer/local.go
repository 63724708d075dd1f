package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	clierr "github.com/ggonzalez94/agent-wallet/internal/errors"
)

type LocalSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

func (s *LocalSigner) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	if s == nil || s.privateKey == nil {
		return nil, errors.New("local signer is not initialized")
	}
	signer := types.LatestSignerForChainID(chainID)
	return types.SignTx(tx, signer, s.privateKey)
}

// PrivateKeyHex returns the 0x-prefixed hex secret of the signer.
func (s *LocalSigner) PrivateKeyHex() string {
	return hexutil.Encode(crypto.FromECDSA(s.privateKey))
}

// GenerateLocalSigner creates a signer over a fresh secp256k1 key.
func GenerateLocalSigner() (*LocalSigner, error) {
	pk, err := crypto.GenerateKey()
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "generate private key", err)
	}
	return fromKey(pk)
}

func NewLocalSignerFromHex(raw string) (*LocalSigner, error) {
	pk, err := parseHexKey(raw)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "load private key", err)
	}
	return fromKey(pk)
}

// NewLocalSignerFromKeystore decrypts a go-ethereum keystore v3 file.
func NewLocalSignerFromKeystore(path, password string) (*LocalSigner, error) {
	if strings.TrimSpace(password) == "" {
		return nil, clierr.New(clierr.CodeUsage, "keystore password is required")
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "read keystore file", err)
	}
	key, err := keystore.DecryptKey(buf, password)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "decrypt keystore", err)
	}
	return fromKey(key.PrivateKey)
}

// AddressFromHex derives the checksummed address of a hex private key.
func AddressFromHex(raw string) (common.Address, error) {
	s, err := NewLocalSignerFromHex(raw)
	if err != nil {
		return common.Address{}, err
	}
	return s.Address(), nil
}

func fromKey(pk *ecdsa.PrivateKey) (*LocalSigner, error) {
	pub, ok := pk.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, clierr.New(clierr.CodeSigner, "invalid ECDSA public key")
	}
	return &LocalSigner{privateKey: pk, address: crypto.PubkeyToAddress(*pub)}, nil
}

func parseHexKey(raw string) (*ecdsa.PrivateKey, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.TrimPrefix(clean, "0x")
	if clean == "" {
		return nil, fmt.Errorf("empty private key")
	}
	pk, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return pk, nil
}
