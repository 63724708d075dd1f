package signer

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	clierr "github.com/ggonzalez94/agent-wallet/internal/errors"
)

const testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

func TestNewLocalSignerFromHexSigns(t *testing.T) {
	s, err := NewLocalSignerFromHex("0x" + testPrivateKey)
	if err != nil {
		t.Fatalf("NewLocalSignerFromHex failed: %v", err)
	}
	if s.Address() == (common.Address{}) {
		t.Fatal("expected non-zero signer address")
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
	from, err := types.Sender(types.LatestSignerForChainID(common.Big1), signed)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if from != s.Address() {
		t.Fatalf("expected sender %s, got %s", s.Address().Hex(), from.Hex())
	}
}

func TestGenerateLocalSignerRoundTripsHex(t *testing.T) {
	s, err := GenerateLocalSigner()
	if err != nil {
		t.Fatalf("GenerateLocalSigner failed: %v", err)
	}
	hexKey := s.PrivateKeyHex()
	if !strings.HasPrefix(hexKey, "0x") || len(hexKey) != 66 {
		t.Fatalf("unexpected key encoding %q", hexKey)
	}
	again, err := NewLocalSignerFromHex(hexKey)
	if err != nil {
		t.Fatalf("reload generated key: %v", err)
	}
	if again.Address() != s.Address() {
		t.Fatalf("address mismatch after reload: %s vs %s", again.Address().Hex(), s.Address().Hex())
	}
}

func TestAddressFromHexRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "0x", "not-a-key", "0x1234"} {
		_, err := AddressFromHex(raw)
		if err == nil {
			t.Fatalf("expected error for %q", raw)
		}
		if !clierr.Is(err, clierr.CodeSigner) {
			t.Fatalf("expected signer code for %q, got %v", raw, err)
		}
	}
}

func TestNewLocalSignerFromKeystore(t *testing.T) {
	pk, err := crypto.HexToECDSA(testPrivateKey)
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	key := &keystore.Key{Id: uuid.New(), Address: crypto.PubkeyToAddress(pk.PublicKey), PrivateKey: pk}
	blob, err := keystore.EncryptKey(key, "pass", keystore.LightScryptN, keystore.LightScryptP)
	if err != nil {
		t.Fatalf("encrypt keystore: %v", err)
	}
	path := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatalf("write keystore: %v", err)
	}

	s, err := NewLocalSignerFromKeystore(path, "pass")
	if err != nil {
		t.Fatalf("NewLocalSignerFromKeystore failed: %v", err)
	}
	if s.Address() != key.Address {
		t.Fatalf("expected %s, got %s", key.Address.Hex(), s.Address().Hex())
	}
	if _, err := NewLocalSignerFromKeystore(path, "wrong"); err == nil {
		t.Fatal("expected wrong password to fail")
	}
	if _, err := NewLocalSignerFromKeystore(path, ""); !clierr.Is(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error for empty password, got %v", err)
	}
}

func ptrAddress(v common.Address) *common.Address { return &v }
