package dex

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet holds the signing key for trade execution. The key stays in an
// unexported field so it can never leak through JSON marshaling or %+v
// formatting of the exported surface.
type Wallet struct {
	key *ecdsa.PrivateKey

	// Address is the account derived from the key.
	Address common.Address `json:"address"`
}

// NewWallet parses a hex-encoded private key, with or without 0x prefix.
func NewWallet(hexKey string) (*Wallet, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Wallet{
		key:     key,
		Address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Sign signs tx for the given chain.
func (w *Wallet) Sign(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
}

// String returns the account address only.
func (w *Wallet) String() string {
	return w.Address.Hex()
}
