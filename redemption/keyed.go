package redemption

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"
)

// ChainBackend is a Backend that reports its chain id, like *ethclient.Client.
type ChainBackend interface {
	Backend
	ChainID(ctx context.Context) (*big.Int, error)
}

// NewKeyedSubmitter signs with a hex-encoded private key for the backend's chain.
func NewKeyedSubmitter(ctx context.Context, backend ChainBackend, hexKey string, logger *slog.Logger) (*Submitter, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid validator key: %w", err)
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	return NewSubmitter(backend, opts, chainID, logger), nil
}
