package redemption

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"ticketfy-checkin/contracts/chaintest"
)

type chainWithID struct {
	*chaintest.Chain
	err error
}

func (c chainWithID) ChainID(ctx context.Context) (*big.Int, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.Chain.ChainID(), nil
}

func TestNewKeyedSubmitter(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	hexKey := "0x" + hex.EncodeToString(crypto.FromECDSA(key))
	chain := chaintest.New()
	want := crypto.PubkeyToAddress(key.PublicKey)
	chain.Deploy(eventAddr, 1, want)

	s, err := NewKeyedSubmitter(context.Background(), chainWithID{Chain: chain}, hexKey, nil)
	if err != nil {
		t.Fatalf("NewKeyedSubmitter: %v", err)
	}
	if s.Identity() != want.Hex() {
		t.Errorf("identity = %s, want %s", s.Identity(), want.Hex())
	}

	req := Request{TicketID: ticketAddr.Hex(), EventID: eventAddr.Hex(), Owner: ownerAddr.Hex(), Validator: want.Hex()}
	if _, err := s.Submit(context.Background(), req); err != nil {
		t.Fatalf("Submit: %v", err)
	}
}

func TestNewKeyedSubmitterErrors(t *testing.T) {
	chain := chaintest.New()
	if _, err := NewKeyedSubmitter(context.Background(), chainWithID{Chain: chain}, "nothex", nil); err == nil {
		t.Error("bad key accepted")
	}

	key, _ := crypto.GenerateKey()
	rpcErr := errors.New("dial tcp: connection refused")
	_, err := NewKeyedSubmitter(context.Background(), chainWithID{Chain: chain, err: rpcErr}, hex.EncodeToString(crypto.FromECDSA(key)), nil)
	if !errors.Is(err, rpcErr) {
		t.Errorf("err = %v", err)
	}
}
