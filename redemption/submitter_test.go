package redemption

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"ticketfy-checkin/contracts"
	"ticketfy-checkin/contracts/chaintest"
	"ticketfy-checkin/models"
)

var (
	eventAddr  = common.HexToAddress("0x00000000000000000000000000000000000e0e01")
	ticketAddr = common.HexToAddress("0x00000000000000000000000000000000000071c1")
	ownerAddr  = common.HexToAddress("0x0000000000000000000000000000000000000a0a")
)

type fixture struct {
	chain     *chaintest.Chain
	key       *ecdsa.PrivateKey
	opts      *bind.TransactOpts
	submitter *Submitter
}

func newFixture(t *testing.T, authorized bool) *fixture {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	chain := chaintest.New()
	opts, err := bind.NewKeyedTransactorWithChainID(key, chain.ChainID())
	if err != nil {
		t.Fatal(err)
	}
	if authorized {
		chain.Deploy(eventAddr, 10, opts.From)
	} else {
		chain.Deploy(eventAddr, 10)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		chain:     chain,
		key:       key,
		opts:      opts,
		submitter: NewSubmitter(chain, opts, chain.ChainID(), logger),
	}
}

func (f *fixture) request() Request {
	return Request{
		TicketID:  ticketAddr.Hex(),
		EventID:   eventAddr.Hex(),
		Owner:     ownerAddr.Hex(),
		Validator: f.opts.From.Hex(),
	}
}

func TestSubmitSuccess(t *testing.T) {
	f := newFixture(t, true)

	receipt, err := f.submitter.Submit(context.Background(), f.request())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if receipt.TxHash == "" || receipt.BlockNumber == 0 {
		t.Errorf("receipt = %+v", receipt)
	}
	if !f.chain.IsRedeemed(eventAddr, ticketAddr) {
		t.Error("ticket not redeemed on chain")
	}

	sent := f.chain.Sent[0]
	if sent.Type() != types.DynamicFeeTxType || *sent.To() != eventAddr {
		t.Errorf("unexpected transaction: type %d to %s", sent.Type(), sent.To())
	}
}

func TestSubmitTwiceIsAlreadyRedeemed(t *testing.T) {
	f := newFixture(t, true)

	if _, err := f.submitter.Submit(context.Background(), f.request()); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	_, err := f.submitter.Submit(context.Background(), f.request())
	if models.KindOf(err) != models.KindAlreadyRedeemed {
		t.Fatalf("second Submit kind = %q, want already_redeemed (%v)", models.KindOf(err), err)
	}
	if got := f.chain.RedemptionsSent(); got != 1 {
		t.Errorf("transactions sent = %d, want 1", got)
	}
}

func TestSubmitRaceDetectedAfterMining(t *testing.T) {
	f := newFixture(t, true)
	f.chain.BeforeSend = func() { f.chain.Redeem(eventAddr, ticketAddr) }

	_, err := f.submitter.Submit(context.Background(), f.request())
	if models.KindOf(err) != models.KindAlreadyRedeemed {
		t.Fatalf("kind = %q, want already_redeemed (%v)", models.KindOf(err), err)
	}
}

func TestSubmitNotValidator(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.submitter.Submit(context.Background(), f.request())
	if models.KindOf(err) != models.KindSubmissionFailed {
		t.Fatalf("kind = %q, want submission_failed", models.KindOf(err))
	}
	if got := models.MessageOf(err); got != "check-in failed (NotValidator), retry" {
		t.Errorf("message = %q", got)
	}
	if f.chain.RedemptionsSent() != 0 {
		t.Error("transaction sent despite failed simulation")
	}
}

func TestSubmitSignerDeclines(t *testing.T) {
	f := newFixture(t, true)
	f.submitter.signer = func(common.Address, *types.Transaction) (*types.Transaction, error) {
		return nil, errors.New("user rejected the request")
	}

	_, err := f.submitter.Submit(context.Background(), f.request())
	if models.KindOf(err) != models.KindSubmissionRejected {
		t.Fatalf("kind = %q, want submission_rejected", models.KindOf(err))
	}
	if f.chain.RedemptionsSent() != 0 {
		t.Error("transaction sent after signer declined")
	}
}

func TestSubmitNetworkFailure(t *testing.T) {
	f := newFixture(t, true)
	f.chain.SendErr = &net.OpError{Op: "write", Net: "tcp", Err: errors.New("connection reset by peer")}

	_, err := f.submitter.Submit(context.Background(), f.request())
	if models.KindOf(err) != models.KindTransient {
		t.Fatalf("kind = %q, want transient", models.KindOf(err))
	}
}

func TestSubmitValidatesInput(t *testing.T) {
	f := newFixture(t, true)

	req := f.request()
	req.Owner = "Ana"
	if _, err := f.submitter.Submit(context.Background(), req); models.KindOf(err) != models.KindSubmissionFailed {
		t.Errorf("bad owner kind = %q", models.KindOf(err))
	}

	req = f.request()
	req.Validator = ownerAddr.Hex()
	if _, err := f.submitter.Submit(context.Background(), req); models.KindOf(err) != models.KindSubmissionFailed {
		t.Errorf("mismatched validator kind = %q", models.KindOf(err))
	}
	if f.chain.RedemptionsSent() != 0 {
		t.Error("invalid request reached the chain")
	}
}

func TestClassifyTextFallback(t *testing.T) {
	event, err := contracts.NewEventContract(chaintest.New(), eventAddr.Hex())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		err  error
		want models.ErrorKind
	}{
		{errors.New("AnchorError: TicketAlreadyRedeemed. Error Number: 6003"), models.KindAlreadyRedeemed},
		{errors.New("execution reverted: ticket already redeemed"), models.KindAlreadyRedeemed},
		{errors.New("execution reverted"), models.KindSubmissionFailed},
		{context.DeadlineExceeded, models.KindTransient},
		{errors.New("insufficient funds for gas"), models.KindSubmissionFailed},
	}
	for _, tt := range tests {
		if got := models.KindOf(Classify(event, tt.err)); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.err, got, tt.want)
		}
	}
	if Classify(event, nil) != nil {
		t.Error("Classify(nil) != nil")
	}
}
