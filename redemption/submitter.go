// Package redemption submits redeemTicket transactions to an event contract.
package redemption

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"ticketfy-checkin/contracts"
	"ticketfy-checkin/models"
)

// Backend is the subset of *ethclient.Client needed to simulate, send and confirm a
// redemption.
type Backend interface {
	contracts.Caller
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Request binds one redemption to its ticket, event, owner and validator.
type Request struct {
	TicketID  string
	EventID   string
	Owner     string
	Validator string
}

type Submitter struct {
	backend Backend
	from    common.Address
	signer  bind.SignerFn
	chainID *big.Int
	logger  *slog.Logger
}

// NewSubmitter signs with opts.Signer as opts.From. Use bind.NewKeyedTransactorWithChainID
// for a local key or any other SignerFn for an external signer.
func NewSubmitter(backend Backend, opts *bind.TransactOpts, chainID *big.Int, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{
		backend: backend,
		from:    opts.From,
		signer:  opts.Signer,
		chainID: chainID,
		logger:  logger,
	}
}

// Identity is the validator address transactions are signed as.
func (s *Submitter) Identity() string { return s.from.Hex() }

// Submit simulates, signs and sends redeemTicket and blocks until the transaction is
// mined or a terminal error occurs. It never retries. Errors are *models.Error.
func (s *Submitter) Submit(ctx context.Context, req Request) (models.Receipt, error) {
	for _, addr := range []string{req.EventID, req.TicketID, req.Owner} {
		if !common.IsHexAddress(addr) {
			return models.Receipt{}, models.NewError(models.KindSubmissionFailed, "check-in failed, invalid address", fmt.Errorf("invalid address %q", addr))
		}
	}
	if req.Validator != "" && common.HexToAddress(req.Validator) != s.from {
		return models.Receipt{}, models.NewError(models.KindSubmissionFailed, "check-in failed, validator does not match signer",
			fmt.Errorf("validator %s, signer %s", req.Validator, s.from.Hex()))
	}

	event, err := contracts.NewEventContract(s.backend, req.EventID)
	if err != nil {
		return models.Receipt{}, models.NewError(models.KindSubmissionFailed, models.DefaultMessage(models.KindSubmissionFailed), err)
	}
	data, err := event.PackRedeem(common.HexToAddress(req.TicketID), common.HexToAddress(req.Owner))
	if err != nil {
		return models.Receipt{}, models.NewError(models.KindSubmissionFailed, models.DefaultMessage(models.KindSubmissionFailed), err)
	}
	to := event.Address()
	msg := ethereum.CallMsg{From: s.from, To: &to, Data: data}

	gas, err := s.backend.EstimateGas(ctx, msg)
	if err != nil {
		return models.Receipt{}, Classify(event, fmt.Errorf("failed to simulate redeemTicket: %w", err))
	}

	tx, err := s.buildTx(ctx, to, data, gas)
	if err != nil {
		return models.Receipt{}, Classify(event, err)
	}

	signed, err := s.signer(s.from, tx)
	if err != nil {
		s.logger.Info("redemption signing declined", "ticket", req.TicketID, "error", err)
		return models.Receipt{}, models.NewError(models.KindSubmissionRejected, models.DefaultMessage(models.KindSubmissionRejected), err)
	}

	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return models.Receipt{}, Classify(event, fmt.Errorf("failed to send redeemTicket: %w", err))
	}
	s.logger.Info("redemption sent", "ticket", req.TicketID, "event", req.EventID, "tx", signed.Hash().Hex())

	receipt, err := bind.WaitMined(ctx, s.backend, signed)
	if err != nil {
		return models.Receipt{}, models.NewError(models.KindTransient, "check-in status unknown, check recent entries before retrying",
			fmt.Errorf("failed waiting for %s: %w", signed.Hash().Hex(), err))
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		// Replay at the mined block to learn why the transaction reverted.
		_, replayErr := s.backend.CallContract(ctx, msg, receipt.BlockNumber)
		if replayErr == nil {
			replayErr = errors.New("transaction reverted")
		}
		return models.Receipt{}, Classify(event, fmt.Errorf("redeemTicket %s reverted: %w", signed.Hash().Hex(), replayErr))
	}

	return models.Receipt{
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}, nil
}

func (s *Submitter) buildTx(ctx context.Context, to common.Address, data []byte, gas uint64) (*types.Transaction, error) {
	nonce, err := s.backend.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	head, err := s.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest header: %w", err)
	}
	tip, err := s.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas tip: %w", err)
	}

	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas + gas/5,
		To:        &to,
		Data:      data,
	}), nil
}
