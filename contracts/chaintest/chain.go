// Package chaintest provides an in-memory stand-in for an Ethereum node hosting
// ticketing event contracts.
package chaintest

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"ticketfy-checkin/contracts"
)

// Event is the state of one deployed event contract.
type Event struct {
	Validators []common.Address
	Sold       *big.Int
	Redeemed   map[common.Address]bool
}

// RevertError mimics the JSON-RPC error returned for a reverted call.
type RevertError struct {
	Data []byte
}

func (e *RevertError) Error() string          { return "execution reverted" }
func (e *RevertError) ErrorCode() int         { return 3 }
func (e *RevertError) ErrorData() interface{} { return hexutil.Encode(e.Data) }

// Chain implements the read and transact surface used by the console.
type Chain struct {
	mu       sync.Mutex
	abi      abi.ABI
	chainID  *big.Int
	events   map[common.Address]*Event
	receipts map[common.Hash]*types.Receipt
	block    uint64
	nonces   map[common.Address]uint64

	// CallErr, when set, fails every read.
	CallErr error
	// SendErr, when set, fails SendTransaction.
	SendErr error
	// BeforeSend runs after simulation and before the transaction executes.
	BeforeSend func()
	// OnCall runs at the start of every CallContract.
	OnCall func(ctx context.Context) error

	Sent  []*types.Transaction
	Calls int
}

func New() *Chain {
	parsed, err := abi.JSON(strings.NewReader(contracts.EventABI))
	if err != nil {
		panic(err)
	}
	return &Chain{
		abi:      parsed,
		chainID:  big.NewInt(1337),
		events:   make(map[common.Address]*Event),
		receipts: make(map[common.Hash]*types.Receipt),
		nonces:   make(map[common.Address]uint64),
		block:    100,
	}
}

func (c *Chain) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

// Deploy installs an event contract at address.
func (c *Chain) Deploy(address common.Address, sold int64, validators ...common.Address) *Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev := &Event{Validators: validators, Sold: big.NewInt(sold), Redeemed: make(map[common.Address]bool)}
	c.events[address] = ev
	return ev
}

// Redeem marks a ticket redeemed directly, as another validator would.
func (c *Chain) Redeem(event, ticket common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[event].Redeemed[ticket] = true
}

func (c *Chain) IsRedeemed(event, ticket common.Address) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[event].Redeemed[ticket]
}

// RedemptionsSent counts redeemTicket transactions that reached the chain.
func (c *Chain) RedemptionsSent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}

func (c *Chain) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CallErr != nil {
		return nil, c.CallErr
	}
	if _, ok := c.events[account]; ok {
		return []byte{0x60, 0x80}, nil
	}
	return nil, nil
}

func (c *Chain) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if c.OnCall != nil {
		if err := c.OnCall(ctx); err != nil {
			return nil, err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls++
	if c.CallErr != nil {
		return nil, c.CallErr
	}
	return c.execute(call.From, call.To, call.Data, false)
}

func (c *Chain) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.execute(call.From, call.To, call.Data, false); err != nil {
		return 0, err
	}
	return 65000, nil
}

func (c *Chain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonces[account], nil
}

func (c *Chain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &types.Header{Number: new(big.Int).SetUint64(c.block), BaseFee: big.NewInt(1_000_000_000)}, nil
}

func (c *Chain) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000), nil
}

func (c *Chain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if c.BeforeSend != nil {
		c.BeforeSend()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return c.SendErr
	}
	from, err := types.Sender(types.LatestSignerForChainID(c.chainID), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	c.Sent = append(c.Sent, tx)
	c.nonces[from] = tx.Nonce() + 1
	c.block++

	status := types.ReceiptStatusSuccessful
	if _, err := c.execute(from, tx.To(), tx.Data(), true); err != nil {
		status = types.ReceiptStatusFailed
	}
	c.receipts[tx.Hash()] = &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(c.block),
		GasUsed:     52000,
	}
	return nil
}

func (c *Chain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	receipt, ok := c.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (c *Chain) execute(from common.Address, to *common.Address, data []byte, commit bool) ([]byte, error) {
	if to == nil || len(data) < 4 {
		return nil, fmt.Errorf("invalid call")
	}
	ev, ok := c.events[*to]
	if !ok {
		return nil, nil
	}
	method, err := c.abi.MethodById(data[:4])
	if err != nil {
		return nil, &RevertError{}
	}
	switch method.Name {
	case "getValidators":
		return method.Outputs.Pack(ev.Validators)
	case "totalTicketsSold":
		return method.Outputs.Pack(ev.Sold)
	case "redeemTicket":
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, &RevertError{}
		}
		ticket := args[0].(common.Address)
		if !contains(ev.Validators, from) {
			return nil, c.revert("NotValidator")
		}
		if ev.Redeemed[ticket] {
			return nil, c.revert("TicketAlreadyRedeemed")
		}
		if commit {
			ev.Redeemed[ticket] = true
		}
		return nil, nil
	}
	return nil, &RevertError{}
}

func (c *Chain) revert(name string) error {
	id := c.abi.Errors[name].ID
	return &RevertError{Data: append([]byte(nil), id[:4]...)}
}

func contains(list []common.Address, addr common.Address) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}
