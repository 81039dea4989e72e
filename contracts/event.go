package contracts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// EventABI is the subset of the ticketing event contract used by the validator console.
const EventABI = `[
{"inputs":[],"name":"getValidators","outputs":[{"internalType":"address[]","name":"","type":"address[]"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"totalTicketsSold","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"address","name":"ticket","type":"address"},{"internalType":"address","name":"owner","type":"address"}],"name":"redeemTicket","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[],"name":"TicketAlreadyRedeemed","type":"error"},
{"inputs":[],"name":"NotValidator","type":"error"},
{"inputs":[],"name":"TicketNotOwned","type":"error"}
]`

const alreadyRedeemedError = "TicketAlreadyRedeemed"

// Caller is the read side of an Ethereum client. *ethclient.Client satisfies it.
type Caller interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// EventContract wraps the ticketing event contract interactions
type EventContract struct {
	caller  Caller
	address common.Address
	abi     abi.ABI
}

// NewEventContract creates a new EventContract instance
func NewEventContract(caller Caller, address string) (*EventContract, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid event address: %q", address)
	}

	parsedABI, err := abi.JSON(strings.NewReader(EventABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse event ABI: %w", err)
	}

	return &EventContract{
		caller:  caller,
		address: common.HexToAddress(address),
		abi:     parsedABI,
	}, nil
}

func (ec *EventContract) Address() common.Address { return ec.address }

// Exists reports whether contract code is deployed at the event address.
func (ec *EventContract) Exists(ctx context.Context) (bool, error) {
	code, err := ec.caller.CodeAt(ctx, ec.address, nil)
	if err != nil {
		return false, fmt.Errorf("failed to read event code: %w", err)
	}
	return len(code) > 0, nil
}

// Validators calls getValidators() on the event contract
func (ec *EventContract) Validators(ctx context.Context) ([]common.Address, error) {
	result, err := ec.call(ctx, "getValidators")
	if err != nil {
		return nil, err
	}

	var validators []common.Address
	if err := ec.abi.UnpackIntoInterface(&validators, "getValidators", result); err != nil {
		return nil, fmt.Errorf("failed to unpack getValidators result: %w", err)
	}
	return validators, nil
}

// TotalTicketsSold calls totalTicketsSold() on the event contract
func (ec *EventContract) TotalTicketsSold(ctx context.Context) (*big.Int, error) {
	result, err := ec.call(ctx, "totalTicketsSold")
	if err != nil {
		return nil, err
	}

	var total *big.Int
	if err := ec.abi.UnpackIntoInterface(&total, "totalTicketsSold", result); err != nil {
		return nil, fmt.Errorf("failed to unpack totalTicketsSold result: %w", err)
	}
	return total, nil
}

// PackRedeem returns the call data for redeemTicket(ticket, owner).
func (ec *EventContract) PackRedeem(ticket, owner common.Address) ([]byte, error) {
	data, err := ec.abi.Pack("redeemTicket", ticket, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to pack redeemTicket call data: %w", err)
	}
	return data, nil
}

// IsAlreadyRedeemed reports whether revert data carries the TicketAlreadyRedeemed() error.
func (ec *EventContract) IsAlreadyRedeemed(revert []byte) bool {
	custom, ok := ec.abi.Errors[alreadyRedeemedError]
	if !ok || len(revert) < 4 {
		return false
	}
	return bytes.Equal(revert[:4], custom.ID[:4])
}

// RevertReason decodes revert data into a custom error name or an Error(string) reason.
func (ec *EventContract) RevertReason(revert []byte) string {
	if len(revert) < 4 {
		return ""
	}
	for name, custom := range ec.abi.Errors {
		if bytes.Equal(revert[:4], custom.ID[:4]) {
			return name
		}
	}
	if reason, err := abi.UnpackRevert(revert); err == nil {
		return reason
	}
	return ""
}

func (ec *EventContract) call(ctx context.Context, method string) ([]byte, error) {
	callData, err := ec.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call data: %w", method, err)
	}

	result, err := ec.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &ec.address,
		Data: callData,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	return result, nil
}

// RevertData extracts the revert payload from a JSON-RPC error, if the node sent one.
func RevertData(err error) ([]byte, bool) {
	var dataErr interface{ ErrorData() interface{} }
	if !errors.As(err, &dataErr) {
		return nil, false
	}
	switch data := dataErr.ErrorData().(type) {
	case string:
		decoded, decodeErr := hexutil.Decode(data)
		if decodeErr != nil {
			return nil, false
		}
		return decoded, true
	case []byte:
		return data, true
	}
	return nil, false
}
