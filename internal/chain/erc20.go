package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// erc20ABI is the minimal slice of the ERC-20 interface the seeder needs.
const erc20ABI = `[
  {"type":"function","name":"allowance","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]}
]`

// Token is a bound ERC-20 staking token contract. It satisfies the
// allowance and approval needs of the liquidity seeder.
type Token struct {
	client   *Client
	contract *bind.BoundContract
	address  common.Address
	spender  common.Address
}

// NewToken binds the staking token at tokenAddr, with the market contract
// at spender as the approval target.
func NewToken(client *Client, tokenAddr, spender common.Address) (*Token, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parsing erc20 abi: %w", err)
	}
	eth := client.Backend()
	return &Token{
		client:   client,
		contract: bind.NewBoundContract(tokenAddr, parsed, eth, eth, eth),
		address:  tokenAddr,
		spender:  spender,
	}, nil
}

// Address returns the token contract address.
func (t *Token) Address() common.Address { return t.address }

// Allowance returns the market contract's remaining spend allowance for the
// operator account.
func (t *Token) Allowance(ctx context.Context, owner string) (*big.Int, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := t.contract.Call(opts, &out, "allowance", common.HexToAddress(owner), t.spender); err != nil {
		return nil, fmt.Errorf("chain: allowance call: %w", err)
	}
	return out[0].(*big.Int), nil
}

// Approve grants the market contract a spend allowance of amount and waits
// for the transaction to be mined.
func (t *Token) Approve(ctx context.Context, amount *big.Int) error {
	opts, err := t.client.transactOpts(ctx)
	if err != nil {
		return err
	}
	tx, err := t.contract.Transact(opts, "approve", t.spender, amount)
	if err != nil {
		return fmt.Errorf("chain: approve tx: %w", err)
	}
	receipt, err := bind.WaitMined(ctx, t.client.Backend(), tx)
	if err != nil {
		return fmt.Errorf("chain: waiting for approve %s: %w", tx.Hash(), err)
	}
	if receipt.Status == 0 {
		return fmt.Errorf("chain: approve %s reverted", tx.Hash())
	}
	return nil
}

// BalanceOf returns the token balance of account.
func (t *Token) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := t.contract.Call(opts, &out, "balanceOf", account); err != nil {
		return nil, fmt.Errorf("chain: balanceOf call: %w", err)
	}
	return out[0].(*big.Int), nil
}
