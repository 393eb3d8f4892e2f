// Package chain provides the on-chain clients for the prediction market
// contract and its staking token, plus operator key management.
//
// All amounts crossing this package are micro-token units (6 decimals),
// matching the token's native precision, so no scaling happens here.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Config carries the RPC endpoint and contract addresses for a deployment.
type Config struct {
	// RPCURL is the JSON-RPC endpoint of the target chain.
	RPCURL string

	// MarketAddress is the deployed prediction market contract.
	MarketAddress string

	// TokenAddress is the ERC-20 staking token the market settles in.
	TokenAddress string

	// Key resolves the operator private key used for transactions.
	Key KeyConfig
}

// Client bundles an RPC connection with a keyed transactor. It is the
// shared base for the Token and Market contract bindings.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
	opts    *bind.TransactOpts
	from    common.Address
}

// Dial connects to the configured RPC endpoint, resolves the chain ID, and
// builds a transactor from the operator key.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dialing %s: %w", cfg.RPCURL, err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: fetching chain id: %w", err)
	}

	keyHex, err := LoadKey(cfg.Key)
	if err != nil {
		eth.Close()
		return nil, err
	}
	return newClient(eth, chainID, keyHex)
}

// DialReadOnly connects without an operator key. The returned client serves
// contract calls and log queries; transaction methods fail with an error.
func DialReadOnly(ctx context.Context, cfg Config) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dialing %s: %w", cfg.RPCURL, err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: fetching chain id: %w", err)
	}

	return &Client{eth: eth, chainID: chainID}, nil
}

func newClient(eth *ethclient.Client, chainID *big.Int, keyHex string) (*Client, error) {
	priv, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: parsing operator key: %w", err)
	}

	opts, err := bind.NewKeyedTransactorWithChainID(priv, chainID)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: building transactor: %w", err)
	}

	return &Client{
		eth:     eth,
		chainID: chainID,
		opts:    opts,
		from:    ethcrypto.PubkeyToAddress(priv.PublicKey),
	}, nil
}

// From returns the operator address derived from the configured key.
func (c *Client) From() common.Address { return c.from }

// ChainID returns the connected chain's ID.
func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

// Backend exposes the underlying RPC client for log filtering and block
// queries.
func (c *Client) Backend() *ethclient.Client { return c.eth }

// Close releases the underlying RPC connection.
func (c *Client) Close() { c.eth.Close() }

// transactOpts returns a per-call copy of the keyed transactor bound to ctx.
// It fails on clients built with DialReadOnly.
func (c *Client) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if c.opts == nil {
		return nil, fmt.Errorf("chain: no operator key configured")
	}
	opts := *c.opts
	opts.Context = ctx
	return &opts, nil
}
