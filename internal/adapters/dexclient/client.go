package dexclient

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"whaleSnipeBot/internal/domain"
	"whaleSnipeBot/internal/ports"
)

const (
	// Minimal ABI fragments for the collaborators the bot actually calls.
	erc20ABIJSON = `[{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

	routerABIJSON = `[
		{"constant":true,"inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"},
		{"constant":false,"inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokens","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"}
	]`

	swapGasLimit    = uint64(350000)
	receiptPollRate = time.Second
	logBufferSize   = 64
)

// pairCreatedTopic is the event signature hash of the factory's
// PairCreated(address indexed, address indexed, address, uint256) event.
var pairCreatedTopic = crypto.Keccak256Hash([]byte("PairCreated(address,address,address,uint256)"))

// weiUnit converts 18-decimal on-chain units to decimal amounts.
var weiUnit = decimal.New(1, 18)

// Client implements ports.ChainGateway, ports.PairFeed and
// ports.QuoteGateway against an EVM node and a Uniswap-v2 style router.
type Client struct {
	eth       *ethclient.Client
	logger    ports.Logger
	erc20ABI  abi.ABI
	routerABI abi.ABI

	factory   common.Address
	router    common.Address
	recipient common.Address
	chainID   *big.Int

	// Signing material; nil key means read-only operation.
	key  *ecdsa.PrivateKey
	from common.Address
}

// Config holds configuration specific to the chain adapter.
type Config struct {
	WSURL            string // websocket RPC endpoint, required for the pair subscription
	FactoryAddress   string
	RouterAddress    string
	RecipientAddress string
	PrivateKey       string // hex-encoded; empty disables swap submission
	Logger           ports.Logger
}

// New dials the node and prepares the contract ABIs.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for dex client")
	}
	if cfg.WSURL == "" {
		return nil, fmt.Errorf("%w: RPC websocket URL is required", ports.ErrConfigurationError)
	}
	if !common.IsHexAddress(cfg.FactoryAddress) || !common.IsHexAddress(cfg.RouterAddress) {
		return nil, fmt.Errorf("%w: factory and router must be hex addresses", ports.ErrConfigurationError)
	}

	eth, err := ethclient.DialContext(ctx, cfg.WSURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to dial node at %s: %w", ports.ErrConnectionFailed, cfg.WSURL, err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("%w: failed to read chain id: %w", ports.ErrConnectionFailed, err)
	}

	erc20, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 ABI: %w", err)
	}
	router, err := abi.JSON(strings.NewReader(routerABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse router ABI: %w", err)
	}

	c := &Client{
		eth:       eth,
		logger:    cfg.Logger,
		erc20ABI:  erc20,
		routerABI: router,
		factory:   common.HexToAddress(cfg.FactoryAddress),
		router:    common.HexToAddress(cfg.RouterAddress),
		recipient: common.HexToAddress(cfg.RecipientAddress),
		chainID:   chainID,
	}

	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid private key: %w", ports.ErrConfigurationError, err)
		}
		c.key = key
		c.from = crypto.PubkeyToAddress(key.PublicKey)
	} else {
		cfg.Logger.Warn(ctx, "No private key configured; swap submission disabled")
	}

	cfg.Logger.Info(ctx, "Chain client connected", map[string]interface{}{
		"chainID": chainID.String(),
		"factory": c.factory.Hex(),
		"router":  c.router.Hex(),
	})
	return c, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// SubscribePairCreated streams PairCreated events from the factory into the
// handler. The returned done channel closes when the subscription ends; the
// caller closes stop to terminate it.
func (c *Client) SubscribePairCreated(ctx context.Context, handler func(domain.NewPair), errHandler func(error)) (chan struct{}, chan struct{}, error) {
	logs := make(chan types.Log, logBufferSize)
	query := ethereum.FilterQuery{
		Addresses: []common.Address{c.factory},
		Topics:    [][]common.Hash{{pairCreatedTopic}},
	}
	sub, err := c.eth.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to subscribe to PairCreated: %w", ports.ErrConnectionFailed, err)
	}

	doneCh := make(chan struct{})
	stopCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		defer sub.Unsubscribe()
		for {
			select {
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				if err != nil && errHandler != nil {
					errHandler(fmt.Errorf("%w: PairCreated subscription: %w", ports.ErrConnectionFailed, err))
				}
				return
			case lg := <-logs:
				pair, ok := decodePairCreated(lg)
				if !ok {
					c.logger.Warn(ctx, "Skipping malformed PairCreated log", map[string]interface{}{"tx": lg.TxHash.Hex()})
					continue
				}
				handler(pair)
			}
		}
	}()

	return doneCh, stopCh, nil
}

// decodePairCreated extracts the token addresses from the indexed topics and
// the pair address from the first data word.
func decodePairCreated(lg types.Log) (domain.NewPair, bool) {
	if len(lg.Topics) < 3 || len(lg.Data) < 32 {
		return domain.NewPair{}, false
	}
	return domain.NewPair{
		Token0:      common.BytesToAddress(lg.Topics[1].Bytes()).Hex(),
		Token1:      common.BytesToAddress(lg.Topics[2].Bytes()).Hex(),
		PairAddress: common.BytesToAddress(lg.Data[12:32]).Hex(),
	}, true
}

// PoolLiquidity returns the total supply of the pool's LP accounting token.
func (c *Client) PoolLiquidity(ctx context.Context, pairAddress string) (*big.Int, error) {
	data, err := c.erc20ABI.Pack("totalSupply")
	if err != nil {
		return nil, fmt.Errorf("failed to pack totalSupply call: %w", err)
	}
	to := common.HexToAddress(pairAddress)
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: totalSupply call on %s: %w", ports.ErrQuoteUnavailable, pairAddress, err)
	}
	results, err := c.erc20ABI.Unpack("totalSupply", out)
	if err != nil || len(results) == 0 {
		return nil, fmt.Errorf("%w: failed to decode totalSupply result: %v", ports.ErrQuoteUnavailable, err)
	}
	supply, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected totalSupply result type %T", ports.ErrQuoteUnavailable, results[0])
	}
	return supply, nil
}

// AmountOut quotes the router output for swapping amountIn of assetIn into
// assetOut.
func (c *Client) AmountOut(ctx context.Context, amountIn *big.Int, assetIn, assetOut string) (*big.Int, error) {
	path := []common.Address{common.HexToAddress(assetIn), common.HexToAddress(assetOut)}
	data, err := c.routerABI.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("failed to pack getAmountsOut call: %w", err)
	}
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.router, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: getAmountsOut call: %w", ports.ErrQuoteUnavailable, err)
	}
	results, err := c.routerABI.Unpack("getAmountsOut", out)
	if err != nil || len(results) == 0 {
		return nil, fmt.Errorf("%w: failed to decode getAmountsOut result: %v", ports.ErrQuoteUnavailable, err)
	}
	amounts, ok := results[0].([]*big.Int)
	if !ok || len(amounts) < 2 {
		return nil, fmt.Errorf("%w: unexpected getAmountsOut result shape", ports.ErrQuoteUnavailable)
	}
	return amounts[len(amounts)-1], nil
}

// Quote implements ports.QuoteGateway for on-chain pairs: the current router
// output, in Base token units, for one unit of the Quote token. This matches
// the out-per-in orientation execution records entries in.
func (c *Client) Quote(ctx context.Context, pair domain.AssetPair) (decimal.Decimal, error) {
	probe := new(big.Int).Set(weiUnit.BigInt()) // 1.0 of the input token
	out, err := c.AmountOut(ctx, probe, pair.Quote, pair.Base)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(out, 0).Div(weiUnit), nil
}

// SubmitSwap submits a swapExactTokensForTokens transaction with the given
// minimum output and absolute deadline, then waits for the receipt.
func (c *Client) SubmitSwap(ctx context.Context, assetIn, assetOut string, amountIn, amountOutMin *big.Int, deadline time.Time) (*ports.Receipt, error) {
	if c.key == nil {
		return nil, fmt.Errorf("%w: no signing key configured", ports.ErrSubmissionFailed)
	}

	path := []common.Address{common.HexToAddress(assetIn), common.HexToAddress(assetOut)}
	data, err := c.routerABI.Pack("swapExactTokensForTokens",
		amountIn, amountOutMin, path, c.recipient, big.NewInt(deadline.Unix()))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to pack swap call: %w", ports.ErrSubmissionFailed, err)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch nonce: %w", ports.ErrSubmissionFailed, err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch gas price: %w", ports.ErrSubmissionFailed, err)
	}

	tx := types.NewTransaction(nonce, c.router, big.NewInt(0), swapGasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to sign swap: %w", ports.ErrSubmissionFailed, err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("%w: failed to send swap: %w", ports.ErrSubmissionFailed, err)
	}

	c.logger.Info(ctx, "Swap submitted", map[string]interface{}{
		"tx":           signed.Hash().Hex(),
		"assetIn":      assetIn,
		"assetOut":     assetOut,
		"amountIn":     amountIn.String(),
		"amountOutMin": amountOutMin.String(),
		"deadline":     deadline.UTC().Format(time.RFC3339),
	})

	receipt, err := c.waitMined(ctx, signed.Hash())
	if err != nil {
		return nil, fmt.Errorf("%w: waiting for swap confirmation: %w", ports.ErrSubmissionFailed, err)
	}
	return &ports.Receipt{
		Success:     receipt.Status == types.ReceiptStatusSuccessful,
		BlockNumber: receipt.BlockNumber.Uint64(),
		TxID:        signed.Hash().Hex(),
	}, nil
}

// waitMined polls for the transaction receipt until it lands or the context
// expires.
func (c *Client) waitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollRate)
	defer ticker.Stop()
	for {
		receipt, err := c.eth.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
