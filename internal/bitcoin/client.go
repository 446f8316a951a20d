// Package bitcoin is the chain-tip RPC collaborator: it supplies the
// confirmed-UTXO base layer behind the mempool's coin-view overlay,
// the confirmed transaction lists remove_for_block consumes, the tip
// data that triggers remove_for_reorg, and mempool bootstrap data on
// startup. Transaction script
// and consensus validation themselves stay out of scope.
package bitcoin

import (
	"encoding/json"
	"log"
	"math"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
)

type Client struct {
	RPC    *rpcclient.Client
	Config Config
}

type Config struct {
	Host string
	User string
	Pass string
}

func NewClient(cfg Config) (*Client, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true, // the node's RPC only supports HTTP POST mode
		DisableTLS:   true, // local node without TLS
	}

	log.Printf("[Bitcoin] Connecting to RPC at %s...", cfg.Host)
	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, err
	}

	blockCount, err := client.GetBlockCount()
	if err != nil {
		client.Shutdown()
		return nil, err
	}
	log.Printf("[Bitcoin] Connected. Current block height: %d", blockCount)

	return &Client{RPC: client, Config: cfg}, nil
}

func (c *Client) Shutdown() {
	c.RPC.Shutdown()
}

// GetRawMempoolVerbose fetches the node's current mempool contents,
// used to bootstrap the engine on startup. Modern nodes return
// `fees.base` instead of the legacy `fee` field; this backfills it so
// downstream fee-rate math stays accurate regardless of node version.
func (c *Client) GetRawMempoolVerbose() (map[string]btcjson.GetRawMempoolVerboseResult, error) {
	rawResp, err := c.RPC.RawRequest("getrawmempool", []json.RawMessage{json.RawMessage(`true`)})
	if err != nil {
		return nil, err
	}

	verbose := make(map[string]btcjson.GetRawMempoolVerboseResult)
	if err := json.Unmarshal(rawResp, &verbose); err != nil {
		return nil, err
	}

	var modern map[string]struct {
		Fee  float64 `json:"fee"`
		Fees struct {
			Base float64 `json:"base"`
		} `json:"fees"`
	}
	if err := json.Unmarshal(rawResp, &modern); err == nil {
		for txid, entry := range verbose {
			if entry.Fee > 0 {
				continue
			}
			raw := modern[txid]
			switch {
			case raw.Fees.Base > 0:
				entry.Fee = raw.Fees.Base
			case raw.Fee > 0:
				entry.Fee = raw.Fee
			}
			verbose[txid] = entry
		}
	}

	return verbose, nil
}

func (c *Client) GetRawTransaction(txHash *chainhash.Hash) (*btcjson.TxRawResult, error) {
	return c.RPC.GetRawTransactionVerbose(txHash)
}

// GetTxOut is the confirmed-chain base layer behind the mempool's
// coin-view overlay: it resolves an outpoint against the
// current UTXO set, independent of anything sitting in the mempool.
func (c *Client) GetTxOut(txHash *chainhash.Hash, index uint32) (*btcjson.GetTxOutResult, error) {
	return c.RPC.GetTxOut(txHash, index, false)
}

func (c *Client) GetMempoolInfo() (*btcjson.GetMempoolInfoResult, error) {
	rawResp, err := c.RPC.RawRequest("getmempoolinfo", nil)
	if err != nil {
		return nil, err
	}
	var res btcjson.GetMempoolInfoResult
	if err := json.Unmarshal(rawResp, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) GetBlockChainInfo() (*btcjson.GetBlockChainInfoResult, error) {
	return c.RPC.GetBlockChainInfo()
}

func (c *Client) GetBlockVerbose(blockHash *chainhash.Hash) (*btcjson.GetBlockVerboseResult, error) {
	return c.RPC.GetBlockVerbose(blockHash)
}

func (c *Client) GetBestBlockHash() (*chainhash.Hash, error) {
	return c.RPC.GetBestBlockHash()
}

func (c *Client) estimateSmartFeeByMode(confTarget int64, mode *btcjson.EstimateSmartFeeMode) (float64, error) {
	res, err := c.RPC.EstimateSmartFee(confTarget, mode)
	if err != nil {
		return 0, err
	}
	if res == nil || res.FeeRate == nil {
		return 0, nil
	}
	if !isFinitePositive(*res.FeeRate) {
		return 0, nil
	}
	return *res.FeeRate, nil
}

func (c *Client) getMempoolFeeFloorBTCPerKVb() (float64, error) {
	rawResp, err := c.RPC.RawRequest("getmempoolinfo", nil)
	if err != nil {
		return 0, err
	}
	var mempool struct {
		MempoolMinFee float64 `json:"mempoolminfee"`
		MinRelayTxFee float64 `json:"minrelaytxfee"`
	}
	if err := json.Unmarshal(rawResp, &mempool); err != nil {
		return 0, err
	}
	floor := mempool.MempoolMinFee
	if mempool.MinRelayTxFee > floor {
		floor = mempool.MinRelayTxFee
	}
	if !isFinitePositive(floor) {
		return 0, nil
	}
	return floor, nil
}

func isFinitePositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

func BTCPerKVbToSatPerVB(v float64) float64 {
	return v * 100_000
}

// EstimateSmartFee chains CONSERVATIVE -> ECONOMICAL -> the node's own
// mempool-min-fee floor, in BTC/kvB.
func (c *Client) EstimateSmartFee(confTarget int64) (float64, error) {
	conservative := btcjson.EstimateModeConservative
	if fee, err := c.estimateSmartFeeByMode(confTarget, &conservative); err == nil && fee > 0 {
		return fee, nil
	}
	economical := btcjson.EstimateModeEconomical
	if fee, err := c.estimateSmartFeeByMode(confTarget, &economical); err == nil && fee > 0 {
		return fee, nil
	}
	return c.getMempoolFeeFloorBTCPerKVb()
}

func (c *Client) EstimateSmartFeeSatVB(confTarget int64) (float64, error) {
	feeBTCPerKVb, err := c.EstimateSmartFee(confTarget)
	if err != nil {
		return 0, err
	}
	return BTCPerKVbToSatPerVB(feeBTCPerKVb), nil
}
