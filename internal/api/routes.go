package api

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rawblock/mempool-engine/internal/audit"
	"github.com/rawblock/mempool-engine/internal/bitcoin"
	"github.com/rawblock/mempool-engine/internal/chainfollower"
	"github.com/rawblock/mempool-engine/internal/mempool"
	"github.com/rawblock/mempool-engine/internal/ws"
	"github.com/rawblock/mempool-engine/pkg/models"
)

type Handler struct {
	pool      *mempool.Pool
	wsHub     *ws.Hub
	follower  *chainfollower.Follower
	auditDB   *audit.Store
	btcClient *bitcoin.Client
	coins     mempool.CoinView
}

// SetupRouter wires the full HTTP surface over the engine: CORS, request
// ID tagging, bearer-token auth, and per-IP rate limiting on every
// mutating route, matching the ambient shape the rest of this stack
// already uses.
func SetupRouter(pool *mempool.Pool, wsHub *ws.Hub, follower *chainfollower.Follower, auditDB *audit.Store, btcClient *bitcoin.Client) *gin.Engine {
	r := gin.Default()

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-Id")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	r.Use(func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Writer.Header().Set("X-Request-Id", id)
		c.Set("request_id", id)
		c.Next()
	})

	h := &Handler{pool: pool, wsHub: wsHub, follower: follower, auditDB: auditDB, btcClient: btcClient}
	// The coin endpoint serves mempool-synthetic outputs layered over
	// the node's confirmed UTXO set when an RPC client is available,
	// and pool-only resolution otherwise.
	if btcClient != nil {
		h.coins = mempool.NewPoolCoinView(pool, bitcoin.ChainCoinView{Client: btcClient})
	} else {
		h.coins = mempool.NewPoolCoinView(pool, nil)
	}

	pub := r.Group("/api/v1")
	{
		pub.GET("/health", h.handleHealth)
		pub.GET("/stream", wsHub.Subscribe)
		pub.GET("/stats", h.handleStats)
		pub.GET("/hashes", h.handleHashes)
		pub.GET("/selection", h.handleSelectionOrder)
		pub.GET("/tx/:hash", h.handleGetTx)
		pub.GET("/tx/:hash/ancestors", h.handleAncestors)
		pub.GET("/tx/:hash/descendants", h.handleDescendants)
		pub.GET("/removals", h.handleRecentRemovals)
		pub.GET("/outpoint/:hash/:index", h.handleOutpoint)
	}

	protected := r.Group("/api/v1")
	protected.Use(AuthMiddleware())
	// Submissions pay an ancestor scan under the pool's lock per call;
	// trim and expire can walk a large share of the pool, so they get a
	// much smaller budget.
	submit := NewRateLimiter("submission", 60, 10).Middleware()
	maintenance := NewRateLimiter("maintenance", 6, 2).Middleware()
	{
		protected.POST("/tx", submit, h.handleAddTx)
		protected.DELETE("/tx/:hash", submit, h.handleRemoveTx)
		protected.POST("/tx/:hash/prioritise", submit, h.handlePrioritise)
		protected.DELETE("/tx/:hash/prioritise", submit, h.handleClearPrioritization)
		protected.POST("/trim", maintenance, h.handleTrim)
		protected.POST("/expire", maintenance, h.handleExpire)
	}

	return r
}

func (h *Handler) handleHealth(c *gin.Context) {
	height := int64(-1)
	if h.follower != nil {
		height = h.follower.CurrentHeight()
	}

	resp := gin.H{
		"status":      "operational",
		"entryCount":  h.pool.Count(),
		"chainHeight": height,
		"auditDB":     h.auditDB != nil,
	}
	if h.btcClient != nil {
		if info, err := h.btcClient.GetBlockChainInfo(); err == nil {
			resp["nodeChain"] = info.Chain
			resp["nodeBlocks"] = info.Blocks
			resp["nodeHeaders"] = info.Headers
			resp["nodeBestBlockHash"] = info.BestBlockHash
		}
		if info, err := h.btcClient.GetMempoolInfo(); err == nil {
			resp["nodeMempoolSize"] = info.Size
			resp["nodeMempoolBytes"] = info.Bytes
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) handleStats(c *gin.Context) {
	resp := gin.H{
		"entryCount":          h.pool.Count(),
		"transactionsUpdated": h.pool.TransactionsUpdated(),
		"dynamicMemoryUsage":  h.pool.DynamicMemoryUsage(),
		"minFeeSatPerVB":      h.pool.GetMinFee(300 * 1024 * 1024),
	}
	if h.btcClient != nil {
		if feeSatVB, err := h.btcClient.EstimateSmartFeeSatVB(6); err == nil {
			resp["nodeFeeEstimateSatPerVB"] = feeSatVB
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) handleHashes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"hashes": h.pool.QueryHashesSorted()})
}

func (h *Handler) handleSelectionOrder(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	c.JSON(http.StatusOK, gin.H{"hashes": h.pool.SelectionOrder(limit)})
}

func (h *Handler) handleGetTx(c *gin.Context) {
	hash := c.Param("hash")
	info := h.pool.Info(hash)
	if info.Tx == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tx":      info.Tx,
		"time":    info.Time,
		"feeRate": info.FeeRate,
		"delta":   info.Delta,
	})
}

func entrySetToHashes(set map[string]*mempool.Entry) []string {
	out := make([]string, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	return out
}

func (h *Handler) handleAncestors(c *gin.Context) {
	hash := c.Param("hash")
	tx := h.pool.Get(hash)
	if tx == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	ancestors, err := h.pool.CalculateAncestors(tx, mempool.NoLimits)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ancestors": entrySetToHashes(ancestors)})
}

func (h *Handler) handleDescendants(c *gin.Context) {
	hash := c.Param("hash")
	c.JSON(http.StatusOK, gin.H{"descendants": entrySetToHashes(h.pool.CalculateDescendants(hash))})
}

func (h *Handler) handleAddTx(c *gin.Context) {
	var req struct {
		Tx        models.Transaction `json:"tx" binding:"required"`
		Fee       int64              `json:"fee"`
		EntryTime int64              `json:"entryTime"`
		Height    int32              `json:"height"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entryTime := req.EntryTime
	if entryTime == 0 {
		entryTime = time.Now().Unix()
	}
	if err := h.pool.Add(&req.Tx, req.Fee, entryTime, req.Height, true); err != nil {
		var admErr *mempool.AdmissionError
		if errors.As(err, &admErr) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "kind": admErr.Kind.String(), "hash": admErr.Hash})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "accepted", "txid": req.Tx.Txid})
}

func (h *Handler) handleRemoveTx(c *gin.Context) {
	hash := c.Param("hash")
	tx := h.pool.Get(hash)
	if tx == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	h.pool.RemoveRecursive(tx, mempool.ReasonUnknown)
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

func (h *Handler) handlePrioritise(c *gin.Context) {
	hash := c.Param("hash")
	var req struct {
		Delta int64 `json:"delta" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.pool.Prioritise(hash, req.Delta)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) handleClearPrioritization(c *gin.Context) {
	h.pool.ClearPrioritization(c.Param("hash"))
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

func (h *Handler) handleOutpoint(c *gin.Context) {
	index, err := strconv.ParseUint(c.Param("index"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index must be a non-negative integer"})
		return
	}
	o := models.Outpoint{Hash: c.Param("hash"), Index: uint32(index)}

	resp := gin.H{"spentInPool": h.pool.IsSpent(o)}
	if coin, ok := h.coins.GetCoin(o); ok {
		resp["coin"] = gin.H{
			"value":        coin.Value,
			"scriptPubKey": coin.ScriptPubKey,
			"height":       coin.Height,
			"coinbase":     coin.IsCoinbase,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) handleTrim(c *gin.Context) {
	limitStr := c.Query("byteLimit")
	limit, err := strconv.ParseInt(limitStr, 10, 64)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "byteLimit query param required"})
		return
	}
	freed := h.pool.TrimToSize(limit)
	c.JSON(http.StatusOK, gin.H{"freedOutpoints": len(freed)})
}

func (h *Handler) handleExpire(c *gin.Context) {
	cutoffStr := c.Query("cutoffTime")
	cutoff, err := strconv.ParseInt(cutoffStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cutoffTime query param required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": h.pool.Expire(cutoff)})
}

func (h *Handler) handleRecentRemovals(c *gin.Context) {
	if h.auditDB == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit store not connected"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	records, err := h.auditDB.RecentRemovals(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removals": records})
}
