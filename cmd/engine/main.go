package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/rawblock/mempool-engine/internal/api"
	"github.com/rawblock/mempool-engine/internal/audit"
	"github.com/rawblock/mempool-engine/internal/bitcoin"
	"github.com/rawblock/mempool-engine/internal/chainfollower"
	"github.com/rawblock/mempool-engine/internal/mempool"
	"github.com/rawblock/mempool-engine/internal/ws"
	"github.com/rawblock/mempool-engine/pkg/models"
)

func main() {
	log.Println("Starting RawBlock Mempool Accounting Engine...")

	// ─── Required Environment Variables ─────────────────────────────────
	// All credentials MUST come from environment variables. No fallback
	// defaults for security-sensitive values. Use a .env file for local
	// development: cp .env.example .env && edit .env
	// ────────────────────────────────────────────────────────────────────

	dbURL := os.Getenv("DATABASE_URL")
	var auditDB *audit.Store
	if dbURL != "" {
		var err error
		auditDB, err = audit.Connect(dbURL)
		if err != nil {
			log.Printf("Warning: failed to connect to audit database, continuing without removal logging: %v", err)
		} else {
			defer auditDB.Close()
			if err := auditDB.InitSchema(); err != nil {
				log.Printf("Warning: audit schema init failed: %v", err)
			}
		}
	}

	btcHost := getEnvOrDefault("BTC_RPC_HOST", "localhost:8332")
	btcUser := requireEnv("BTC_RPC_USER")
	btcPass := requireEnv("BTC_RPC_PASS")

	btcClient, err := bitcoin.NewClient(bitcoin.Config{Host: btcHost, User: btcUser, Pass: btcPass})
	if err != nil {
		log.Printf("Warning: failed to connect to Bitcoin RPC: %v", err)
	} else {
		defer btcClient.Shutdown()
	}

	wsHub := ws.NewHub()
	go wsHub.Run()

	notifiers := []mempool.Notifier{ws.Notifier{Hub: wsHub}}
	if auditDB != nil {
		notifiers = append(notifiers, audit.NewNotifier(auditDB))
	}
	pool := mempool.New(mempoolConfigFromEnv(), multiNotifier{notifiers: notifiers})

	var follower *chainfollower.Follower
	if btcClient != nil {
		follower = chainfollower.New(btcClient, pool)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go follower.Run(ctx)

		bootstrapMempool(pool, btcClient)
	} else {
		log.Println("WARNING: Bitcoin RPC unavailable — engine running in API-only mode (no chain follower)")
	}

	go runMaintenanceLoop(pool)

	r := api.SetupRouter(pool, wsHub, follower, auditDB, btcClient)

	port := getEnvOrDefault("PORT", "5339")
	log.Printf("Engine running on :%s\n", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// multiNotifier fans a single mempool event out to every configured
// sink (websocket broadcast, audit persistence, ...), so Pool is wired
// to exactly one mempool.Notifier regardless of how many collaborators
// need to observe its events.
type multiNotifier struct {
	notifiers []mempool.Notifier
}

func (m multiNotifier) EntryAdded(tx *models.Transaction) {
	for _, n := range m.notifiers {
		n.EntryAdded(tx)
	}
}

func (m multiNotifier) EntryRemoved(tx *models.Transaction, reason mempool.RemovalReason) {
	for _, n := range m.notifiers {
		n.EntryRemoved(tx, reason)
	}
}

var _ mempool.Notifier = multiNotifier{}

// bootstrapMempool seeds the pool from the node's current mempool on
// startup, admitting entries in dependency order (an entry's `depends`
// list must already be admitted before it can pass ancestor accounting)
// and logging — not failing — on anything that doesn't fit: the node's
// mempool may already reflect policy this engine's Config disagrees
// with, and that's diagnostic information, not a fatal condition.
func bootstrapMempool(pool *mempool.Pool, btcClient *bitcoin.Client) {
	raw, err := btcClient.GetRawMempoolVerbose()
	if err != nil {
		log.Printf("[Bootstrap] failed to fetch node mempool: %v", err)
		return
	}
	log.Printf("[Bootstrap] node reports %d mempool entries; admitting in dependency order", len(raw))

	pending := make(map[string]struct{}, len(raw))
	for txid := range raw {
		pending[txid] = struct{}{}
	}
	admitted := make(map[string]bool, len(raw))

	var added, skipped int
	for len(pending) > 0 {
		progressed := false
		for txid := range pending {
			entry := raw[txid]

			ready := true
			for _, dep := range entry.Depends {
				if !admitted[dep] {
					ready = false
					break
				}
			}
			if !ready {
				continue
			}

			if !admitOne(pool, btcClient, txid, entry) {
				skipped++
			} else {
				added++
			}
			admitted[txid] = true
			delete(pending, txid)
			progressed = true
		}
		if !progressed {
			log.Printf("[Bootstrap] %d entries have dependencies outside the fetched set; skipping", len(pending))
			skipped += len(pending)
			break
		}
	}

	log.Printf("[Bootstrap] admitted %d/%d node mempool entries (%d skipped)", added, len(raw), skipped)
}

// admitOne fetches and admits a single mempool entry, returning false
// (and logging why) on any failure so the caller can keep a running
// skipped count without aborting the rest of the bootstrap.
func admitOne(pool *mempool.Pool, btcClient *bitcoin.Client, txid string, entry btcjson.GetRawMempoolVerboseResult) bool {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		log.Printf("[Bootstrap] skipping %s: invalid txid: %v", txid, err)
		return false
	}
	rawTx, err := btcClient.GetRawTransaction(hash)
	if err != nil {
		log.Printf("[Bootstrap] skipping %s: failed to fetch raw transaction: %v", txid, err)
		return false
	}
	tx := chainfollower.ToModelTransaction(rawTx)
	feeSat := int64(entry.Fee * 100_000_000)

	if err := pool.Add(tx, feeSat, entry.Time, int32(entry.Height), true); err != nil {
		log.Printf("[Bootstrap] skipping %s: %v", txid, err)
		return false
	}
	return true
}

// runMaintenanceLoop periodically enforces the byte cap and expiry
// cutoff named by MEMPOOL_MAX_SIZE_MB / MEMPOOL_EXPIRY_HOURS — the two
// knobs that, unlike the chain-limit admission gate, aren't triggered
// by any single call and need a ticker driving them.
func runMaintenanceLoop(pool *mempool.Pool) {
	maxSizeMB := int64(300)
	if v := os.Getenv("MEMPOOL_MAX_SIZE_MB"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			maxSizeMB = n
		}
	}
	expiryHours := int64(336) // 14 days, matching Bitcoin Core's DEFAULT_MEMPOOL_EXPIRY
	if v := os.Getenv("MEMPOOL_EXPIRY_HOURS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			expiryHours = n
		}
	}
	byteLimit := maxSizeMB * 1024 * 1024
	expirySeconds := expiryHours * 3600

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Unix() - expirySeconds
		if removed := pool.Expire(cutoff); removed > 0 {
			log.Printf("[Maintenance] expired %d entries older than %d hours", removed, expiryHours)
		}
		if freed := pool.TrimToSize(byteLimit); len(freed) > 0 {
			log.Printf("[Maintenance] trimmed pool to %d MB, freed %d outpoints", maxSizeMB, len(freed))
		}
	}
}

func mempoolConfigFromEnv() mempool.Config {
	cfg := mempool.DefaultConfig()
	if v := os.Getenv("MEMPOOL_MAX_ANCESTORS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxAncestors = n
		}
	}
	if v := os.Getenv("MEMPOOL_MAX_ANCESTOR_SIZE_KB"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxAncestorSizeVB = n * 1000
		}
	}
	if v := os.Getenv("MEMPOOL_MAX_DESCENDANTS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxDescendants = n
		}
	}
	if v := os.Getenv("MEMPOOL_MAX_DESCENDANT_SIZE_KB"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxDescendantSizeVB = n * 1000
		}
	}
	if v := os.Getenv("MEMPOOL_INCREMENTAL_RELAY_FEE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.IncrementalRelayFeePerVB = n
		}
	}
	if v := os.Getenv("MEMPOOL_CHECK_FREQUENCY"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.CheckFrequency = uint32(n)
		}
	}
	return cfg
}

// requireEnv reads a required environment variable and exits if it is
// not set. This prevents the binary from starting with missing critical
// configuration.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set. "+
			"Copy .env.example to .env and fill in your values: cp .env.example .env", key)
	}
	return val
}

// getEnvOrDefault returns the env var value or a safe default for
// non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
