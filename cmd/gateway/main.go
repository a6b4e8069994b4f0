package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/miragesec/mirage/pkg/audit"
	"github.com/miragesec/mirage/pkg/config"
	"github.com/miragesec/mirage/pkg/embedding"
	"github.com/miragesec/mirage/pkg/engine"
	"github.com/miragesec/mirage/pkg/forensics"
	"github.com/miragesec/mirage/pkg/generation"
	"github.com/miragesec/mirage/pkg/noise"
	"github.com/miragesec/mirage/pkg/scoring"
	"github.com/miragesec/mirage/pkg/store"
)

const Version = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		port := ""
		if len(os.Args) > 2 {
			port = os.Args[2]
		}
		runHTTPServer(port)
	case "score":
		if len(os.Args) < 3 {
			fmt.Println("Usage: mirage score <text>")
			os.Exit(1)
		}
		runCLIScore(strings.Join(os.Args[2:], " "))
	case "version":
		fmt.Printf("MIRAGE Gateway v%s\n", Version)
		fmt.Println("Threat Scoring & Tiered Response Engine")
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("MIRAGE Gateway v%s - Threat Scoring & Tiered Response Engine\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  mirage serve [port]   Start the gateway (default: 8000)")
	fmt.Println("  mirage score <text>   Score text offline against a fresh identity")
	fmt.Println("  mirage version        Show version")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  MIRAGE_LLM_API_KEY   API key for the generation service (or GROQ_API_KEY)")
	fmt.Println("  MIRAGE_STORE         Record store: memory, redis, postgres (default: memory)")
	fmt.Println("  MIRAGE_EMBEDDER      Embedder: hash, local, remote (default: hash)")
	fmt.Println("  MIRAGE_CONFIG_FILE   Optional YAML overlay for scoring thresholds")
}

// ============================================================================
// Component wiring
// ============================================================================

func buildStore(cfg *config.Config) (store.RecordStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.Store {
	case config.StoreRedis:
		return store.NewRedisStore(ctx, cfg.RedisURL, cfg.SessionTTL)
	case config.StorePostgres:
		return store.NewPostgresStore(ctx, cfg.DatabaseURL)
	default:
		return store.NewMemoryStore(store.WithSessionTTL(cfg.SessionTTL)), nil
	}
}

func buildEmbedder(cfg *config.Config) embedding.Embedder {
	switch cfg.Embedder {
	case config.EmbedderLocal:
		localCfg := embedding.DefaultLocalEmbedderConfig()
		localCfg.ModelPath = cfg.EmbedModelPath
		localCfg.ModelName = cfg.EmbedModelName
		local := embedding.NewLocalEmbedderWithFallback(localCfg)
		if local != nil && local.IsReady() {
			log.Println("✓ Local embedder enabled (hugot/ONNX)")
			return local
		}
		log.Println("○ Local embedder unavailable, falling back to hash embedding")
	case config.EmbedderRemote:
		remoteCfg := embedding.DefaultRemoteEmbedderConfig()
		remoteCfg.APIKey = cfg.EmbedAPIKey
		remoteCfg.BaseURL = cfg.EmbedBaseURL
		remoteCfg.Model = cfg.EmbedModel
		remoteCfg.Dimension = cfg.EmbedDimension
		remote, err := embedding.NewRemoteEmbedder(remoteCfg)
		if err == nil {
			log.Printf("✓ Remote embedder enabled (%s)", remoteCfg.Model)
			return remote
		}
		log.Printf("○ Remote embedder unavailable (%v), falling back to hash embedding", err)
	}
	return embedding.NewHashEmbedder(cfg.EmbedDimension)
}

func buildPipeline(cfg *config.Config) *noise.Pipeline {
	synonyms := noise.NewTableSynonyms()
	if cfg.SynonymPackPath != "" {
		if err := synonyms.LoadPack(cfg.SynonymPackPath); err != nil {
			log.Printf("○ Synonym pack load failed (%v), using built-in table", err)
		} else {
			log.Printf("✓ Synonym pack loaded (%d entries)", synonyms.Size())
		}
	}
	return noise.NewPipeline(synonyms)
}

func engineOptions(cfg *config.Config) engine.Options {
	return engine.Options{
		Policy: scoring.TierPolicy{
			EscalationThreshold: cfg.EscalationThreshold,
			Tier3Score:          cfg.Tier3Score,
			Tier3MinMinutes:     cfg.Tier3MinMinutes,
			Tier2Score:          cfg.Tier2Score,
			Tier2MinMinutes:     cfg.Tier2MinMinutes,
			Tier2MaxMinutes:     cfg.Tier2MaxMinutes,
		},
		Weights: scoring.Weights{
			Velocity:  cfg.VelocityWeight,
			Diversity: cfg.DiversityWeight,
		},
		RPMCeiling: cfg.RPMCeiling,
	}
}

// ============================================================================
// HTTP Server Mode
// ============================================================================

func runHTTPServer(port string) {
	cfg := config.NewDefaultConfig()
	if port != "" {
		cfg.ServerPort = port
	}
	cfg.MustValidate()

	records, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("record store init failed: %v", err)
	}
	defer records.Close()

	embedder := buildEmbedder(cfg)
	pipeline := buildPipeline(cfg)

	gen, err := generation.NewOpenAIGenerator(cfg)
	if err != nil {
		log.Fatalf("generation init failed: %v", err)
	}
	bounded := generation.NewBounded(gen, cfg.MaxConcurrentGenerations)

	dispatcher := audit.NewDispatcher(cfg.LedgerURL, cfg.LedgerMaxInFlight, records)

	opts := engineOptions(cfg)
	opts.Ledger = dispatcher

	var archive *forensics.Archive
	if cfg.EnableForensics {
		archive, err = forensics.NewArchive(embedder)
		if err != nil {
			log.Printf("○ Forensic archive disabled (%v)", err)
		} else {
			log.Println("✓ Forensic archive enabled (chromem-go)")
			opts.Archive = archive
		}
	}

	eng, err := engine.New(records, embedder, bounded, pipeline, opts)
	if err != nil {
		log.Fatalf("engine init failed: %v", err)
	}

	app := fiber.New(fiber.Config{
		AppName: "MIRAGE Gateway",
	})

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "version": Version})
	})

	// Main query endpoint. The caller identity comes from X-User-ID or the
	// body; requests without one are refused rather than scored anonymously.
	app.Post("/v1/chat", func(c fiber.Ctx) error {
		var req struct {
			Identity string `json:"identity"`
			Prompt   string `json:"prompt"`
		}
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		if req.Identity == "" {
			req.Identity = c.Get("X-User-ID")
		}

		result, err := eng.HandleQuery(c.Context(), req.Identity, req.Prompt)
		if err != nil {
			return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(result)
	})

	// Score without serving: same signals, no generation, no state commit.
	app.Post("/v1/score", func(c fiber.Ctx) error {
		var req struct {
			Identity string `json:"identity"`
			Prompt   string `json:"prompt"`
		}
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		if req.Identity == "" {
			req.Identity = c.Get("X-User-ID")
		}

		result, err := eng.Score(c.Context(), req.Identity, req.Prompt)
		if err != nil {
			return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(result)
	})

	app.Get("/v1/sessions", func(c fiber.Ctx) error {
		sessions, err := records.ListSessions(c.Context())
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		now := time.Now().UTC()
		out := make([]fiber.Map, 0, len(sessions))
		for _, sess := range sessions {
			out = append(out, fiber.Map{
				"session":          sess,
				"duration_minutes": sess.ActiveDuration(now),
			})
		}
		return c.JSON(fiber.Map{"sessions": out, "count": len(out)})
	})

	app.Get("/v1/logs", func(c fiber.Ctx) error {
		logs, err := records.ListAudit(c.Context(), queryInt(c, "limit", 100))
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		out := make([]fiber.Map, 0, len(logs))
		for _, rec := range logs {
			out = append(out, fiber.Map{
				"record":              rec,
				"noisy_answer_served": rec.NoisyServed(),
			})
		}
		return c.JSON(fiber.Map{"logs": out, "count": len(out)})
	})

	app.Get("/v1/ledger/events", func(c fiber.Ctx) error {
		events, err := records.ListLedgerEvents(c.Context(), queryInt(c, "limit", 100))
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"events": events, "count": len(events)})
	})

	app.Get("/v1/forensics/similar", func(c fiber.Ctx) error {
		if archive == nil {
			return c.Status(404).JSON(fiber.Map{"error": "forensic archive disabled"})
		}
		q := c.Query("q")
		if q == "" {
			return c.Status(400).JSON(fiber.Map{"error": "q parameter is required"})
		}
		matches, err := archive.Similar(c.Context(), q, queryInt(c, "k", 5))
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"matches": matches, "archived": archive.Size()})
	})

	app.Get("/admin/stats", func(c fiber.Ctx) error {
		counts, err := records.TierCounts(c.Context())
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{
			"tier_counts":           counts,
			"ledger_dropped":        dispatcher.DroppedCount(),
			"generations_in_flight": bounded.InFlight(),
			"forensics_archived":    archive.Size(),
		})
	})

	log.Printf("MIRAGE gateway starting on :%s (store=%s embedder=%s)", cfg.ServerPort, cfg.Store, cfg.Embedder)
	log.Printf("Endpoints:")
	log.Printf("  POST /v1/chat              - Score, tier, and serve a query")
	log.Printf("  POST /v1/score             - Score without serving")
	log.Printf("  GET  /v1/sessions          - Tracked identities")
	log.Printf("  GET  /v1/logs              - Audit trail")
	log.Printf("  GET  /v1/ledger/events     - Ledger submissions")
	log.Printf("  GET  /v1/forensics/similar - Similar flagged prompts")
	log.Printf("  GET  /admin/stats          - Tier distribution and counters")

	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		log.Fatal(err)
	}
}

// statusFor maps engine failure classes onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrBadRequest):
		return 400
	case errors.Is(err, engine.ErrGeneration):
		return 502
	case errors.Is(err, engine.ErrPersistence):
		return 503
	default:
		return 500
	}
}

func queryInt(c fiber.Ctx, key string, fallback int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// ============================================================================
// CLI Score Mode
// ============================================================================

// noopGenerator satisfies the engine without an upstream model. The offline
// score path never calls it.
type noopGenerator struct{}

func (noopGenerator) Generate(_ context.Context, _ string) (string, error) {
	return "", fmt.Errorf("generation not available in score mode")
}

func runCLIScore(text string) {
	cfg := config.NewDefaultConfig()

	records := store.NewMemoryStore()
	defer records.Close()

	embedder := embedding.NewHashEmbedder(cfg.EmbedDimension)
	pipeline := buildPipeline(cfg)

	eng, err := engine.New(records, embedder, noopGenerator{}, pipeline, engineOptions(cfg))
	if err != nil {
		log.Fatalf("engine init failed: %v", err)
	}

	result, err := eng.Score(context.Background(), "cli", text)
	if err != nil {
		log.Fatalf("score failed: %v", err)
	}

	fmt.Printf("Hybrid score: %.4f\n", result.HybridScore)
	fmt.Printf("  velocity:  %.4f (%.2f rpm)\n", result.VelocityScore, result.RPM)
	fmt.Printf("  diversity: %.4f\n", result.DiversityScore)
	fmt.Printf("Tier: %d\n", result.Tier)
}
