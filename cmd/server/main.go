package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/openvenue/seatclaim/internal/clock"
	"github.com/openvenue/seatclaim/internal/config"
	"github.com/openvenue/seatclaim/internal/database"
	"github.com/openvenue/seatclaim/internal/feed"
	"github.com/openvenue/seatclaim/internal/handler"
	"github.com/openvenue/seatclaim/internal/lease"
	"github.com/openvenue/seatclaim/internal/queue"
	"github.com/openvenue/seatclaim/internal/repository"
	"github.com/openvenue/seatclaim/internal/router"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments set the environment directly

	cfg := config.Load()

	var store lease.ClaimStore
	switch cfg.StoreDriver {
	case "memory":
		log.Printf("using in-memory claim store; claims will not survive a restart")
		store = repository.NewMemoryClaimStore()
	default:
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			log.Fatalf("open database: %v", err)
		}
		store = repository.NewClaimRepo(db)
	}

	rdb := config.NewRedisClient()
	var pub feed.Publisher = feed.NopPublisher{}
	if rdb != nil {
		pub = feed.NewRedisPublisher(rdb)
	} else {
		log.Printf("redis unavailable; change feed fan-out and rate limiting disabled")
	}

	manager := lease.NewManager(store, pub, clock.NewSystem(), cfg.ClaimTTL)

	// Audit trail consumer runs for the life of the process and
	// reconnects on its own.
	go func() {
		if err := queue.StartAuditConsumer(); err != nil {
			log.Printf("audit consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterClaims(e, handler.NewClaimHandler(manager), handler.NewFeedHandler(manager, rdb), config.LoadRateLimitConfig(), rdb)
	router.RegisterOperator(e, handler.NewOperatorHandler(manager), cfg.JWTSecret)
	router.RegisterPayments(e, handler.NewPaymentHandler(manager))

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s, store=%s, ttl=%s)", addr, cfg.Env, cfg.StoreDriver, cfg.ClaimTTL)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
