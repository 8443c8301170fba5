package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pairwave/relay/internal/admin"
	"github.com/pairwave/relay/internal/audit"
	"github.com/pairwave/relay/internal/ban"
	"github.com/pairwave/relay/internal/geo"
	"github.com/pairwave/relay/internal/matching"
	"github.com/pairwave/relay/internal/messaging"
	"github.com/pairwave/relay/internal/protocol"
	"github.com/pairwave/relay/internal/ratelimit"
	"github.com/pairwave/relay/internal/relay"
	"github.com/pairwave/relay/internal/report"
	"github.com/pairwave/relay/internal/session"
	"github.com/pairwave/relay/internal/visitor"
	"github.com/pairwave/relay/internal/ws"
)

func main() {
	config := ws.DefaultServerConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxConnections = n
		}
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}

	adminAddr := ":8081"
	if v := os.Getenv("ADMIN_ADDR"); v != "" {
		adminAddr = v
	}
	adminToken := os.Getenv("ADMIN_TOKEN")
	if adminToken == "" {
		log.Printf("WARNING: ADMIN_TOKEN not set, admin surfaces are disabled")
	}

	// --- GeoIP (optional) ---
	var resolver session.CountryResolver
	var geoReader *geo.Resolver
	if path := os.Getenv("GEOIP_DB"); path != "" {
		r, err := geo.Open(path)
		if err != nil {
			log.Fatalf("failed to open GeoIP database: %v", err)
		}
		geoReader = r
		resolver = r
	}

	// --- Redis connect rate limiting (optional) ---
	var limiter *ratelimit.Limiter
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		limiter = ratelimit.NewLimiter(rdb)
	}

	// --- NATS moderation events (optional) ---
	var events *messaging.Publisher
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		natsConfig := messaging.DefaultConfig()
		natsConfig.URL = natsURL
		p, err := messaging.Connect(natsConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		events = p
	}

	// --- Postgres report audit (optional) ---
	var auditStore *audit.Store
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		s, err := audit.Open(dsn)
		if err != nil {
			log.Fatalf("failed to open audit store: %v", err)
		}
		auditStore = s
	}

	// --- Country blocklist persistence ---
	blocklistPath := "blocklist.db"
	if v := os.Getenv("BLOCKLIST_PATH"); v != "" {
		blocklistPath = v
	}
	boltStore, err := ban.OpenBolt(blocklistPath)
	if err != nil {
		log.Fatalf("failed to open blocklist store: %v", err)
	}
	blocklist, err := ban.NewBlocklist(boltStore)
	if err != nil {
		log.Fatalf("failed to load blocklist: %v", err)
	}

	log.Printf("pairwave signaling relay starting")
	log.Printf("  listen_addr:     %s", config.ListenAddr)
	log.Printf("  admin_addr:      %s", adminAddr)
	log.Printf("  worker_pool:     %d", config.WorkerPoolSize)
	log.Printf("  max_connections: %d", config.MaxConnections)
	log.Printf("  geoip:           %v", resolver != nil)
	log.Printf("  rate_limit:      %v", limiter != nil)
	log.Printf("  nats:            %v", events != nil)
	log.Printf("  audit:           %v", auditStore != nil)
	log.Printf("  blocklist_path:  %s", blocklistPath)

	server := ws.NewServer(config, limiter)

	coord := relay.NewCoordinator(relay.Config{
		Sessions:   session.NewRegistry(resolver),
		Bans:       ban.NewStore(),
		Blocklist:  blocklist,
		Queue:      matching.NewQueue(),
		Reports:    report.NewLedger(),
		Visitors:   visitor.NewLedger(),
		Sender:     server,
		AdminToken: adminToken,
		Events:     events,
		Audit:      auditStore,
	})

	dispatcher := ws.NewMessageDispatcher(server)

	dispatcher.Register(protocol.TypeIdentify, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.IdentifyMsg); ok {
			coord.Identify(conn.ID, m.Fingerprint)
		}
	})
	dispatcher.Register(protocol.TypeFindPartner, func(conn *ws.Connection, msg interface{}) {
		coord.FindPartner(conn.ID)
	})
	dispatcher.Register(protocol.TypeSignal, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.SignalMsg); ok {
			coord.Signal(conn.ID, m.To, m.Payload)
		}
	})
	dispatcher.Register(protocol.TypeChatMessage, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.ChatMsg); ok {
			coord.Chat(conn.ID, m.To, m.Text)
		}
	})
	dispatcher.Register(protocol.TypeReport, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.ReportMsg); ok {
			coord.Report(conn.ID, m.Target)
		}
	})
	dispatcher.Register(protocol.TypeAdminScreenshot, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.AdminScreenshotMsg); ok {
			coord.AttachScreenshot(conn.ID, m.PartnerID, m.Image)
		}
	})
	dispatcher.Register(protocol.TypeSkip, func(conn *ws.Connection, msg interface{}) {
		coord.Skip(conn.ID)
	})
	dispatcher.Register(protocol.TypeAdminJoin, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.AdminJoinMsg); ok {
			coord.AdminJoin(conn.ID, m.Token)
		}
	})

	server.SetOnConnect(coord.Connect)
	server.SetOnMessage(dispatcher.Dispatch)
	server.SetOnDisconnect(coord.Disconnect)

	adminServer := admin.NewServer(adminAddr, adminToken, coord)
	go func() {
		if err := adminServer.Start(); err != nil {
			log.Fatalf("admin server error: %v", err)
		}
	}()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		if err := adminServer.Shutdown(); err != nil {
			log.Printf("admin shutdown error: %v", err)
		}
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		events.Close()
		blocklist.Close()
		if err := boltStore.Close(); err != nil {
			log.Printf("blocklist store close error: %v", err)
		}
		if auditStore != nil {
			if err := auditStore.Close(); err != nil {
				log.Printf("audit store close error: %v", err)
			}
		}
		if geoReader != nil {
			geoReader.Close()
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
