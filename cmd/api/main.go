package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"fixwell.io/internal/audit"
	"fixwell.io/internal/auth"
	"fixwell.io/internal/directory"
	"fixwell.io/internal/httpapi"
	"fixwell.io/internal/notify"
	"fixwell.io/internal/obs"
	"fixwell.io/internal/settings"
	"fixwell.io/internal/store/pg"
	"fixwell.io/internal/stream"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("FIXWELL_PG_DSN")
	if dsn == "" {
		log.Fatal("missing FIXWELL_PG_DSN")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	// Redis is optional: without it settings reads hit Postgres and access
	// tokens cannot be deny-listed before expiry.
	var rdb *redis.Client
	if addr := os.Getenv("FIXWELL_REDIS_ADDR"); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()
	}

	events := stream.New()
	recorder, err := audit.NewRecorder(stream.Tee(store.Audit(), events))
	if err != nil {
		log.Fatalf("audit recorder: %v", err)
	}
	notifier, err := notify.NewPublisher(store.Outbox())
	if err != nil {
		log.Fatalf("notify publisher: %v", err)
	}

	dirSvc, err := directory.NewService(store.Directory(), recorder, notifier)
	if err != nil {
		log.Fatalf("directory service: %v", err)
	}
	authSvc, err := auth.NewService(store.Directory(), store.RefreshTokens(),
		auth.WithDenylist(auth.NewDenylist(rdb)))
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	var settingsStore settings.Store = store.Settings()
	if rdb != nil {
		settingsStore = settings.NewCachedStore(settingsStore, rdb, 30*time.Second)
	}
	settingsSvc, err := settings.NewService(settingsStore, recorder)
	if err != nil {
		log.Fatalf("settings service: %v", err)
	}

	api := httpapi.New(httpapi.Config{
		Version:    version,
		ReadyProbe: httpapi.ReadyProbe{DB: store.DB()},
		Auth:       authSvc,
		Directory:  dirSvc,
		Settings:   settingsSvc,
		AuditLog:   store.Audit(),
		Stream:     events,
	})

	handler := api.Handler()
	handler = httpapi.MaxBodyBytes(handler, 1<<20)
	handler = httpapi.RateLimit(handler, 40, 20)
	handler = httpapi.CORS(handler)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.LoggingJSON(handler)
	handler = httpapi.RequestID(handler)

	addr := os.Getenv("FIXWELL_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second, // audit stream responses are long-lived
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting fixwell-api %s on %s", version, srv.Addr)
	obs.SetReady(true)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
