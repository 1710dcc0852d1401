package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gatekeeper.dev/internal/audit"
	"gatekeeper.dev/internal/httpapi"
	"gatekeeper.dev/internal/obs"
	"gatekeeper.dev/internal/posts"
	"gatekeeper.dev/internal/store/pg"
	"gatekeeper.dev/internal/token"
	"gatekeeper.dev/internal/users"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	secret := os.Getenv("GATEKEEPER_AUTH_SECRET")
	if secret == "" {
		log.Fatal("GATEKEEPER_AUTH_SECRET is required")
	}
	tokens, err := token.NewService(secret)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	var (
		userStore  users.Store
		auditStore audit.Store
		pgStore    *pg.Store
		probe      httpapi.ReadyProbe
	)
	if dsn := os.Getenv("GATEKEEPER_PG_DSN"); dsn != "" {
		pgStore, err = pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		userStore = pgStore.Users()
		auditStore = pgStore.Audit()
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		userStore = users.NewMemStore()
		auditStore = audit.NewMemStore()
	}

	userSvc, err := users.NewService(userStore)
	if err != nil {
		log.Fatalf("user service: %v", err)
	}

	// Without a database this is a throwaway sandbox, so load the demo
	// accounts to make the API explorable out of the box.
	if pgStore == nil {
		if err := users.SeedDemo(context.Background(), userSvc); err != nil {
			log.Fatalf("seed demo users: %v", err)
		}
	}

	api := httpapi.New(probe, version, tokens, userSvc, posts.NewMemStore(), auditStore)

	addr := os.Getenv("GATEKEEPER_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting gatekeeper-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if pgStore != nil {
		_ = pgStore.Close()
	}
	log.Println("Stopped")
}
