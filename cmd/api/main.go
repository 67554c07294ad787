package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"orgdesk.org/internal/auth"
	"orgdesk.org/internal/config"
	"orgdesk.org/internal/httpapi"
	"orgdesk.org/internal/obs"
	"orgdesk.org/internal/org"
	"orgdesk.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.Logger().Fatal().Err(err).Msg("load config")
	}
	obs.ConfigureLogger(cfg.LogLevel, cfg.LogFormat)
	obs.Init()
	obs.InitBuildInfo(version, commit)
	log := obs.Component("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	codec, err := auth.NewTokenCodec(cfg.JWTSecret,
		auth.WithIssuer(cfg.JWTIssuer),
		auth.WithTokenTTL(cfg.JWTExpiresIn),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("token codec")
	}

	var (
		db          *sql.DB
		rdb         goredis.UniversalClient
		users       auth.UserStore
		revocations auth.RevocationStore
		orgStore    org.Store
	)
	if cfg.DatabaseURL != "" {
		db, err = pg.Open(ctx, cfg.DatabaseURL, pg.DefaultPool)
		if err != nil {
			log.Fatal().Err(err).Msg("open database")
		}
		users = auth.NewPGUserStore(db)
		revocations = auth.NewPGRevocationStore(db, codec)
		orgStore = org.NewPGStore(db)
	} else {
		if cfg.IsProduction() {
			log.Fatal().Msg("DATABASE_URL is required in production")
		}
		log.Warn().Msg("DATABASE_URL not set, using in-memory stores")
		users = auth.NewMemoryUserStore()
		revocations = auth.NewMemoryRevocationStore(codec)
		orgStore = org.NewMemoryStore()
	}
	if cfg.RevocationBackend == config.RevocationRedis {
		rdb = goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		revocations = auth.NewRedisRevocationStore(rdb, codec)
	}

	authSvc, err := auth.NewService(users, revocations, codec)
	if err != nil {
		log.Fatal().Err(err).Msg("auth service")
	}
	guard := auth.NewGuard(codec, revocations, users, auth.WithPublicOperations(httpapi.PublicOperations()...))
	probe := httpapi.ReadyProbe{DB: db, Redis: rdb}

	api, err := httpapi.New(httpapi.Deps{
		Auth:           authSvc,
		Guard:          guard,
		Org:            org.NewService(orgStore),
		Ready:          probe,
		Version:        version,
		ThrottleLimit:  cfg.ThrottleLimit,
		ThrottleWindow: cfg.ThrottleTTL,
		TrustedProxies: cfg.TrustedProxies,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("http api")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	health := httpapi.NewHealthServer(probe)
	grpcSrv := httpapi.NewGRPCServer(health)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		auth.NewSweeper(revocations, cfg.PurgeInterval).Run(ctx)
	}()
	go func() {
		defer wg.Done()
		health.Run(ctx, 10*time.Second)
	}()
	go func() {
		defer wg.Done()
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Error().Err(err).Str("addr", cfg.GRPCAddr).Msg("grpc listen")
			stop()
			return
		}
		log.Info().Str("addr", cfg.GRPCAddr).Msg("grpc health listening")
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error().Err(err).Msg("grpc serve")
		}
	}()

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("starting orgdesk-api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("listen")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()
	wg.Wait()

	if rdb != nil {
		_ = rdb.Close()
	}
	if db != nil {
		_ = db.Close()
	}
	log.Info().Msg("stopped")
}
