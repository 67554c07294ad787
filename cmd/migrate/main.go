package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"orgdesk.org/internal/auth"
	"orgdesk.org/internal/config"
	"orgdesk.org/internal/migrate"
	"orgdesk.org/internal/obs"
	"orgdesk.org/internal/store/pg"
)

func main() {
	var (
		dsn        = flag.String("dsn", "", "PostgreSQL DSN (defaults to DATABASE_URL)")
		migrations = flag.String("migrations", "", "Directory with SQL migrations (defaults to the embedded set)")
		seeds      = flag.String("seeds", "", "Directory with SQL seeds")
	)
	flag.Parse()
	log := obs.Component("migrate")

	if err := config.LoadEnvFiles(".env.local", ".env"); err != nil {
		log.Fatal().Err(err).Msg("load env")
	}
	if *dsn == "" {
		*dsn = os.Getenv("DATABASE_URL")
	}
	if *dsn == "" {
		log.Fatal().Msg("missing DSN: provide via -dsn or DATABASE_URL")
	}
	if flag.NArg() == 0 {
		log.Fatal().Msg("usage: migrate [up|down|status|seed|purge-tokens]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := pg.Open(ctx, *dsn, pg.PoolConfig{MaxOpenConns: 2})
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	var migrationsFS fs.FS
	if *migrations != "" {
		migrationsFS = os.DirFS(*migrations)
	}
	var opts []migrate.Option
	if *seeds != "" {
		opts = append(opts, migrate.WithSeeds(os.DirFS(*seeds)))
	}
	mgr := migrate.NewManager(db, migrationsFS, opts...)

	switch cmd := flag.Arg(0); cmd {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		for _, name := range applied {
			log.Info().Str("migration", name).Msg("applied")
		}
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if err == nil {
			log.Info().Str("migration", name).Msg("rolled back")
		}
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		for _, item := range history {
			fmt.Println(item)
		}
	case "purge-tokens":
		// Purging reads only expires_at, so no token decoder is needed.
		var n int64
		n, err = auth.NewPGRevocationStore(db, nil).PurgeExpired(ctx)
		if err == nil {
			log.Info().Int64("purged", n).Msg("expired tokens removed")
		}
	default:
		log.Fatal().Str("command", cmd).Msg("unknown command")
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", flag.Arg(0)).Msg("migrate failed")
	}
}
