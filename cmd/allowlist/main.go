// Command allowlist loads an allowlist file into the mint ledger for one phase.
//
//	allowlist -file presale.csv -phase 0 -quantity 1
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"mintgate/internal/mint/allowlist"
	"mintgate/internal/mint/store"
	"mintgate/internal/platform/config"
	"mintgate/internal/platform/database"
	"mintgate/internal/platform/logger"
	"mintgate/migrations"
)

func main() {
	file := flag.String("file", "", "allowlist file, one address per line with an optional ,quantity")
	phase := flag.Int("phase", 0, "phase index the entries belong to")
	quantity := flag.Int64("quantity", 1, "allowance for lines without a quantity")
	dryRun := flag.Bool("dry-run", false, "parse and validate without writing")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadTool()
	if err != nil {
		logger.New("error", "text").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if *file == "" || *phase < 0 {
		flag.Usage()
		os.Exit(2)
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Error("failed to open allowlist", "file", *file, "error", err)
		os.Exit(1)
	}
	entries, err := allowlist.Parse(f, *phase, *quantity)
	_ = f.Close()
	if err != nil {
		log.Error("invalid allowlist", "file", *file, "error", err)
		os.Exit(1)
	}
	log.Info("parsed allowlist", "file", *file, "phase", *phase, "entries", len(entries))
	if *dryRun {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.New(ctx, cfg.Database)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if pool == nil {
		log.Error("DATABASE_URL is required to load an allowlist")
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if _, err := pool.Migrate(ctx, migrations.FS); err != nil {
			log.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	written, err := allowlist.Load(ctx, store.NewPostgres(pool.DB()), *phase, entries)
	if err != nil {
		log.Error("failed to load allowlist", "written", written, "error", err)
		os.Exit(1)
	}
	log.Info("allowlist loaded", "phase", *phase, "written", written)
}
