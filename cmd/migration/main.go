package main

import (
	"entryready/cmd/migration/initialize"
	"entryready/cmd/migration/seed"
	"entryready/config"
	"entryready/internal/database"
	"entryready/internal/logger"
	"flag"
	"os"
)

func main() {
	seedData := flag.Bool("seed", false, "seed development travelers after migrating")
	rollback := flag.Int("rollback", 0, "roll back this many migrations instead of migrating")
	flag.Parse()

	if err := run(*seedData, *rollback); err != nil {
		os.Exit(1)
	}
}

func run(seedData bool, rollback int) error {
	log := logger.New("migration").Function("run")

	cfg, err := config.InitConfig()
	if err != nil {
		return log.Err("failed to load config", err)
	}
	logger.Init(cfg.LogLevel, "console")

	db, err := database.New(cfg)
	if err != nil {
		return log.Err("failed to open database", err)
	}
	defer func() { _ = db.Close() }()

	if rollback > 0 {
		n, err := db.Rollback(rollback)
		if err != nil {
			return log.Err("rollback failed", err)
		}
		log.Info("Rolled back migrations", "count", n)
		return nil
	}

	n, err := db.Migrate()
	if err != nil {
		return log.Err("migration failed", err)
	}
	log.Info("Applied migrations", "count", n)

	if err := initialize.Initialize(db, cfg, log); err != nil {
		return err
	}

	if !seedData {
		return nil
	}
	if cfg.IsProduction() {
		log.Warn("Refusing to seed a production database")
		return nil
	}
	return seed.Seed(db, cfg, log)
}
