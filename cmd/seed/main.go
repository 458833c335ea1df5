package main

import (
	"os"

	"github.com/oggyb/cunhao-core/internal/config"
	"github.com/oggyb/cunhao-core/internal/db"
	"github.com/oggyb/cunhao-core/internal/logger"
)

func main() {
	cfg := config.New()
	logger.InitFromConfig(cfg)
	log := logger.For("seed")

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	if err := db.SeedTestData(database, log); err != nil {
		log.Error("failed to seed", "err", err)
		os.Exit(1)
	}

	log.Info("seeding completed")
}
