package main

import (
	"context"
	"flag"

	"github.com/sirupsen/logrus"

	"lendingledger/internal/catalog"
	"lendingledger/internal/config"
	"lendingledger/internal/db"
	"lendingledger/internal/logging"
	"lendingledger/internal/repository"
)

func main() {
	source := flag.String("source", "catalog.json", "catalog file path or http(s) URL")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.New("info").WithError(err).Fatal("load config")
	}
	log := logging.New(cfg.LogLevel)
	log.Info("starting seed")

	gormDB, err := db.Open(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	if err := db.Migrate(gormDB); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}

	ctx := context.Background()
	log.WithField("source", *source).Info("loading catalog")
	entries, err := catalog.Load(ctx, *source)
	if err != nil {
		log.WithError(err).Fatal("failed to load catalog")
	}

	res, err := catalog.Apply(ctx, repository.NewLoanItemRepository(gormDB), entries)
	if err != nil {
		log.WithError(err).Fatal("failed to seed loan items")
	}

	log.WithFields(logrus.Fields{
		"created": res.Created,
		"updated": res.Updated,
		"skipped": res.Skipped,
	}).Info("seed completed")
}
