package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"resetd/internal/config"
	"resetd/internal/db"
	"resetd/internal/db/migrations"
	"resetd/internal/interfaces"
	"resetd/internal/repository"
	"resetd/internal/services"
)

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (interfaces.AccountRepository, func(), error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		if err := db.CreateDatabaseIfNotExists(ctx, cfg.DatabaseURL, log); err != nil {
			return nil, nil, err
		}
		database, err := db.New(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, nil, err
		}
		if err := migrations.RunMigrations(ctx, database.DB, log); err != nil {
			_ = database.Close()
			return nil, nil, err
		}
		return repository.NewAccountRepository(database.DB), func() { _ = database.Close() }, nil

	case config.StoreRedis:
		rdb, err := db.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewRedisAccountRepository(rdb, "", log), func() { _ = rdb.Close() }, nil

	case config.StoreMemory:
		log.Warn().Msg("using in-memory account store, data is lost on restart")
		return repository.NewMemoryAccountRepository(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func openNotifier(ctx context.Context, cfg *config.Config, log zerolog.Logger) (services.Notifier, func(), error) {
	switch cfg.Notifier {
	case config.NotifierSMTP:
		sender := &services.SMTPSender{
			Host:   cfg.SMTPHost,
			Port:   strconv.Itoa(cfg.SMTPPort),
			User:   cfg.SMTPUser,
			Pass:   cfg.SMTPPassword,
			From:   cfg.SMTPFrom,
			UseTLS: cfg.SMTPUseTLS,
		}
		return services.NewEmailNotifier(sender), func() {}, nil

	case config.NotifierAMQP:
		pub, err := services.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, nil, err
		}
		return pub, func() { _ = pub.Close() }, nil

	case config.NotifierS3:
		s3cfg, err := config.NewS3Config(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return services.NewS3Dropbox(s3cfg.Client, s3cfg.Bucket, s3cfg.Prefix), func() {}, nil

	case config.NotifierLog:
		return services.NewLogNotifier(log), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown notifier %q", cfg.Notifier)
}
