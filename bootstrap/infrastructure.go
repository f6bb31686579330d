package bootstrap

import (
	"github.com/wjixiang/aikb/config"
	"github.com/wjixiang/aikb/pkg/logging"
	"github.com/wjixiang/aikb/platform/broker"
	"github.com/wjixiang/aikb/platform/cache"
	"github.com/wjixiang/aikb/platform/database"
	"github.com/wjixiang/aikb/platform/events"
	"github.com/wjixiang/aikb/platform/redis"
	"github.com/wjixiang/aikb/platform/storage"
)

type Infrastructure struct {
	DB             *database.DB
	Redis          *redis.Service
	Storage        *storage.Service
	Broker         broker.Broker
	Cache          cache.CacheService
	EventPublisher *events.EventPublisher
}

func NewInfrastructure(cfg *config.Config) (*Infrastructure, error) {
	infra := &Infrastructure{}

	// database
	db, err := database.InitPostgres(cfg)
	if err != nil {
		return nil, err
	}
	infra.DB = db
	if err := infra.DB.AutoMigrate(); err != nil {
		return nil, err
	}

	// redis services
	redisService, err := redis.InitRedis(cfg)
	if err != nil {
		logging.Logger.Error("fail Initializing Redis", "error", err)
		return nil, err
	}
	infra.Redis = redisService

	// storage services
	storageService, err := storage.InitStorageService(cfg)
	if err != nil {
		logging.Logger.Error("fail Initializing Bucket", "error", err)
		return nil, err
	}
	infra.Storage = storageService

	// message broker
	amqpBroker, err := broker.NewAMQPBroker(cfg.BrokerURL)
	if err != nil {
		logging.Logger.Error("fail Initializing Broker", "error", err)
		return nil, err
	}
	infra.Broker = amqpBroker

	// cache
	l1CacheService := cache.InitL1Cache()
	cacheService := cache.NewCacheService(l1CacheService, redisService)
	infra.Cache = cacheService

	// event publisher
	eventPublisher := events.NewEventPublisher(redisService.Rdb)
	infra.EventPublisher = eventPublisher

	return infra, nil
}

func (infra *Infrastructure) Shutdown() error {
	if closer, ok := infra.Broker.(*broker.AMQPBroker); ok {
		if err := closer.Close(); err != nil {
			logging.Logger.Error("fail closing broker", "error", err)
			return err
		}
	}
	if err := infra.DB.Close(); err != nil {
		logging.Logger.Error("fail closing database", "error", err)
		return err
	}
	if err := infra.Redis.Rdb.Close(); err != nil {
		logging.Logger.Error("fail closing redis", "error", err)
		return err
	}
	return nil
}
