package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/relaychat/relay/internal/api"
	"github.com/relaychat/relay/internal/archive"
	"github.com/relaychat/relay/internal/cache"
	"github.com/relaychat/relay/internal/config"
	"github.com/relaychat/relay/internal/gateway"
	"github.com/relaychat/relay/internal/logger"
	"github.com/relaychat/relay/internal/media"
	"github.com/relaychat/relay/internal/metrics"
	"github.com/relaychat/relay/internal/realtime"
	"github.com/relaychat/relay/internal/repository"
	"github.com/relaychat/relay/internal/service"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zlog, err := logger.New(cfg.App.Env != "production")
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer zlog.Sync()

	metrics.Init()

	ctx := context.Background()

	mongoCli, err := repository.Connect(ctx, cfg.Mongo.URI)
	if err != nil {
		zlog.Fatal("mongo connect", zap.Error(err))
	}
	defer mongoCli.Disconnect(context.Background())
	db := mongoCli.Database(cfg.Mongo.Database)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		zlog.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	transport, err := newTransport(cfg, rdb, zlog)
	if err != nil {
		zlog.Fatal("transport init", zap.Error(err))
	}
	defer transport.Close()

	broker := realtime.NewBroker(realtime.NewRegistry(), transport, zlog)

	messages := repository.NewMessageRepo(db)
	groups := repository.NewGroupRepo(db)
	users := repository.NewUserRepo(db)
	access := repository.NewAccess(groups)
	reads := cache.New(rdb, cfg.Redis.Prefix)

	var sink service.ArchiveSink
	if len(cfg.Kafka.Brokers) > 0 {
		mirror := archive.NewMirror(cfg.Kafka.Brokers, cfg.Kafka.ArchiveTopic, zlog)
		defer mirror.Close()
		sink = mirror
	}

	chatSvc := service.NewChatService(messages, access, users, reads, broker.Chat(), sink, cfg.TypingThrottle, zlog)
	groupSvc := service.NewGroupService(groups, broker.Private(), broker.Group(), zlog)

	gw := gateway.New(broker, groupSvc, chatSvc, reads, gateway.Config{
		PingInterval:   cfg.PingInterval,
		WriteDeadline:  cfg.WriteDeadline,
		MaxMessageSize: cfg.WS.MaxMessageSizeBytes,
	}, zlog)

	deps := api.Deps{
		Verifier: api.NewVerifier(cfg.JWT.Secret),
		Chat:     api.NewChatHandler(chatSvc),
		Groups:   api.NewGroupHandler(groupSvc),
		Users:    api.NewUserHandler(users),
		WS:       gw.Handler(),
	}
	if cfg.AWS.Bucket != "" {
		store, err := media.NewStore(ctx, cfg.AWS.Region, cfg.AWS.Bucket, cfg.PresignTTL)
		if err != nil {
			zlog.Fatal("media store init", zap.Error(err))
		}
		deps.Media = api.NewMediaHandler(store)
	}

	srv := api.NewServer(zlog, deps)

	errs := make(chan error, 1)
	go func() {
		zlog.Info("listening", zap.Int("port", cfg.App.Port))
		errs <- srv.Listen(cfg.App.Port)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errs:
		zlog.Fatal("server error", zap.Error(err))
	case s := <-sig:
		zlog.Info("signal received", zap.String("signal", s.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("shutdown", zap.Error(err))
	}
}

func newTransport(cfg *config.Config, rdb *redis.Client, zlog *zap.Logger) (realtime.Transport, error) {
	switch cfg.Transport.Driver {
	case "redis":
		return realtime.NewRedisTransport(rdb, cfg.Redis.Prefix, zlog), nil
	case "nats":
		return realtime.NewNATSTransport(cfg.Transport.NATSURL, zlog)
	case "memory":
		return realtime.NewMemoryTransport(), nil
	default:
		return nil, fmt.Errorf("unknown transport driver %q", cfg.Transport.Driver)
	}
}
