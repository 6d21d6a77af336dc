package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Spok95/lms-recordings/internal/access"
	"github.com/Spok95/lms-recordings/internal/api"
	"github.com/Spok95/lms-recordings/internal/app"
	"github.com/Spok95/lms-recordings/internal/config"
	"github.com/Spok95/lms-recordings/internal/db"
	"github.com/Spok95/lms-recordings/internal/demo"
	"github.com/Spok95/lms-recordings/internal/identity"
	"github.com/Spok95/lms-recordings/internal/jobs"
	"github.com/Spok95/lms-recordings/internal/logging"
	"github.com/Spok95/lms-recordings/internal/observability"
	"github.com/Spok95/lms-recordings/internal/payments"
	"github.com/Spok95/lms-recordings/internal/playback"
	"github.com/Spok95/lms-recordings/internal/progress"
	"github.com/Spok95/lms-recordings/internal/storage"
	"github.com/Spok95/lms-recordings/internal/stream"
	"github.com/Spok95/lms-recordings/internal/tg"
	"github.com/Spok95/lms-recordings/internal/token"
	"github.com/Spok95/lms-recordings/internal/upload"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env не найден, используем переменные окружения")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Closer()
	logger := lg.Base

	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, cfg.Release)
	if err != nil {
		logger.Warn("sentry init failed", zap.Error(err))
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db open", zap.Error(err))
	}
	defer func() { _ = database.Close() }()
	if err := db.Migrate(ctx, database); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}
	store := db.New(database)

	s3, err := storage.NewS3(storage.S3Config{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		Bucket:    cfg.S3Bucket,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		UseSSL:    cfg.S3UseSSL,
	})
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := s3.Ping(pingCtx); err != nil {
		logger.Warn("s3 bucket check failed", zap.String("bucket", cfg.S3Bucket), zap.Error(err))
	}
	cancel()

	var objects storage.Objects = s3
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer func() { _ = rdb.Close() }()
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unavailable, object stat cache will miss until it recovers", zap.Error(err))
		}
		cancel()
		objects = storage.WithStatCache(s3, storage.NewRedisKV(rdb), cfg.ObjectStatTTL, lg.Component("statcache"))
	}

	notifier, err := tg.NewNotifier(cfg.TelegramBotToken, cfg.AdminChatIDs, lg.Component("tg"))
	if err != nil {
		logger.Fatal("telegram", zap.Error(err))
	}

	signer := token.NewSigner(cfg.AccessTokenSecret, cfg.AccessTokenTTL)
	if !signer.Configured() {
		logger.Error("ACCESS_TOKEN_SECRET is empty, playback tokens will not be issued")
	}

	evaluator := access.NewEvaluator(store, lg.Component("access"))
	registry := progress.NewRegistry(lg.Component("progress"))

	srv := api.NewServer(api.Deps{
		Log:            lg.Component("http"),
		Store:          store,
		Identity:       identity.NewResolver(cfg.AuthJWTSecret, store, lg.Component("identity")),
		Access:         evaluator,
		Playback:       playback.NewService(store, evaluator, signer, lg.Component("playback")),
		Proxy:          stream.NewProxy(objects, lg.Component("stream")),
		Demo:           demo.NewLedger(store, cfg.DemoTTL, cfg.DemoMaxCourses, lg.Component("demo")),
		Uploads:        upload.NewService(objects, store, registry, cfg.UploadMaxBytes, lg.Component("upload")),
		Progress:       registry,
		Payments:       payments.NewService(store, notifier, cfg.SubscriptionDays, lg.Component("payments")),
		CORSOrigins:    cfg.CORSAllowedOrigins,
		Location:       cfg.Location,
		UploadMaxBytes: cfg.UploadMaxBytes,
	})

	runner := jobs.New(ctx, lg.Component("jobs"))
	runner.Every(time.Minute, "expire-subscriptions", jobs.ExpireSubscriptions(store, lg.Component("jobs")))
	runner.Every(time.Minute, "sweep-upload-progress", jobs.SweepUploadProgress(registry, cfg.UploadProgressTTL))
	runner.Every(30*time.Second, "db-ping", jobs.DBPing(store))

	httpSrv := app.StartHTTP(ctx, cfg.HTTPAddr, srv.Router(), lg.Component("http"))
	logger.Info("lms-recordings started", zap.String("env", cfg.Env), zap.String("release", cfg.Release))

	<-ctx.Done()
	logger.Info("shutting down")
	httpSrv.Wait()
}
