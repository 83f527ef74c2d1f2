package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/attendance"
	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/cache"
	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/config"
	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/db"
	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/events"
	attendancegrpc "github.com/HarshaVardhanRao/StudentActivityCentre/internal/grpc"
	internalhttp "github.com/HarshaVardhanRao/StudentActivityCentre/internal/http"
	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/jobs"
	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/metrics"
)

func main() {
	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		log.Fatalf("env file: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, int32(cfg.DatabaseMaxConns))
	if err != nil {
		log.Fatalf("db connection failed: %v", err)
	}
	defer pool.Close()
	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
	}
	store := db.NewStore(pool)

	collector := metrics.New(prometheus.DefaultRegisterer)
	opts := []attendance.Option{attendance.WithMetrics(collector)}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatalf("redis ping failed: %v", err)
		}
		cancel()
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Printf("redis close error: %v", err)
			}
		}()
		opts = append(opts,
			attendance.WithCache(cache.NewVerification(redisClient, cfg.VerifyCacheTTL)),
			attendance.WithPublisher(events.NewRedisPublisher(redisClient, cfg.EventsChannel)),
		)
	} else {
		opts = append(opts, attendance.WithPublisher(events.NewLogPublisher(log.Default())))
	}

	svc := attendance.NewService(store, attendance.Config{
		DefaultSessionDuration: cfg.DefaultSessionDuration,
		ImplicitOpenLead:       cfg.ImplicitOpenLead,
		ImplicitOpenWindow:     cfg.ImplicitOpenWindow,
		MaxSuffixAttempts:      cfg.RefCodeMaxSuffix,
		TxRetries:              cfg.TxRetries,
		OverdueBatch:           cfg.OverdueBatchSize,
	}, opts...)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           internalhttp.NewServer(cfg, svc).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serviceAuthInterceptor, err := attendancegrpc.NewServiceAuthUnaryInterceptor(cfg.ServiceAuthToken)
	if err != nil {
		log.Fatalf("grpc service auth init failed: %v", err)
	}
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(serviceAuthInterceptor))
	attendancegrpc.RegisterAttendanceQueryService(grpcServer, attendancegrpc.NewAttendanceQueryServer(svc))

	if _, err := jobs.StartOverdueJob(ctx, cfg, svc, collector); err != nil {
		log.Fatalf("overdue job init failed: %v", err)
	}

	go func() {
		log.Printf("attendance http listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	go func() {
		listener, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("grpc listen error: %v", err)
		}
		log.Printf("attendance grpc listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(listener); err != nil {
			log.Fatalf("grpc server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	grpcServer.GracefulStop()
}
