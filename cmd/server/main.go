package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"contactpay/internal/config"
	"contactpay/internal/gateway"
	"contactpay/internal/handler"
	"contactpay/internal/infrastructure/cache"
	"contactpay/internal/infrastructure/database"
	"contactpay/internal/infrastructure/mq"
	"contactpay/internal/job"
	"contactpay/internal/service"
	"contactpay/pkg/idgen"
)

func main() {
	cfg := config.LoadConfig("config/config.yaml")

	idgen.Init(1)

	db := database.InitMySQL(&cfg.MySQL)
	redisClient := cache.InitRedis(&cfg.Redis)

	producer, err := mq.NewProducer(&cfg.Kafka)
	if err != nil {
		log.Fatalf("failed to create Kafka producer: %v", err)
	}
	defer producer.Close()

	gatewayClient := gateway.NewHTTPClient(&cfg.Gateway)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	committer := service.NewCommitter(db, cfg)
	reconciler := service.NewReconciler(db, cfg, gatewayClient, committer)

	outboxSender := job.NewOutboxSender(db, producer, cfg)
	go outboxSender.Start(ctx)

	reconcileSweep := job.NewReconcileSweepJob(db, cfg, reconciler, committer)
	go reconcileSweep.Start(ctx)

	expireJob := job.NewExpireJob(db)
	go expireJob.Start(ctx)

	router := handler.SetupRouter(db, redisClient, cfg, gatewayClient)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("listening on :%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	log.Println("server stopped")
}
