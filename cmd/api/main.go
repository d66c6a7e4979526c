package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeMC777/ecom-backend/internal/auth"
	"github.com/MikeMC777/ecom-backend/internal/blob"
	"github.com/MikeMC777/ecom-backend/internal/config"
	"github.com/MikeMC777/ecom-backend/internal/mail"
	"github.com/MikeMC777/ecom-backend/internal/memory"
	"github.com/MikeMC777/ecom-backend/internal/mongodb"
	"github.com/MikeMC777/ecom-backend/internal/order"
	"github.com/MikeMC777/ecom-backend/internal/postgres"
	"github.com/MikeMC777/ecom-backend/internal/product"
	"github.com/MikeMC777/ecom-backend/internal/redisx"
	"github.com/MikeMC777/ecom-backend/internal/user"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	d := deps{corsOrigins: cfg.CORSOrigins}

	if cfg.StoreBackend == "memory" {
		store := memory.NewStore()
		d.users, d.products, d.orders = store.Users(), store.Products(), store.Orders()
		authStore := memory.NewAuthStore()
		d.revoked, d.otps = authStore, authStore
		log.Printf("[main] using in-memory store")
	} else {
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		d.users = user.NewPGRepo(pool)
		d.products = product.NewPGRepo(pool)
		d.orders = order.NewPGRepo(pool)

		mstore, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			log.Fatalf("mongodb: %v", err)
		}
		defer func() { _ = mstore.Close(context.Background()) }()
		d.revoked, d.otps = mstore, mstore
	}

	d.cache = redisx.NewOrderCache(redisx.New(cfg.RedisAddr))

	s3store, err := blob.NewS3Store(ctx, cfg.AWSRegion, cfg.AWSS3Bucket, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey)
	if err != nil {
		log.Fatalf("s3: %v", err)
	}
	d.blobs = s3store

	d.mailer = mail.LogMailer{}
	if cfg.SMTPHost != "" {
		d.mailer = &mail.SMTPMailer{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.EmailFrom,
		}
	}

	d.tokens = auth.NewTokens(cfg.JWTSecret,
		time.Duration(cfg.AccessTokenTTLm)*time.Minute,
		time.Duration(cfg.RefreshTokenTTLd)*24*time.Hour)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: newRouter(d)}

	go func() {
		log.Printf("[main] api listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-stop.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] shutdown: %v", err)
	}
	log.Printf("[main] bye")
}
