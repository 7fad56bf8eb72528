// Package main API Server 入口
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

	"scholarcamp/internal/apiserver/auth"
	"scholarcamp/internal/apiserver/server"
	"scholarcamp/internal/config"
	"scholarcamp/internal/shared/cache/redis"
	"scholarcamp/internal/shared/objstore"
	"scholarcamp/internal/shared/storage/mongostore"
)

func main() {
	// 加载配置（自动加载 .env，根据 APP_ENV 切换 yaml）
	cfg := config.Load()

	log.Printf("Starting API Server... [env=%s]", cfg.Env)
	log.Printf("Config: %s", cfg.String())

	// 初始化 MongoDB（持久化业务数据）
	store, err := mongostore.NewStore(cfg.MongoURI(), cfg.Database.Name)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer store.Close()
	log.Println("Connected to MongoDB")

	// 初始化 MinIO（资料文件存储）
	objects, err := objstore.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("Failed to connect to MinIO: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := objects.EnsureBucket(ctx); err != nil {
		cancel()
		log.Fatalf("Failed to ensure MinIO bucket: %v", err)
	}
	cancel()
	log.Println("Connected to MinIO")

	// 初始化 Redis 限流器（可选，未配置时禁用限流）
	var limiter auth.Limiter
	if cfg.RateLimit.Enabled && cfg.Redis.Addr != "" {
		redisStore, err := redis.NewStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("Redis unavailable, rate limiting disabled: %v", err)
		} else {
			defer redisStore.Close()
			limiter = redisStore
			log.Println("Connected to Redis")
		}
	}

	// 管理员用户引导
	if err := auth.EnsureAdminUser(store, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		log.Fatalf("Failed to ensure admin user: %v", err)
	}

	h := server.NewHandler(store, objects, limiter, cfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // 留给大文件下载
		IdleTimeout:  60 * time.Second,
	}

	// 优雅关闭
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("API Server listening on :%s", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	fmt.Println("Server stopped")
}
