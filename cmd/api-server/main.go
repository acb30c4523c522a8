// Package main API Server 入口
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catalog-admin/internal/apiserver/auth"
	"catalog-admin/internal/apiserver/ratelimit"
	"catalog-admin/internal/apiserver/server"
	"catalog-admin/internal/config"
	"catalog-admin/internal/shared/cache"
	redisCache "catalog-admin/internal/shared/cache/redis"
	"catalog-admin/internal/shared/storage/dbutil"
	"catalog-admin/internal/shared/storage/driver/postgres"
	"catalog-admin/internal/shared/storage/driver/sqlite"
	"catalog-admin/internal/shared/storage/repository"
)

func main() {
	// 加载配置（自动加载 .env，根据 APP_ENV 切换数据库和 Redis）
	cfg := config.Load()

	log.Printf("Starting API Server... [env=%s]", cfg.Env)
	log.Printf("Config: %s", cfg.String())

	// 初始化数据库（驱动由配置选择）
	db, dialect, err := openDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if cfg.Database.AutoMigrate {
		if err := dialect.AutoMigrate(db); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}
	store := repository.NewStore(db, dialect)
	defer store.Close()
	log.Printf("Connected to database [driver=%s]", cfg.Database.Driver)

	// 初始化令牌吊销缓存（Redis 不可用或关闭时退化为进程内缓存）
	var revoked cache.Cache
	if cfg.RedisEnabled {
		rs, err := redisCache.NewStoreFromURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		revoked = rs
		log.Println("Connected to Redis")
	} else {
		revoked = cache.NewMemoryCache()
		log.Println("Redis disabled, using in-process revocation cache")
	}
	defer revoked.Close()

	// 认证配置 + 管理员引导
	authCfg := auth.Config{
		JWTSecret:  cfg.JWTSecret,
		TokenTTL:   cfg.Auth.TokenTTL,
		BcryptCost: cfg.Auth.BcryptCost,
	}
	if cfg.AdminPassword != "" {
		if err := auth.EnsureAdminUser(store, authCfg, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			log.Fatalf("Failed to ensure admin user: %v", err)
		}
	}

	// 初始化 Handler
	h := server.NewHandler(store, revoked, authCfg, ratelimit.Config{
		Window: cfg.RateLimit.Window,
		Cap:    cfg.RateLimit.Cap,
	})

	// 启动限流器清扫和指标采样
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.GetLimiter().StartJanitor(ctx, cfg.RateLimit.Window)
	go h.StartStatsSampler(ctx, 30*time.Second)

	srv := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
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

	log.Printf("API Server listening on :%s", cfg.APIPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	fmt.Println("Server stopped")
}

// openDatabase 按配置打开数据库连接并返回对应方言
func openDatabase(cfg *config.Config) (*sql.DB, dbutil.Dialect, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		db, err := sqlite.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return db, sqlite.NewDialect(), nil
	case "postgres", "":
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return db, postgres.NewDialect(), nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver: %q", cfg.Database.Driver)
	}
}
