package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pribylovaa/go-chat-auth/internal/config"
	chathttp "github.com/pribylovaa/go-chat-auth/internal/http"
	"github.com/pribylovaa/go-chat-auth/internal/http/handlers"
	"github.com/pribylovaa/go-chat-auth/internal/metrics"
	"github.com/pribylovaa/go-chat-auth/internal/password"
	"github.com/pribylovaa/go-chat-auth/internal/refresh"
	"github.com/pribylovaa/go-chat-auth/internal/service"
	"github.com/pribylovaa/go-chat-auth/internal/storage"
	"github.com/pribylovaa/go-chat-auth/internal/storage/memory"
	"github.com/pribylovaa/go-chat-auth/internal/storage/postgres"
	"github.com/pribylovaa/go-chat-auth/internal/storage/redis"
	"github.com/pribylovaa/go-chat-auth/internal/token"
)

// pinger - зависимость, участвующая в readiness-пробе.
type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting application", "env", cfg.Env)

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	// Хранилище пользователей (и refresh-токенов при refresh_store.driver=db).
	dbCtx, dbCancel := context.WithTimeout(rootCtx, 10*time.Second)
	str, err := openStorage(dbCtx, cfg.DB, log)
	dbCancel()
	if err != nil {
		log.Error("storage_open_failed", slog.String("driver", cfg.DB.Driver), slog.String("err", err.Error()))
		rootCancel()
		os.Exit(1)
	}
	defer str.Close()

	deps := []pinger{str}

	var tokensBackend storage.RefreshTokenStorage = str
	if cfg.RefreshStore.Driver == config.RefreshDriverRedis {
		rCtx, rCancel := context.WithTimeout(rootCtx, 5*time.Second)
		rdb, err := redis.New(rCtx, cfg.Redis.RedisURL, cfg.Redis.Prefix)
		rCancel()
		if err != nil {
			log.Error("redis_connect_failed", slog.String("err", err.Error()))
			str.Close()
			rootCancel()
			os.Exit(1)
		}
		defer rdb.Close()

		log.Info("redis_connected", "prefix", cfg.Redis.Prefix)
		tokensBackend = rdb
		deps = append(deps, rdb)
	}

	// Сервис.
	hasher, err := password.New(cfg.Auth.BcryptCost)
	if err != nil {
		log.Error("hasher_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	signer, err := token.NewSigner(token.Options{
		Secret:     cfg.Auth.JWTSecret,
		AccessTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTTL: cfg.Auth.RefreshTokenTTL,
		Issuer:     cfg.Auth.Issuer,
	})
	if err != nil {
		log.Error("signer_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	tokens := refresh.New(tokensBackend, hasher)
	srvc := service.New(str, tokens, signer, hasher)
	log.Info("service_initialized",
		"db_driver", cfg.DB.Driver,
		"refresh_store", cfg.RefreshStore.Driver,
		"bcrypt_cost", hasher.Cost(),
	)

	// Метрики: собственный реестр, без глобального состояния.
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mtr := metrics.New(reg)

	var ready atomic.Bool

	// Служебный HTTP: пробы и метрики.
	metricsAddr := cfg.Metrics.Addr()
	metricsSrv := &http.Server{
		Addr:              metricsAddr,
		Handler:           newOpsMux(&ready, reg, deps),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("metrics_listen_start", "addr", metricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics_serve_failed", slog.String("err", err.Error()))
		}
	}()

	// Публичный REST.
	router := chathttp.NewRouter(srvc, chathttp.Options{
		Logger:  log,
		Timeout: cfg.Timeouts.Service,
		Cookie: handlers.CookieOptions{
			Name:   cfg.Cookie.Name,
			Path:   cfg.Cookie.Path,
			Secure: cfg.SecureCookies(),
			TTL:    signer.RefreshTTL(),
		},
		Metrics: mtr,
	})

	httpAddr := cfg.HTTP.Addr()
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Фоновая очистка просроченных refresh-токенов.
	startRefreshJanitor(rootCtx, tokens, mtr, log, cfg.Janitor.Period)

	serveErrCh := make(chan error, 1)
	go func() {
		log.Info("http_listen_start", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	ready.Store(true)

	// Ожидание сигнала завершения или фатальной ошибки сервера.
	exitCode := 0
	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
			exitCode = 1
		}
	}

	ready.Store(false)

	// Graceful stop с таймаутом.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_force_stop", slog.String("err", err.Error()))
		_ = httpSrv.Close()
	}
	_ = metricsSrv.Shutdown(shutdownCtx)

	log.Info("service_stopped")

	if exitCode != 0 {
		rootCancel()
		str.Close()
		os.Exit(exitCode)
	}
}

// openStorage открывает хранилище по db.driver; для postgres применяет миграции.
func openStorage(ctx context.Context, cfg config.DBConfig, log *slog.Logger) (storage.Storage, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		log.Warn("memory_storage_in_use")
		return memory.New(), nil

	case config.DriverPostgres:
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		log.Info("postgres_connected")

		if cfg.SkipMigrate {
			return pg, nil
		}

		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		log.Info("postgres_migrated")

		return pg, nil

	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.Driver)
	}
}

// newOpsMux - /livez, /healthz (readiness + ping зависимостей) и /metrics.
func newOpsMux(ready *atomic.Bool, reg *prometheus.Registry, deps []pinger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		for _, d := range deps {
			if err := d.Ping(ctx); err != nil {
				http.Error(w, "dependency unavailable", http.StatusServiceUnavailable)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return mux
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case config.EnvLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case config.EnvDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case config.EnvProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}

// purger - часть refresh.Store, нужная janitor-у.
type purger interface {
	Purge(ctx context.Context, now time.Time) (int64, error)
}

// startRefreshJanitor запускает фоновую задачу, которая периодически удаляет
// просроченные refresh-токены. period <= 0 выключает её.
func startRefreshJanitor(ctx context.Context, p purger, m *metrics.Metrics, log *slog.Logger, period time.Duration) {
	if period <= 0 {
		return
	}

	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n, err := p.Purge(ctx, time.Now().UTC())
				if err != nil {
					log.Error("refresh_janitor_failed", slog.String("err", err.Error()))
					continue
				}
				m.Purged(n)
				if n > 0 {
					log.Info("refresh_janitor_purged", "count", n)
				}
			}
		}
	}()
}
