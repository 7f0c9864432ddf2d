package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/zephyrite/zephyrite/internal/core/domain"
	"github.com/zephyrite/zephyrite/internal/infra/buildinfo"
	"github.com/zephyrite/zephyrite/internal/infra/confloader"
	"github.com/zephyrite/zephyrite/internal/infra/shutdown"
	"github.com/zephyrite/zephyrite/internal/server/config"
	"github.com/zephyrite/zephyrite/internal/server/httpserver"
	"github.com/zephyrite/zephyrite/internal/server/redisserver"
	"github.com/zephyrite/zephyrite/internal/storage"
	"github.com/zephyrite/zephyrite/internal/storage/wal"
	"github.com/zephyrite/zephyrite/internal/telemetry/logger"
	"github.com/zephyrite/zephyrite/internal/telemetry/metric"
	"github.com/zephyrite/zephyrite/internal/telemetry/tracer"
	"github.com/zephyrite/zephyrite/pkg/crypto/adaptive"
)

func run(c *cli.Context) error {
	path := c.String("config")
	flags := overrides(c)

	cfg, err := loadConfig(path, flags)
	if err != nil {
		return err
	}
	if c.Bool("print-config") {
		return printConfig(c.App.Writer, cfg)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)

	info := buildinfo.Get()
	log.Info("starting zephyrite-server",
		"version", info.Version,
		"commit", info.Commit,
		"backend", cfg.Storage.EffectiveBackend(),
		"config", path)

	sd := shutdown.NewHandler(shutdown.DefaultTimeout, shutdown.WithLogger(log))

	d, err := start(c.Context, cfg, log, metric.Global(), sd)
	if err != nil {
		// Release whatever started before the failure.
		sd.Trigger("startup failed")
		if werr := sd.Wait(context.Background()); werr != nil {
			log.Error("cleanup after failed start", "error", werr)
		}
		return err
	}

	if path != "" {
		if err := watchConfig(path, flags, cfg.Log.Level, log, sd); err != nil {
			log.Warn("config watch disabled", "error", err)
		}
	}

	log.Info("server started", "http", d.httpAddr.String(), "redis", addrString(d.redisAddr))
	if err := sd.Wait(c.Context); err != nil {
		log.Error("shutdown finished with errors", "error", err)
		return err
	}
	log.Info("server stopped")
	return nil
}

// loadConfig layers defaults, the file at path, the environment and flags,
// then verifies the result.
func loadConfig(path string, flags map[string]any) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{confloader.WithOverrides(flags)}
	if path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func printConfig(w io.Writer, cfg *config.ServerConfig) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(config.Sanitize(cfg)); err != nil {
		return err
	}
	return enc.Close()
}

// daemon holds the addresses the servers bound to.
type daemon struct {
	engine    storage.Engine
	httpAddr  net.Addr
	redisAddr net.Addr
}

// start opens storage and starts the listeners. Every component registers
// its shutdown hook as soon as it is up, so hooks run in reverse start
// order.
func start(ctx context.Context, cfg *config.ServerConfig, log *slog.Logger, reg *metric.Registry, sd *shutdown.Handler) (*daemon, error) {
	var tr trace.Tracer
	if cfg.Telemetry.TracingEndpoint != "" {
		tp, err := tracer.New(tracer.Config{
			Endpoint:    cfg.Telemetry.TracingEndpoint,
			SampleRatio: cfg.Telemetry.SampleRatio,
			Version:     buildinfo.Get().Version,
		}, tracer.WithGlobal())
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		sd.OnShutdown("tracer", tp.Shutdown)
		tr = tp.Tracer()
		log.Info("tracing enabled", "endpoint", cfg.Telemetry.TracingEndpoint)
	}

	engine, err := openStorage(ctx, cfg, log, reg)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	sd.OnShutdown("storage", func(context.Context) error {
		return engine.Close()
	})
	if err := reg.Prometheus().Register(metric.NewCollector(engine)); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, fmt.Errorf("register store collector: %w", err)
		}
	}

	d := &daemon{engine: engine}

	httpCfg := cfg.Server.HTTP
	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Engine:          engine,
		Logger:          log,
		Metrics:         reg,
		MetricsEndpoint: cfg.Telemetry.Metrics,
		Tracer:          tr,
		RateLimit:       httpCfg.RateLimit,
		RateBurst:       httpCfg.RateBurst,
		MaxBodyBytes:    httpCfg.MaxBodyBytes,
		Version:         buildinfo.Get().Version,
		Backend:         cfg.Storage.EffectiveBackend(),
	})
	httpSrv := httpserver.New(httpserver.Config{
		Address:      httpCfg.Address,
		ReadTimeout:  httpCfg.ReadTimeout,
		WriteTimeout: httpCfg.WriteTimeout,
		IdleTimeout:  httpCfg.IdleTimeout,
		TLSCertFile:  httpCfg.TLSCertFile,
		TLSKeyFile:   httpCfg.TLSKeyFile,
	}, router, log)

	ln, err := net.Listen("tcp", httpCfg.Address)
	if err != nil {
		return nil, fmt.Errorf("listen http: %w", err)
	}
	d.httpAddr = ln.Addr()
	go func() {
		if err := httpSrv.Serve(ln); err != nil {
			log.Error("http server failed", "error", err)
			sd.Trigger("http server failed")
		}
	}()
	sd.OnShutdown("http", httpSrv.Shutdown)

	if cfg.Server.Redis.Enabled {
		rs := redisserver.New(redisserver.Config{
			Address:   cfg.Server.Redis.Address,
			RateLimit: httpCfg.RateLimit,
			RateBurst: httpCfg.RateBurst,
		}, engine, log, redisserver.WithMetrics(reg))

		rln, err := net.Listen("tcp", cfg.Server.Redis.Address)
		if err != nil {
			return nil, fmt.Errorf("listen redis: %w", err)
		}
		d.redisAddr = rln.Addr()
		go func() {
			if err := rs.Serve(rln); err != nil {
				log.Error("resp server failed", "error", err)
				sd.Trigger("resp server failed")
			}
		}()
		sd.OnShutdown("redis", rs.Shutdown)
	}

	return d, nil
}

func openStorage(ctx context.Context, cfg *config.ServerConfig, log *slog.Logger, reg *metric.Registry) (storage.Engine, error) {
	sc := cfg.Storage

	scfg := storage.DefaultConfig()
	scfg.Backend = sc.EffectiveBackend()
	scfg.WAL = wal.Config{
		Path:         sc.WALFile,
		Checksums:    sc.Checksums,
		SyncMode:     wal.SyncMode(sc.SyncMode),
		SyncInterval: sc.SyncInterval,
	}
	scfg.DataDir = sc.DataDir
	scfg.MemoryCapacity = sc.MemoryCapacity
	if sc.StrictKeys {
		scfg.KeyPolicy = domain.StrictKeyPolicy()
	}
	if sc.EncryptionKey != "" {
		c, err := adaptive.NewFromSecret(sc.EncryptionKey, adaptive.CipherType(sc.Cipher))
		if err != nil {
			return nil, fmt.Errorf("init cipher: %w", err)
		}
		scfg.Cipher = c
	}
	scfg.Logger = log
	scfg.Metrics = reg

	return storage.Open(ctx, scfg)
}

// watchConfig reloads the file at path on change and applies a new log
// level. Other settings need a restart.
func watchConfig(path string, flags map[string]any, level string, log *slog.Logger, sd *shutdown.Handler) error {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return err
	}
	if err := w.Watch(path); err != nil {
		w.Stop()
		return err
	}

	current := level
	w.OnChange(func(string) {
		next, err := reloadLogLevel(path, flags, current)
		if err != nil {
			log.Warn("config reload failed", "path", path, "error", err)
			return
		}
		if next != current {
			log.Info("log level changed", "from", current, "to", next)
			current = next
		}
	})
	w.StartAsync()
	sd.OnShutdown("config watcher", func(context.Context) error {
		return w.Stop()
	})
	return nil
}

// reloadLogLevel re-reads the configuration and applies its log level when
// it differs from current. It returns the level in effect afterwards.
func reloadLogLevel(path string, flags map[string]any, current string) (string, error) {
	cfg, err := loadConfig(path, flags)
	if err != nil {
		return current, err
	}
	if cfg.Log.Level == current {
		return current, nil
	}
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		return current, err
	}
	return cfg.Log.Level, nil
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
