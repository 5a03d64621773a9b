// HTML/URL to PDF conversion service.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"html2pdf/internal/config"
	"html2pdf/internal/convert"
	"html2pdf/internal/server"
	"html2pdf/pkg/logger"
	"html2pdf/pkg/metrics"
	"html2pdf/pkg/pool"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to config.yaml (optional; defaults apply if unset)")
	)
	flag.Parse()

	fmt.Println("╔════════════════════════════════════════════════════════════╗")
	fmt.Println("║              html2pdf — browser pool conversion              ║")
	fmt.Println("╚════════════════════════════════════════════════════════════╝")
	fmt.Println()

	reloader := config.NewReloader(*configPath, nil)
	if err := reloader.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	cfg := reloader.Current()

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Output:      cfg.Log.Output,
		MaxSize:     cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAge:      cfg.Log.MaxAgeDays,
		Compress:    cfg.Log.Compress,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "constructing logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	poolCfg, err := cfg.PoolConfig()
	if err != nil {
		log.Fatal("invalid pool configuration", zap.Error(err))
	}

	mc := metrics.NewCollector()

	factory := pool.NewChromeFactory(pool.ChromeFactoryConfig{
		ExecPath:   cfg.Chrome.ExecPath,
		Headless:   cfg.Chrome.Headless,
		ProxyURL:   cfg.Chrome.ProxyURL,
		ExtraFlags: cfg.Chrome.ExtraFlags,
	})

	p, err := pool.New(poolCfg, factory, log, mc)
	if err != nil {
		log.Fatal("constructing pool", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("warming up browser pool", zap.Int("warmup_count", poolCfg.WarmupCount))
	if err := p.Warmup(ctx); err != nil {
		log.Error("warmup encountered an error, continuing with instances created so far", zap.Error(err))
	}
	p.Start(ctx)

	conv := convert.New(p, log, mc)
	srv := server.New(server.Config{
		RequestsPerSecond:  cfg.Server.RequestsPerSecond,
		RateLimitBurst:     cfg.Server.RateLimitBurst,
		MaxRequestBodyMB:   cfg.Server.MaxRequestBodyMB,
		ConvertTimeoutSecs: cfg.Server.ConvertTimeoutSecs,
		PoolStatsInterval:  poolCfg.PingInterval,
	}, p, conv, mc, log)
	srv.Start(ctx)

	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: srv.Handler(),
	}

	if err := reloader.Start(); err != nil {
		log.Warn("config hot-reload disabled", zap.Error(err))
	}
	reloader.OnChange(func(newCfg config.ServiceConfig) {
		log.Info("ambient config changed; pool sizing requires a restart to take effect",
			zap.String("log_level", newCfg.Log.Level))
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("listening", zap.String("addr", cfg.Server.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", zap.Error(err))
		}
	}()

	<-sigCh
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	_ = httpServer.Shutdown(shutdownCtx)
	reloader.Stop()
	cancel()
	p.Shutdown(shutdownCtx)

	log.Info("shutdown complete")
}
