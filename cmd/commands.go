package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"autodl/internal/api"
	"autodl/internal/config"
	fileutil "autodl/internal/file"
	"autodl/internal/logs"
	"autodl/internal/metrics"
	"autodl/internal/process"
	"autodl/internal/task"
)

const (
	readHeaderTimeout = 5 * time.Second
	metricsNamespace  = "autodl"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web service (default)",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "shutdown-timeout",
				Usage: "How long to wait for running tasks on shutdown",
				Value: 30 * time.Second,
			},
		},
		Action: serve,
	}
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Validate the configuration and check that the downloader runs",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out, err := process.CheckRunnable(cfg.DownloaderPath)
			if err != nil {
				return err
			}
			fmt.Printf("config ok, %d output directories\n", len(cfg.OutputDirectories))
			fmt.Printf("%s %s\n", cfg.DownloaderPath, out)
			return nil
		},
	}
}

func updateCommand() *cli.Command {
	return &cli.Command{
		Name:  "update",
		Usage: "Run a downloader self-update and wait for it",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			tm := task.NewManager(task.Options{Config: cfg})
			h, err := tm.SubmitSelfUpdate()
			if err != nil {
				return err
			}
			res, err := h.Wait(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("log: %s\n", logs.NewStore(cfg.LogDir).Path(h.ID()))
			if res.Status == task.StatusFailed {
				return fmt.Errorf("self update failed: %w", res.Err)
			}
			return nil
		},
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	out, err := process.CheckRunnable(cfg.DownloaderPath)
	if err != nil {
		return err
	}
	log.Info().Str("downloader", cfg.DownloaderPath).Str("version", out).Msg("downloader found")

	if err := fileutil.EnsureDir(cfg.LogDir); err != nil {
		return fmt.Errorf("ensure log dir %s: %w", cfg.LogDir, err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	taskManager := task.NewManager(task.Options{
		Config:  cfg,
		Metrics: metrics.New(metricsNamespace, reg),
	})

	router := setupRouter()
	wireAPI(router, cfg, taskManager, reg)

	srv := newHTTPServer(cfg.Port, router, readHeaderTimeout)

	go func() {
		log.Info().Int("port", cfg.Port).Strs("output_directories", cfg.Sources()).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdownSignal(ctx)

	timeout := cmd.Duration("shutdown-timeout")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	gracefulShutdown(srv, taskManager, timeout)
	return nil
}

func setupRouter() *gin.Engine {
	if zerolog.GlobalLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(api.RequestID())
	r.Use(api.ZerologLogger())
	return r
}

func wireAPI(router *gin.Engine, cfg config.Config, tm *task.Manager, reg *prometheus.Registry) {
	apiHandler := api.NewAPI(tm, logs.NewStore(cfg.LogDir), cfg.SubmitRatePerMinute)
	apiHandler.RegisterRoutes(router)
	apiHandler.RegisterUIRoutes(router)
	api.RegisterMetrics(router, reg)

	if info, err := os.Stat(cfg.StaticDir); err == nil && info.IsDir() {
		router.Static("/static", cfg.StaticDir)
	} else {
		log.Debug().Str("dir", cfg.StaticDir).Msg("static directory not found, not serving /static")
	}
}

func newHTTPServer(port int, handler http.Handler, readHeaderTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func waitForShutdownSignal(ctx context.Context) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)
	select {
	case <-quit:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
	}
}

// gracefulShutdown stops accepting requests and waits for running tasks. Tasks are never
// cancelled; whatever is still running at the deadline is abandoned with the process.
func gracefulShutdown(srv *http.Server, tm *task.Manager, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown warning")
	}

	if !tm.WaitAll(ctx) {
		log.Warn().Int("running", tm.Registry().Len()).Msg("tasks did not finish before timeout")
	}
	log.Info().Msg("server exited cleanly")
}
