package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/extractdesk/backend/internal/api"
	"github.com/extractdesk/backend/internal/config"
	"github.com/extractdesk/backend/internal/journal"
	"github.com/extractdesk/backend/internal/logging"
	"github.com/extractdesk/backend/internal/session"
	"github.com/extractdesk/backend/internal/storage"
	"github.com/extractdesk/backend/internal/upload"
	"github.com/extractdesk/backend/internal/web"
	"github.com/extractdesk/backend/internal/widget"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath, err := resolveConfigPath()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Advanced.LogLevel)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	// run owns every deferred cleanup, so it must return before exiting.
	if err := run(cfg, configPath, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

// resolveConfigPath prefers CONFIG_PATH and otherwise looks next to the binary.
func resolveConfigPath() (string, error) {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p, nil
	}
	exePath, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(exePath), "ExtractDesk.config.xml"), nil
}

func run(cfg *config.AppConfig, configPath string, logger *zap.Logger) error {
	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	fileStore, err := storage.NewLocalStore(cfg.GetSelectionsDir())
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	if n, err := fileStore.PurgeUntracked(); err != nil {
		logger.Warn("failed to purge stale selections", zap.Error(err))
	} else if n > 0 {
		logger.Info("purged stale selections", zap.Int("count", n))
	}

	client := upload.NewClient(cfg.Upload.Endpoint, cfg.GetRequestTimeout(), logger)

	var recorder widget.Recorder
	var attempts api.AttemptJournal
	var jrnl *journal.Journal
	if cfg.Advanced.EnableJournal {
		jrnl, err = journal.Open(journal.Options{
			Threads:     cfg.Advanced.DuckDBThreads,
			MemoryLimit: cfg.Advanced.DuckDBMemoryLimit,
		}, logger)
		if err != nil {
			return err
		}
		defer jrnl.Close()
		recorder = jrnl
		attempts = jrnl
	}

	widgetMgr := session.NewManager(func(id string) *widget.Widget {
		return widget.New(id, widget.Deps{
			Store:          fileStore,
			Uploader:       client,
			Recorder:       recorder,
			Logger:         logger,
			NotifyCapacity: cfg.Widgets.MaxNotifications,
		})
	}, cfg.Widgets.MaxMounted, logger)
	if jrnl != nil {
		widgetMgr.OnUnmount = func(id string) {
			if err := jrnl.Forget(context.Background(), id); err != nil {
				logger.Warn("failed to drop journaled attempts", zap.String("widget", id), zap.Error(err))
			}
		}
	}
	defer widgetMgr.CloseAll()

	e := newEcho(cfg, logger)
	api.SetupMiddleware(e, cfg.Advanced.LogLevel == "debug")
	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Widgets:        widgetMgr,
		Journal:        attempts,
		UploadEndpoint: client.Endpoint(),
		MaxWidgets:     cfg.Widgets.MaxMounted,
		MaxMessageSize: int64(cfg.Advanced.WebSocketMaxMessageSize) * 1024,
		Version:        Version,
		Logger:         logger,
	}))

	embeddedMode := web.HasEmbeddedFiles()
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			logger.Warn("failed to register static routes", zap.Error(err))
			embeddedMode = false
		}
	}

	// Configure server with settings from config
	// No WriteTimeout: snapshot streams stay open. Plain routes are bounded
	// by the timeout middleware instead.
	s := &http.Server{
		Addr:        cfg.GetServerAddr(),
		ReadTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		IdleTimeout: time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(cfg, configPath, embeddedMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return widgetMgr.Run(gctx,
			time.Duration(cfg.Widgets.CleanupIntervalMinutes)*time.Minute,
			time.Duration(cfg.Widgets.IdleTimeoutMinutes)*time.Minute)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newEcho(cfg *config.AppConfig, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Configure middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/ws") ||
				strings.HasPrefix(path, "/static/") ||
				path == "/api/health"
		},
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			logger.Info("request", fields...)
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
		LogLevel:          0,
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			return strings.HasSuffix(c.Request().URL.Path, "/ws")
		},
		ErrorMessage: "Request timeout",
	}))

	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool {
			return strings.HasSuffix(c.Request().URL.Path, "/ws") ||
				strings.HasSuffix(c.Request().URL.Path, "/msgpack")
		},
	}))

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.GetAllowOrigins(),
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	return e
}

func printBanner(cfg *config.AppConfig, configPath string, embeddedMode bool) {
	mode := "API only"
	if embeddedMode {
		mode = "Embedded page"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Extract Desk Server                             ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Upload to: %-46s║\n", cfg.Upload.Endpoint)
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	if embeddedMode {
		fmt.Printf("Open http://localhost:%d in your browser\n\n", cfg.Server.Port)
	}
}
