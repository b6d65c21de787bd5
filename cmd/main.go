package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	aggconfig "github.com/uc-cdis/metadata-service-sub001/internal/aggregate/config"
	authconfig "github.com/uc-cdis/metadata-service-sub001/internal/auth/config"
	"github.com/uc-cdis/metadata-service-sub001/internal/di"
	mdconfig "github.com/uc-cdis/metadata-service-sub001/internal/metadata/config"
	"github.com/uc-cdis/metadata-service-sub001/internal/openapi"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/httpx"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"

	"github.com/caarlos0/env/v6"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/joho/godotenv"
)

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port            string        `env:"SERVER_PORT" envDefault:"8000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	BodyLimit       int           `env:"BODY_LIMIT" envDefault:"16777216"`
}

const usage = `usage: mds <command> [flags]

commands:
  serve                   run the HTTP API (default)
  populate --config FILE  pull every configured commons into the aggregate cache once
  openapi [--out FILE]    write the OpenAPI document as YAML
`

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: could not load .env file: %v\n", err)
	}

	cmd, args := "serve", os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd {
	case "serve":
		err = serve(ctx, args)
	case "populate":
		err = populate(ctx, args)
	case "openapi":
		err = writeOpenAPI(args, os.Stdout)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprint(os.Stderr, usage)
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	serverCfg := &ServerConfig{}
	if err := env.Parse(serverCfg); err != nil {
		return fmt.Errorf("failed to load server configuration: %w", err)
	}
	authCfg, err := authconfig.LoadConfig()
	if err != nil {
		return err
	}
	mdCfg, err := mdconfig.LoadConfig()
	if err != nil {
		return err
	}
	aggCfg, err := aggconfig.LoadConfig()
	if err != nil {
		return err
	}

	appLogger := logger.NewLogger()
	if mdCfg.Debug {
		appLogger = logger.NewLoggerWithConfig("debug", "text")
	}
	appLogger.Info("Application configuration loaded", "store", mdCfg.StoreBackend, "aggregate", aggCfg.Enabled)

	container := di.NewContainer(appLogger)
	defer func() {
		if err := container.Close(); err != nil {
			appLogger.Error("Failed to close container", "error", err)
		}
	}()

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := container.InitializeAuth(authCfg); err != nil {
		return err
	}
	if err := container.InitializeMetadata(initCtx, mdCfg); err != nil {
		return err
	}
	if err := container.InitializeAggregate(initCtx, aggCfg, nil); err != nil {
		return err
	}

	app := newApp(serverCfg, authCfg.AllowOrigins, container)
	if err := container.RegisterRoutes(app); err != nil {
		return err
	}
	if err := container.Start(ctx); err != nil {
		return fmt.Errorf("failed to start background services: %w", err)
	}

	serverAddr := fmt.Sprintf("%s:%s", serverCfg.Host, serverCfg.Port)
	appLogger.Info("Starting HTTP server", "addr", serverAddr)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- app.Listen(serverAddr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		appLogger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			appLogger.Error("Server forced to shutdown", "error", err)
		}
		appLogger.Info("HTTP server stopped")
	}
	return nil
}

// newApp builds the fiber app and its middleware chain. Immutable keeps path
// parameters valid after the handler returns.
func newApp(serverCfg *ServerConfig, allowOrigins string, container *di.Container) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Metadata Service",
		BodyLimit:    serverCfg.BodyLimit,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		Immutable:    true,
		ErrorHandler: httpx.ErrorHandler,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(httpx.RequestContext())
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(container.Metrics.Middleware())
	return app
}

func populate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("populate", flag.ContinueOnError)
	configPath := fs.String("config", "", "aggregate configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	aggCfg, err := aggconfig.LoadConfig()
	if err != nil {
		return err
	}
	if *configPath == "" {
		*configPath = aggCfg.ConfigPath
	}
	if *configPath == "" {
		return errors.New("populate requires --config")
	}
	popCfg, err := aggconfig.LoadPopulateConfig(*configPath)
	if err != nil {
		return err
	}

	appLogger := logger.NewLogger()
	aggCfg.Enabled = true
	container := di.NewContainer(appLogger)
	defer func() {
		if err := container.Close(); err != nil {
			appLogger.Error("Failed to close container", "error", err)
		}
	}()
	if err := container.InitializeAggregate(ctx, aggCfg, popCfg); err != nil {
		return err
	}

	report, err := container.AggregateModule.Populate(ctx, popCfg)
	if err != nil {
		return err
	}
	appLogger.Info("Populate report", "refreshed", report.Refreshed, "failed", len(report.Failed))
	for name, reason := range report.Failed {
		appLogger.Warn("Commons failed", "commons", name, "error", reason)
	}
	return nil
}

func writeOpenAPI(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("openapi", flag.ContinueOnError)
	out := fs.String("out", "", "output file; stdout when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return openapi.WriteYAML(stdout)
	}
	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := openapi.WriteYAML(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
