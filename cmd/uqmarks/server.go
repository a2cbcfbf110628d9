package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/uqmarks/uqmarks/internal/analytics"
	"github.com/uqmarks/uqmarks/internal/api"
	"github.com/uqmarks/uqmarks/internal/config"
	"github.com/uqmarks/uqmarks/internal/course"
	"github.com/uqmarks/uqmarks/internal/notify"
	"github.com/uqmarks/uqmarks/internal/scrape"
	"github.com/uqmarks/uqmarks/internal/searchlog"
	"github.com/uqmarks/uqmarks/internal/semester"
	"github.com/uqmarks/uqmarks/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running uqmarks server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and database status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "uqmarks.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// app is the wired set of services behind the HTTP and MCP surfaces.
type app struct {
	catalog   *semester.Catalog
	resolver  *course.Resolver
	recorder  *searchlog.Recorder
	analytics *analytics.Service
	worker    *notify.Worker
	loc       *time.Location
}

func buildApp(cfg config.Config, store *storage.Store) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	seed, err := cfg.SeedOfferings()
	if err != nil {
		return nil, err
	}

	notifyCfg := notify.Config{
		Enabled:         cfg.Notify.Enabled,
		WebhookURL:      cfg.Notify.WebhookURL,
		ErrorWebhookURL: cfg.Notify.ErrorWebhookURL,
		ManagerID:       cfg.Notify.ManagerID,
	}
	queue := notify.NewQueue(store, notifyCfg)

	catalog := semester.NewCatalog(store, semester.WithSeed(seed...))
	recorder := searchlog.NewRecorder(store, queue)
	fetcher := scrape.New(scrape.Options{
		Timeout:       cfg.ScrapeTimeout(),
		RatePerSecond: cfg.Scrape.RatePerSecond,
		UserAgent:     cfg.Scrape.UserAgent,
	})
	resolver := course.NewResolver(store, fetcher,
		course.WithSemesters(catalog),
		course.WithEventSink(recorder),
		course.WithNotifier(queue),
		course.WithMemo(cfg.Cache.Size, cfg.CacheTTL()),
		course.WithAutoDiscover(cfg.Scrape.AutoDiscover),
		// Discovery plus a profile fetch plus an identity check.
		course.WithScrapeTimeout(3*cfg.ScrapeTimeout()),
	)

	return &app{
		catalog:   catalog,
		resolver:  resolver,
		recorder:  recorder,
		analytics: analytics.NewService(store, analytics.NewEngine(loc)),
		worker:    notify.NewWorker(store, notifyCfg, time.Second),
		loc:       loc,
	}, nil
}

func (a *app) handler() http.Handler {
	return api.NewHandler(api.Deps{
		Courses:   a.resolver,
		Semesters: a.catalog,
		Events:    a.recorder,
		Analytics: a.analytics,
		Location:  a.loc,
	})
}

func (a *app) mcpServer() *server.MCPServer {
	return api.NewMCPServer(api.MCPDeps{
		Courses:   a.resolver,
		Semesters: a.catalog,
		Analytics: a.analytics,
		Location:  a.loc,
	})
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "uqmarks version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	// Refuse to start twice on the same port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get("http://" + localAddr(cfg) + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("uqmarks is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("uqmarks is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	a, err := buildApp(cfg, store)
	if err != nil {
		return err
	}
	if _, err := a.catalog.Refresh(ctx); err != nil {
		slog.Warn("initial semester refresh failed", "error", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.worker.Run(gctx)
		return nil
	})

	if withMCP {
		stdioSrv := server.NewStdioServer(a.mcpServer())
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	g.Go(func() error {
		slog.Info("uqmarks listening", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("uqmarks is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop uqmarks (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to uqmarks (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := newClientFor("http://" + localAddr(cfg))
	res, err := client.get(ctx, "/health", nil)
	switch {
	case err != nil:
		printStatus("Server", "stopped")
	case res.IsError():
		printStatus("Server", "error (HTTP %d)", res.StatusCode())
	default:
		printStatus("Server", "running on %s", localAddr(cfg))
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		printStatus("Database", "unavailable: %v", err)
		return nil
	}
	defer store.Close()

	if n, err := store.CountCourses(ctx); err == nil {
		printStatus("Courses", "%d", n)
	}
	if n, err := store.CountSearches(ctx); err == nil {
		printStatus("Logged events", "%d", n)
	}
	printStatus("Notifications", "%s", notifyState(cfg))
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func notifyState(cfg config.Config) string {
	switch {
	case !cfg.Notify.Enabled:
		return "disabled"
	case cfg.Notify.WebhookURL == "" && cfg.Notify.ErrorWebhookURL == "":
		return "enabled, no webhooks configured"
	default:
		return "enabled"
	}
}
