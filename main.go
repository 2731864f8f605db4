package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/fleetdesk/fleetdesk/internal/linediff"
)

//go:embed frontend/*
var frontendFS embed.FS

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var (
	cfgPath string
	verbose bool

	cfg    Config
	logger *zap.Logger
)

// errDiffer makes `fleetdesk diff` exit 1 without printing anything.
var errDiffer = errors.New("files differ")

var rootCmd = &cobra.Command{
	Use:   "fleetdesk",
	Short: "fleetdesk - admin console for VMs, manifests and game data",
	Long: `fleetdesk serves a local admin console for a small fleet: virtual
machines, security groups, SSH keys, command templates, versioned YAML
manifests with side-by-side diffs, and game data sync between environments.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = LoadConfig(cfgPath)
		if err != nil {
			return err
		}
		if err := cfg.ApplyEnv(os.Getenv); err != nil {
			return err
		}
		logger, err = newLogger(cfg.Log, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin console",
	Long: `Starts the HTTP console with seeded demo data and opens it in a browser.

Environment:
  FLEETDESK_ADDR              Listen address (default: 127.0.0.1:0)
  FLEETDESK_DB                sqlite DSN for manifest history
  FLEETDESK_MANIFEST_DIR      Directory of *.yaml manifests to import and watch
  FLEETDESK_NO_OPEN           Don't auto-open browser`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var diffCmd = &cobra.Command{
	Use:   "diff <old> <new>",
	Short: "Show a side-by-side line diff of two files",
	Long: `Prints an aligned side-by-side diff sized to the terminal. The exit
status is 0 when the files are identical and 1 when they differ.`,
	Args: cobra.ExactArgs(2),
	RunE: runDiff,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printVersion()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (.yaml or .toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	serveCmd.Flags().String("addr", "", "listen address (host:port)")
	serveCmd.Flags().String("db", "", "sqlite DSN for manifest history")
	serveCmd.Flags().String("manifest-dir", "", "directory of *.yaml manifests to import and watch")
	serveCmd.Flags().Bool("no-open", false, "don't auto-open browser")
	serveCmd.Flags().Bool("qr", false, "print the console URL as a QR code")

	diffCmd.Flags().Bool("json", false, "print aligned rows as JSON")
	diffCmd.Flags().Bool("unified", false, "print a unified listing instead of two columns")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errDiffer) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// newLogger builds the production preset, or the development preset for
// console output.
func newLogger(lc LogConfig, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	zc.Level = level
	return zc.Build()
}

// applyServeFlags lets explicit flags win over the config file and env.
func applyServeFlags(cmd *cobra.Command, c *Config) {
	flags := cmd.Flags()
	if flags.Changed("addr") {
		c.Addr, _ = flags.GetString("addr")
	}
	if flags.Changed("db") {
		c.DB, _ = flags.GetString("db")
	}
	if flags.Changed("manifest-dir") {
		c.ManifestDir, _ = flags.GetString("manifest-dir")
	}
	if noOpen, _ := flags.GetBool("no-open"); noOpen {
		c.OpenBrowser = false
	}
	if qr, _ := flags.GetBool("qr"); qr {
		c.ShowQR = true
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	applyServeFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cache := linediff.NewCache(cfg.Diff.CacheEntries, cfg.Limits())
	store, err := OpenManifestStore(ctx, cfg.DB, cache, logger.Named("manifests"))
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.SeedIfEmpty(ctx); err != nil {
		return fmt.Errorf("seeding manifests: %w", err)
	}

	console := NewConsole(logger.Named("console"))
	console.Seed()

	status := newStatus(os.Stdout)
	store.OnChange = func(e Event) {
		console.notify(e)
		status.Published(e)
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	addr := listener.Addr().(*net.TCPAddr)
	url := fmt.Sprintf("http://localhost:%d", addr.Port)

	assets, err := fs.Sub(frontendFS, "frontend")
	if err != nil {
		return err
	}
	srv := NewServer(console, store, cache, logger.Named("http"), ServerOptions{
		Assets:  assets,
		Version: version,
		URL:     url,
		API:     cfg.API,
	})
	httpServer := &http.Server{
		Handler:     srv,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
		// No WriteTimeout: SSE connections stay open
	}

	status.Listening(url)
	if cfg.ShowQR {
		status.QR(url)
	}
	if cfg.OpenBrowser {
		go openBrowser(url)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.ManifestDir != "" {
		watcher := NewManifestWatcher(cfg.ManifestDir, store, logger.Named("watcher"))
		status.Watching(cfg.ManifestDir)
		g.Go(func() error { return watcher.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		fmt.Println()
		status.ShuttingDown()
		console.Shutdown()

		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutCtx)
	})
	return g.Wait()
}

func runDiff(cmd *cobra.Command, args []string) error {
	oldData, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	newData, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}

	res, err := linediff.NewCache(0, cfg.Limits()).Diff(string(oldData), string(newData))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	asJSON, _ := cmd.Flags().GetBool("json")
	unified, _ := cmd.Flags().GetBool("unified")
	switch {
	case asJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		err = enc.Encode(res)
	case unified:
		err = WriteUnified(out, args[0], args[1], res.Rows)
	default:
		width, color := terminalSize(out)
		err = SideBySide{Width: width, Color: color}.Render(out, args[0], args[1], res.Rows)
	}
	if err != nil {
		return err
	}
	if res.Stats.Changed() {
		return errDiffer
	}
	return nil
}

// terminalSize returns the width to render at and whether to colour.
func terminalSize(w any) (int, bool) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 120, false
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		width = 120
	}
	return width, useColor(f)
}

func printVersion() {
	line := "fleetdesk " + version
	var details []string
	if date != "unknown" {
		details = append(details, date)
	}
	if commit != "unknown" {
		short := commit
		if len(short) > 7 {
			short = short[:7]
		}
		details = append(details, short)
	}
	if len(details) > 0 {
		line += " (" + strings.Join(details, ", ") + ")"
	}
	fmt.Println(line)
	fmt.Println("Admin console for VMs, manifests and game data")
}

func openBrowser(url string) {
	time.Sleep(200 * time.Millisecond)
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	default:
		return
	}
	_ = cmd.Run()
}
