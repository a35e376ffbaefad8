// ABOUTME: Entry point for the botster hub process.
// ABOUTME: Runs the scheduling loop, remote attach listener, queue consumer, and local UI.

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"

	"github.com/Tonksthebear/trybotster-sub005/internal/auth"
	"github.com/Tonksthebear/trybotster-sub005/internal/config"
	"github.com/Tonksthebear/trybotster-sub005/internal/dedupe"
	"github.com/Tonksthebear/trybotster-sub005/internal/hub"
	"github.com/Tonksthebear/trybotster-sub005/internal/ingest"
	"github.com/Tonksthebear/trybotster-sub005/internal/session"
	"github.com/Tonksthebear/trybotster-sub005/internal/store"
	"github.com/Tonksthebear/trybotster-sub005/internal/transport"
	"github.com/Tonksthebear/trybotster-sub005/internal/tui"
	"github.com/Tonksthebear/trybotster-sub005/internal/workspace"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _           _       _
| |__   ___ | |_ ___| |_ ___ _ __
| '_ \ / _ \| __/ __| __/ _ \ '__|
| |_) | (_) | |_\__ \ ||  __/ |
|_.__/ \___/ \__|___/\__\___|_|
`

// dedupeCacheSize bounds the queue dedupe cache; enough for well over a
// redelivery window of inbound mentions.
const dedupeCacheSize = 4096

// getConfigPath returns the path to the botster config file.
// Priority: BOTSTER_CONFIG env var > XDG_CONFIG_HOME/botster/botster.yaml > ~/.config/botster/botster.yaml
func getConfigPath() string {
	if envPath := os.Getenv("BOTSTER_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "botster.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "botster", "botster.yaml")
}

// getDataPath returns the path to the botster data directory.
// Priority: XDG_DATA_HOME/botster > ~/.local/share/botster
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "botster")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: botster <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve [--headless]     Start the hub")
		fmt.Println("  init                   Create a new config file interactively")
		fmt.Println("  health                 Check hub health")
		fmt.Println("  token [--device NAME]  Mint a remote attach token")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "token":
		err = runToken()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	headless := false
	for _, arg := range os.Args[2:] {
		switch arg {
		case "--headless":
			headless = true
		default:
			return fmt.Errorf("unknown flag: %s", arg)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// The full-screen UI owns the terminal; only print the banner and
	// use the colorized handler when running headless.
	var logger *slog.Logger
	if headless {
		cyan := color.New(color.FgCyan)
		cyan.Print(banner)
		gray := color.New(color.FgHiBlack)
		gray.Printf("    version: %s\n\n", version)

		green := color.New(color.FgGreen)
		green.Print("  ▶ ")
		fmt.Printf("Config: %s\n", configPath)
		green.Print("  ▶ ")
		fmt.Printf("Repo:   %s\n", cfg.Repo.Name)
		if cfg.Server.Addr != "" {
			green.Print("  ▶ ")
			fmt.Printf("Attach: %s\n", cfg.Server.Addr)
		}
		if cfg.Queue.Enabled {
			green.Print("  ▶ ")
			fmt.Printf("Queue:  %s %s\n", cfg.Queue.URL, cfg.Queue.Subject)
		}
		fmt.Println()

		logger = setupLogger(cfg.Logging, os.Stdout)
	} else {
		logger = fileLogger(cfg.Logging)
	}

	logger.Info("starting botster",
		"config", configPath,
		"repo", cfg.Repo.Name,
		"attach_addr", cfg.Server.Addr,
		"queue", cfg.Queue.Enabled,
	)

	// Local delivery path. Headless runs keep a sink anyway so remote
	// clients are unaffected by the missing terminal.
	sink := tui.NewSink()

	wsman := workspace.NewGitManager(cfg.Repo.Path, worktreeDir(cfg), logger)
	h := hub.New(hub.Config{
		Repo:           cfg.Repo.Name,
		BranchPrefix:   cfg.Repo.BranchPrefix,
		Command:        cfg.Agent.Command,
		Args:           cfg.Agent.Args,
		Env:            cfg.Agent.Env,
		HelperCommand:  cfg.Agent.HelperCommand,
		HelperArgs:     cfg.Agent.HelperArgs,
		MaxSessions:    cfg.Hub.MaxSessions,
		PollInterval:   cfg.Hub.PollInterval,
		ScrollbackSize: cfg.Hub.ScrollbackSize,
	}, session.PTYFactory{}, wsman, sink, logger)

	if cfg.Ledger.Path != "" {
		ledger, err := store.NewSQLiteStore(cfg.Ledger.Path)
		if err != nil {
			return fmt.Errorf("opening ledger: %w", err)
		}
		defer ledger.Close()
		h.SetRecorder(ledger)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go h.Run(runCtx)

	if cfg.Server.Addr != "" {
		if err := startAttachListener(runCtx, cfg, h, logger); err != nil {
			return err
		}
	}

	if cfg.Queue.Enabled {
		stop, err := startQueueConsumer(runCtx, cfg, h, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	if headless {
		<-h.Done()
		return nil
	}

	program := tea.NewProgram(tui.NewModel(h, sink), tea.WithAltScreen())
	go func() {
		// Signal-driven shutdown while the UI is up.
		<-runCtx.Done()
		program.Quit()
	}()
	if _, err := program.Run(); err != nil {
		cancel()
		<-h.Done()
		return fmt.Errorf("running ui: %w", err)
	}

	cancel()
	<-h.Done()
	return nil
}

// worktreeDir resolves the workspace root, defaulting beside the data dir.
func worktreeDir(cfg *config.Config) string {
	if cfg.Repo.WorktreeDir != "" {
		return cfg.Repo.WorktreeDir
	}
	return filepath.Join(getDataPath(), "worktrees")
}

// startAttachListener brings up the HTTP listener carrying the encrypted
// attach endpoint and the plain health probe.
func startAttachListener(ctx context.Context, cfg *config.Config, h *hub.Hub, logger *slog.Logger) error {
	keypair, err := transport.GenerateKeypair()
	if err != nil {
		return fmt.Errorf("generating channel keypair: %w", err)
	}

	deviceName := cfg.Server.DeviceName
	if deviceName == "" {
		deviceName, _ = os.Hostname()
	}

	verifier := auth.NewPairingVerifier([]byte(cfg.Auth.PairingSecret))
	attach := transport.NewServer(h, verifier, keypair, deviceName, logger)

	mux := http.NewServeMux()
	mux.Handle("/attach", attach)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("attach listener failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("attach listener started", "addr", cfg.Server.Addr, "device", deviceName)
	return nil
}

// startQueueConsumer connects the inbound mention queue to the hub.
// The returned stop function drains the subscription and the cache.
func startQueueConsumer(ctx context.Context, cfg *config.Config, h *hub.Hub, logger *slog.Logger) (func(), error) {
	window := cfg.Queue.DedupeWindow
	if window <= 0 {
		window = 10 * time.Minute
	}
	cache := dedupe.New(window, dedupeCacheSize)

	queue, err := ingest.Connect(ctx, cfg.Queue.URL, cfg.Queue.Subject, logger)
	if err != nil {
		cache.Close()
		return nil, fmt.Errorf("connecting queue: %w", err)
	}

	mapper := ingest.Mapper{Repo: cfg.Repo.Name, BranchPrefix: cfg.Repo.BranchPrefix}
	consumer := ingest.NewConsumer(mapper, cache, h, logger)

	stop, err := queue.Subscribe(ctx, cfg.Queue.Subject, consumer)
	if err != nil {
		queue.Close()
		cache.Close()
		return nil, fmt.Errorf("subscribing: %w", err)
	}

	logger.Info("queue consumer started", "url", cfg.Queue.URL, "subject", cfg.Queue.Subject)
	return func() {
		stop()
		queue.Close()
		cache.Close()
	}, nil
}

func setupLogger(cfg config.LoggingConfig, out *os.File) *slog.Logger {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = &colorHandler{level: level}
	}

	return slog.New(handler)
}

// fileLogger writes to a log file under the data directory so the
// full-screen UI keeps the terminal to itself. Falls back to discarding
// records when the file cannot be opened.
func fileLogger(cfg config.LoggingConfig) *slog.Logger {
	path := filepath.Join(getDataPath(), "botster.log")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(f, opts))
	}
	return slog.New(slog.NewTextHandler(f, opts))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg.Server.Addr == "" {
		return fmt.Errorf("no server.addr configured; nothing to probe")
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.Addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// runToken mints a remote attach token for a named device.
// Supports "--device value", "--device=value", and "--ttl" the same way.
func runToken() error {
	device, _ := os.Hostname()
	ttl := 30 * 24 * time.Hour

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--device" || arg == "-d":
			if i+1 >= len(args) {
				return fmt.Errorf("--device requires a value")
			}
			device = args[i+1]
			i++
		case strings.HasPrefix(arg, "--device="):
			device = strings.TrimPrefix(arg, "--device=")
		case arg == "--ttl":
			if i+1 >= len(args) {
				return fmt.Errorf("--ttl requires a value")
			}
			parsed, err := time.ParseDuration(args[i+1])
			if err != nil {
				return fmt.Errorf("parsing --ttl: %w", err)
			}
			ttl = parsed
			i++
		case strings.HasPrefix(arg, "--ttl="):
			parsed, err := time.ParseDuration(strings.TrimPrefix(arg, "--ttl="))
			if err != nil {
				return fmt.Errorf("parsing --ttl: %w", err)
			}
			ttl = parsed
		default:
			return fmt.Errorf("unknown flag: %s", arg)
		}
	}

	if device == "" {
		return fmt.Errorf("--device is required when the hostname is unavailable")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.PairingSecret == "" {
		return fmt.Errorf("auth.pairing_secret not configured")
	}

	verifier := auth.NewPairingVerifier([]byte(cfg.Auth.PairingSecret))
	token, err := verifier.Generate(device, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Token for %s (expires %s)\n", device, time.Now().Add(ttl).UTC().Format("Jan 02, 2006"))
	fmt.Println()
	fmt.Println(token)
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("botster configuration setup")
	fmt.Println("===========================")
	fmt.Println()

	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Repository ---")
	repoPath := prompt(reader, "Repository checkout path", "")
	repoName := prompt(reader, "Repository name (owner/repo)", "")
	branchPrefix := prompt(reader, "Branch prefix for issues", "issue")
	worktreeRoot := prompt(reader, "Worktree directory", filepath.Join(defaultDataPath, "worktrees"))

	fmt.Println("\n--- Agent ---")
	agentCommand := prompt(reader, "Agent command", "claude")

	fmt.Println("\n--- Remote access ---")
	attachAddr := prompt(reader, "Attach listen address (empty to disable)", "localhost:8080")
	deviceName := prompt(reader, "Device name", hostnameOr("botster-hub"))

	// Random pairing secret for remote attach tokens.
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generating pairing secret: %w", err)
	}
	pairingSecret := base64.StdEncoding.EncodeToString(secretBytes)

	fmt.Println("\n--- Queue ---")
	enableQueue := prompt(reader, "Enable NATS mention queue?", "no")
	queueEnabled := strings.ToLower(enableQueue) == "yes" || strings.ToLower(enableQueue) == "y"
	var queueURL, queueSubject string
	if queueEnabled {
		queueURL = prompt(reader, "NATS URL", "nats://localhost:4222")
		queueSubject = prompt(reader, "Subject", "botster.mentions")
	}

	fmt.Println("\n--- Logging ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# botster configuration\n")
	cfg.WriteString("# Generated by botster init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  addr: %q\n", attachAddr))
	cfg.WriteString(fmt.Sprintf("  device_name: %q\n", deviceName))
	cfg.WriteString("\n")

	cfg.WriteString("hub:\n")
	cfg.WriteString("  max_sessions: 10\n")
	cfg.WriteString("  poll_interval: \"50ms\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("repo:\n")
	cfg.WriteString(fmt.Sprintf("  path: %q\n", repoPath))
	cfg.WriteString(fmt.Sprintf("  name: %q\n", repoName))
	cfg.WriteString(fmt.Sprintf("  branch_prefix: %q\n", branchPrefix))
	cfg.WriteString(fmt.Sprintf("  worktree_dir: %q\n", worktreeRoot))
	cfg.WriteString("\n")

	cfg.WriteString("agent:\n")
	cfg.WriteString(fmt.Sprintf("  command: %q\n", agentCommand))
	cfg.WriteString("\n")

	cfg.WriteString("queue:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", queueEnabled))
	if queueEnabled {
		cfg.WriteString(fmt.Sprintf("  url: %q\n", queueURL))
		cfg.WriteString(fmt.Sprintf("  subject: %q\n", queueSubject))
		cfg.WriteString("  dedupe_window: \"10m\"\n")
	}
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  pairing_secret: %q\n", pairingSecret))
	cfg.WriteString("\n")

	cfg.WriteString("ledger:\n")
	cfg.WriteString(fmt.Sprintf("  path: %q\n", filepath.Join(defaultDataPath, "ledger.db")))
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", logFormat))

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Holds the pairing secret, so keep it private.
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if err := os.MkdirAll(defaultDataPath, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the hub:")
	fmt.Println("  botster serve")

	return nil
}

func hostnameOr(fallback string) string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return fallback
	}
	return name
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
