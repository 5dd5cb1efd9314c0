package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/l1jgo/tickhooks/internal/config"
	"github.com/l1jgo/tickhooks/internal/data"
	"github.com/l1jgo/tickhooks/internal/host"
	"github.com/l1jgo/tickhooks/internal/lifecycle"
	"github.com/l1jgo/tickhooks/internal/persist"
	"github.com/l1jgo/tickhooks/internal/scripting"
	"github.com/l1jgo/tickhooks/internal/system"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/text/width"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(clientName string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m            tickhost  v0.1.0               \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m       客戶端 Tick 生命週期事件宿主        \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1m客戶端:\033[0m %s\n\n", clientName)
}

// displayWidth counts East Asian wide and fullwidth runes as two columns.
func displayWidth(s string) int {
	w := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			w += 2
		default:
			w++
		}
	}
	return w
}

func printSection(title string) {
	lineLen := 46 - displayWidth(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - displayWidth(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main host logic ───────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/host.toml"
	if p := os.Getenv("TICKHOST_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Client.Name)

	// 3. Load plugins into the process-wide registries
	printSection("插件")
	events := lifecycle.Default

	pluginTable, err := data.LoadPluginTable(cfg.Plugins.Manifest, cfg.Plugins.ScriptsDir)
	if err != nil {
		return fmt.Errorf("load plugin manifest: %w", err)
	}
	printStat("已啟用插件", pluginTable.Count())
	if pluginTable.Skipped() > 0 {
		printStat("已停用插件", pluginTable.Skipped())
	}

	luaEngine := scripting.NewEngine(events, log)
	defer luaEngine.Close()
	if err := luaEngine.LoadAll(pluginTable); err != nil {
		return fmt.Errorf("lua plugins: %w", err)
	}
	printOK("Lua 插件載入完成")
	for _, p := range lifecycle.Phases {
		printStat(p.String(), events.Count(p))
	}
	fmt.Println()

	// 4. Dispatch journal, backed by PostgreSQL when enabled
	printSection("事件日誌")
	var writer system.JournalWriter = system.LogWriter{Log: log}
	if cfg.Database.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL 連線成功")

		if err := persist.RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK("資料庫遷移完成")
		writer = persist.NewDispatchRepo(db, cfg.Client.Name)
	} else {
		printOK("資料庫未啟用，摘要寫入日誌")
	}
	journal := system.NewDispatchJournal(writer, log, cfg.Journal.FlushInterval)
	journal.Attach(events)
	fmt.Println()

	// 5. Client handle and driver
	worlds := make([]*host.World, 0, len(cfg.Client.Worlds))
	for _, name := range cfg.Client.Worlds {
		worlds = append(worlds, host.NewWorld(name))
	}
	client := host.NewClient(cfg.Client.Name, worlds...)
	driver := host.NewDriver(events, client, host.Options{
		TickRate:         cfg.Tick.TickRate,
		FrameRate:        cfg.Tick.FrameRate,
		MaxTicksPerFrame: cfg.Tick.MaxTicksPerFrame,
		Observer:         journal,
	}, log)

	// 6. Run until signalled
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printSection("宿主就緒")
	printReady(fmt.Sprintf("世界: %s", strings.Join(cfg.Client.Worlds, ", ")))
	printReady(fmt.Sprintf("事件迴圈啟動 (tick: %s, frame: %s)", cfg.Tick.TickRate, cfg.Tick.FrameRate))
	fmt.Println()

	runErr := driver.Run(ctx)

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	journal.Flush(flushCtx)

	var de *host.DispatchError
	if errors.As(runErr, &de) {
		log.Error("callback aborted dispatch",
			zap.Stringer("phase", de.Phase),
			zap.Uint64("tick", de.ClientTick),
			zap.Error(de.Err),
		)
		return runErr
	}
	log.Info("host stopped", zap.Uint64("ticks", client.Ticks()))
	return nil
}

// loadConfig falls back to built-in defaults when the file does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return config.Defaults(), nil
	}
	return cfg, err
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
