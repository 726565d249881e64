package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/keshon/modbot/internal/allowlist"
	"github.com/keshon/modbot/internal/bot"
	"github.com/keshon/modbot/internal/config"
	"github.com/keshon/modbot/internal/logger"
	"github.com/keshon/modbot/internal/metrics"
	"github.com/keshon/modbot/internal/modlog"
)

func main() {
	envPath := flag.String("env", "", "Path to .env file (empty = load from current working directory)")
	dbPath := flag.String("db", "", "Path to the sqlite database file (overrides DB_PATH)")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	logFile := flag.String("log-file", "", "Optional path to log file (stderr if empty); rotated by size with lumberjack")
	metricsAddr := flag.String("metrics-addr", "", "Address for the Prometheus /metrics endpoint (overrides METRICS_ADDR)")
	flag.Parse()

	// Build logger output (stderr or file with size-based rotation)
	var logOutput io.Writer = os.Stderr
	if *logFile != "" {
		logOutput = &lumberjack.Logger{
			Filename:   *logFile,
			MaxSize:    100, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
	}

	l := logger.New(logger.Config{
		Level:   logger.ParseLevel(*logLevel),
		Format:  *logFormat,
		Output:  logOutput,
		NoColor: *logFile != "",
	})

	cfg, err := config.Load(*envPath)
	if err != nil {
		log.Fatal("Error loading config: ", err)
	}

	// CLI flags override env/config values
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	l.Info("starting", "db_driver", cfg.DBDriver, "guild_id", cfg.GuildID, "log_level", *logLevel, "log_format", *logFormat)
	if cfg.ChatBannedRoleID == "" {
		l.Warn("CHAT_BANNED_ROLE_ID is not set, channel locks will fail")
	}

	db, err := openDatabase(cfg, l)
	if err != nil {
		log.Fatal("Error opening database: ", err)
	}
	if err := modlog.Migrate(db); err != nil {
		log.Fatal("Error migrating database: ", err)
	}

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		log.Fatal("Error creating Discord session: ", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers | discordgo.IntentsGuildMessages

	m := metrics.New(prometheus.DefaultRegisterer)
	m.WatchHeartbeat(dg.HeartbeatLatency)

	allowList := allowlist.New(cfg.AllowListPath)
	b := bot.NewBot(dg, bot.Options{
		AllowList:        allowList,
		ModLog:           modlog.NewStore(db),
		Metrics:          m,
		ApplicationID:    cfg.ApplicationID,
		GuildID:          cfg.GuildID,
		ChatBannedRoleID: cfg.ChatBannedRoleID,
		SweepInterval:    cfg.SweepInterval,
		ConfirmTimeout:   cfg.ConfirmTimeout,
	})
	b.SetLogger(l)

	dg.AddHandler(b.Ready)
	dg.AddHandler(b.InteractionCreate)

	if err := dg.Open(); err != nil {
		log.Fatal("Error opening Discord session: ", err)
	}

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		srv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				l.Error("metrics server failed", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
		l.Info("metrics server listening", "addr", cfg.MetricsAddr)
	}

	l.Info("bot running", "sweep_interval", bot.FormatDuration(cfg.SweepInterval), "allow_list", allowList.Path())
	fmt.Println("Bot is now running. Press CTRL+C to exit.")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	l.Info("shutting down")
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			l.Warn("metrics server shutdown", "error", err)
		}
		cancel()
	}
	// Close the gateway first so no interaction arrives while the bot stops.
	if err := dg.Close(); err != nil {
		l.Warn("closing Discord session", "error", err)
	}
	b.Stop()
}

// openDatabase opens the moderation log database selected by DB_DRIVER.
func openDatabase(cfg *config.Config, l logger.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.New(logger.StdLogger(l, logger.LevelWarn), gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
	switch cfg.DBDriver {
	case config.DriverMySQL:
		return gorm.Open(mysql.Open(cfg.MySQL.DSN()), gormCfg)
	default:
		return gorm.Open(sqlite.Open(cfg.DBPath), gormCfg)
	}
}
