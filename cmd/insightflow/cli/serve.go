package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agiannakidis/insightflow/internal/clickhouse"
	"github.com/agiannakidis/insightflow/internal/config"
	"github.com/agiannakidis/insightflow/internal/server"
	"github.com/agiannakidis/insightflow/internal/service"
	"github.com/agiannakidis/insightflow/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		port    int
		host    string
		dev     bool
		dataDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the query gateway server",
		Long:  "Start the HTTP server that fronts the observability store with authenticated query, auth, and admin endpoints.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port, dev, dataDir)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory for the SQLite entity store (default: ~/.insightflow)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(host string, port int, dev bool, dataDir string) error {
	cfg := loadConfig()

	logLevel := slog.LevelInfo
	if dev || cfg.Logging.Level == "debug" {
		logLevel = slog.LevelDebug
	}
	var logHandler slog.Handler
	if cfg.Logging.Format == "json" {
		logHandler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	} else {
		logHandler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(logHandler)

	st, err := openStore(cfg, dataDir)
	if err != nil {
		return fmt.Errorf("init entity store: %w", err)
	}
	defer st.Close()
	logger.Info("entity store initialized", "driver", cfg.Store.Driver)

	policy := service.Policy{
		MaxFailedLogins: cfg.Auth.MaxFailedLogins,
		LockoutDuration: parseDuration(cfg.Auth.LockoutDuration, 15*time.Minute),
		SessionTTL:      parseDuration(cfg.Auth.SessionTTL, 24*time.Hour),
	}
	authSvc := service.NewAuthService(st, st, policy)

	chHost := viper.GetString("clickhouse.host")
	if chHost == "" {
		chHost = cfg.ClickHouse.Host
	}
	chUser := viper.GetString("clickhouse.user")
	if chUser == "" {
		chUser = cfg.ClickHouse.User
	}
	chPassword := viper.GetString("clickhouse.password")
	if chPassword == "" {
		chPassword = cfg.ClickHouse.Password
	}
	executor := clickhouse.NewClient(chHost, chUser, chPassword)
	if _, err := executor.Ping(context.Background()); err != nil {
		logger.Warn("clickhouse not reachable at startup", "host", chHost, "error", err)
	} else {
		logger.Info("clickhouse connected", "host", chHost)
	}

	count, err := st.CountUsers(context.Background())
	if err != nil {
		logger.Warn("failed to count users", "error", err)
	}
	if count == 0 {
		logger.Warn("no accounts exist - POST /api/auth {\"action\":\"setup\"} or run: insightflow admin create")
	}

	srvCfg := server.Config{
		Host:            host,
		Port:            port,
		ShutdownTimeout: parseDuration(cfg.Server.ShutdownTimeout, 30*time.Second),
		CORSOrigins:     cfg.Server.CORS.Origins,
		AuthRatePerMin:  cfg.Server.AuthRatePerMin,
	}
	if viper.IsSet("server.port") {
		srvCfg.Port = viper.GetInt("server.port")
	}
	if viper.IsSet("server.host") {
		srvCfg.Host = viper.GetString("server.host")
	}

	srv := server.New(srvCfg, st, authSvc, executor, logger)
	return srv.ListenAndServe()
}

// loadConfig resolves the effective file config: an explicit --config path,
// the file viper discovered, or built-in defaults.
func loadConfig() *config.YAMLConfig {
	path := cfgFile
	if path == "" {
		path = viper.ConfigFileUsed()
	}
	if path == "" {
		return config.DefaultYAMLConfig()
	}
	cfg, err := config.LoadYAMLConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v, using defaults\n", err)
		return config.DefaultYAMLConfig()
	}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills unset file config fields from the built-in defaults.
func applyDefaults(cfg *config.YAMLConfig) {
	def := config.DefaultYAMLConfig()
	if cfg.Server.Host == "" {
		cfg.Server.Host = def.Server.Host
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Server.ShutdownTimeout == "" {
		cfg.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}
	if cfg.Server.AuthRatePerMin == 0 {
		cfg.Server.AuthRatePerMin = def.Server.AuthRatePerMin
	}
	if len(cfg.Server.CORS.Origins) == 0 {
		cfg.Server.CORS.Origins = def.Server.CORS.Origins
	}
	if cfg.Auth.MaxFailedLogins == 0 {
		cfg.Auth.MaxFailedLogins = def.Auth.MaxFailedLogins
	}
	if cfg.Auth.LockoutDuration == "" {
		cfg.Auth.LockoutDuration = def.Auth.LockoutDuration
	}
	if cfg.Auth.SessionTTL == "" {
		cfg.Auth.SessionTTL = def.Auth.SessionTTL
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = def.Store.Driver
	}
}

// openStore opens the entity store per config: postgres when a DSN names
// it, embedded SQLite otherwise.
func openStore(cfg *config.YAMLConfig, dataDir string) (*store.Store, error) {
	if cfg.Store.Driver == store.DriverPostgres {
		return store.Open(store.DriverPostgres, cfg.Store.DSN)
	}
	if dataDir == "" {
		dataDir = cfg.Store.DataDir
	}
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = home + "/.insightflow"
	}
	return store.NewStore(dataDir)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
