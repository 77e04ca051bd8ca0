package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Database engines
const (
	EngineMemory   = "memory"
	EnginePostgres = "postgres"
	EngineSQLite   = "sqlite"
)

// Notifiers
const (
	NotifierConsole  = "console"
	NotifierSendgrid = "sendgrid"
	NotifierDiscord  = "discord"
)

type (
	ServerConfig struct {
		Host               string
		Port               int
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string // memory | postgres | sqlite
		Host          string
		Port          int
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Name          string
		DisableTLS    bool
		Path          string // sqlite file; ":memory:" for a throw-away DB
	}

	LedgerConfig struct {
		AllowOverpayment  bool
		ReconcileSchedule string // cron spec; empty disables the job
	}

	Config struct {
		Env       string
		Debug     bool
		TestMode  bool
		AppName   string
		Build     string
		SecretKey string

		Server   ServerConfig
		Database DatabaseConfig
		Ledger   LedgerConfig

		RollbarToken     string
		Notifier         string
		SendgridApiKey   string
		DiscordBotToken  string
		DiscordChannelID string

		defaultFromEmail string
	}
)

func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
}

// NewConfig reads the configuration from defaults, `config/.env.<env>` and the environment (in that order).
// Environment variables are prefixed with the value of ENV, e.g. DEV_DATABASE_ENGINE.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Bursar")
	v.SetDefault("build", "dev")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("defaultFromEmail", "noreply@localhost")

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.debugHost", "localhost:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("database.engine", EngineMemory)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "bursar")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.name", "bursar")
	v.SetDefault("database.disableTLS", false)
	v.SetDefault("database.path", "bursar.db")

	v.SetDefault("ledger.allowOverpayment", true)
	v.SetDefault("ledger.reconcileSchedule", "")

	v.SetDefault("rollbarToken", "")
	v.SetDefault("notifier", NotifierConsole)
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("discordBotToken", "")
	v.SetDefault("discordChannelId", "")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:       env,
		Debug:     v.GetBool("debug"),
		TestMode:  v.GetBool("testMode"),
		AppName:   v.GetString("appName"),
		Build:     v.GetString("build"),
		SecretKey: v.GetString("secretKey"),
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			Port:               v.GetInt("server.port"),
			DebugHost:          v.GetString("server.debugHost"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        CleanString(v.GetString("database.engine"), true /* lower */),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			Name:          v.GetString("database.name"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			Path:          v.GetString("database.path"),
		},
		Ledger: LedgerConfig{
			AllowOverpayment:  v.GetBool("ledger.allowOverpayment"),
			ReconcileSchedule: v.GetString("ledger.reconcileSchedule"),
		},
		RollbarToken:     v.GetString("rollbarToken"),
		Notifier:         CleanString(v.GetString("notifier"), true /* lower */),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		DiscordBotToken:  v.GetString("discordBotToken"),
		DiscordChannelID: v.GetString("discordChannelId"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
	}
}

// NewTestConfig returns a Config suited to unit tests: in-memory storage, console notifications.
func NewTestConfig() *Config {
	return &Config{
		Env:       "TEST",
		TestMode:  true,
		AppName:   "Bursar",
		Build:     "test",
		SecretKey: "test-secret",
		Server: ServerConfig{
			ShutdownTimeout:    time.Second,
			JWTExpirationDelta: time.Hour,
		},
		Database:         DatabaseConfig{Engine: EngineMemory, Path: ":memory:"},
		Ledger:           LedgerConfig{AllowOverpayment: true},
		Notifier:         NotifierConsole,
		defaultFromEmail: "noreply@localhost",
	}
}
