package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Address                   string
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string // postgres | pgx | sqlite3
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		Path          string // sqlite3 only
	}

	// LibraryConfig holds the circulation policy.
	LibraryConfig struct {
		DailyFineRate       decimal.Decimal
		LostReplacementCost decimal.Decimal
		DamageCost          decimal.Decimal
		MaxRenewals         int
		RenewalDays         int
		DefaultLoanDays     int
		DefaultBorrowLimit  int
		SweepInterval       time.Duration
		SendOverdueNotices  bool
		ConflictRetries     int
	}

	Config struct {
		AppName          string
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		WorkDir          string
		SecretKey        string
		DefaultFromEmail mail.Address
		RollbarToken     string
		SendgridApiKey   string

		Server   ServerConfig
		Database DatabaseConfig
		Library  LibraryConfig
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, dbc.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)

	v.SetDefault("appName", "Maktaba")
	v.SetDefault("build", "dev")
	v.SetDefault("debug", true)
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.debugHost", "localhost:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "maktaba")
	v.SetDefault("database.user", "maktaba")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.path", "maktaba.db")

	v.SetDefault("library.dailyFineRate", "1.00")
	v.SetDefault("library.lostReplacementCost", "25.00")
	v.SetDefault("library.damageCost", "10.00")
	v.SetDefault("library.maxRenewals", 2)
	v.SetDefault("library.renewalDays", 14)
	v.SetDefault("library.defaultLoanDays", 14)
	v.SetDefault("library.defaultBorrowLimit", 3)
	v.SetDefault("library.sweepInterval", 24*time.Hour)
	v.SetDefault("library.sendOverdueNotices", true)
	v.SetDefault("library.conflictRetries", 3)
}

// NewConfig loads the configuration for the current ENV (DEV by default).
// Values come from defaults, then config/.env.<env> if present, then the environment
// (prefixed with the env name, e.g. PROD_DATABASE_HOST).
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf, err := fromViper(v)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	conf.Env = env
	conf.WorkDir = workDir
	return conf
}

func fromViper(v *viper.Viper) (*Config, error) {
	from, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		return nil, fmt.Errorf("parsing defaultFromEmail: %w", err)
	}

	money := func(key string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(v.GetString(key))
		if err != nil {
			return decimal.Zero, fmt.Errorf("parsing %s: %w", key, err)
		}
		if d.IsNegative() {
			return decimal.Zero, fmt.Errorf("%s must not be negative", key)
		}
		return d, nil
	}
	fineRate, err := money("library.dailyFineRate")
	if err != nil {
		return nil, err
	}
	lostCost, err := money("library.lostReplacementCost")
	if err != nil {
		return nil, err
	}
	damageCost, err := money("library.damageCost")
	if err != nil {
		return nil, err
	}

	appName := v.GetString("appName")
	from.Name = appName

	return &Config{
		AppName:          appName,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		SecretKey:        v.GetString("secretKey"),
		DefaultFromEmail: *from,
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		Server: ServerConfig{
			Address:                   v.GetString("server.address"),
			Host:                      v.GetString("server.host"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			Path:          v.GetString("database.path"),
		},
		Library: LibraryConfig{
			DailyFineRate:       fineRate,
			LostReplacementCost: lostCost,
			DamageCost:          damageCost,
			MaxRenewals:         v.GetInt("library.maxRenewals"),
			RenewalDays:         v.GetInt("library.renewalDays"),
			DefaultLoanDays:     v.GetInt("library.defaultLoanDays"),
			DefaultBorrowLimit:  v.GetInt("library.defaultBorrowLimit"),
			SweepInterval:       v.GetDuration("library.sweepInterval"),
			SendOverdueNotices:  v.GetBool("library.sendOverdueNotices"),
			ConflictRetries:     v.GetInt("library.conflictRetries"),
		},
	}, nil
}

// NewTestConfig returns the default configuration without touching the environment.
func NewTestConfig() *Config {
	v := viper.New()
	setDefaults(v)
	v.Set("testMode", true)
	v.Set("debug", false)
	conf, err := fromViper(v)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	conf.Env = "TEST"
	return conf
}
