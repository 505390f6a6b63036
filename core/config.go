package core

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Address            string
		DebugAddress       string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	// CatchupConfig holds the timing policy of catch-up class sessions.
	CatchupConfig struct {
		TickInterval        time.Duration // playback clock resolution (1 simulated second)
		HeartbeatInterval   time.Duration
		PromptCountdown     time.Duration
		FinalizeTimeout     time.Duration
		HeartbeatMaxRetries int
		HeartbeatBackoff    time.Duration
		HeartbeatMaxBackoff time.Duration
		TerminalRetention   time.Duration // how long terminal sessions stay readable
		IdleTimeout         time.Duration // discard non-terminal sessions left untouched (0 disables)
		SweepInterval       time.Duration
	}

	AttendanceConfig struct {
		BaseURL        string // empty: use the console service
		Timeout        time.Duration
		RateLimit      float64 // requests per second
		RateLimitBurst int
		CatalogPath    string
	}

	RedisConfig struct {
		Address  string // empty: publish events to the logs only
		Password string
		DB       int
		Channel  string
	}

	Config struct {
		AppName      string
		Env          string
		Build        string
		Debug        bool
		TestMode     bool
		SecretKey    string
		RollbarToken string

		Server     ServerConfig
		Catchup    CatchupConfig
		Attendance AttendanceConfig
		Redis      RedisConfig
	}
)

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("appName", "Masomo")
	v.SetDefault("build", "dev")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugAddress", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("catchup.tickInterval", time.Second)
	v.SetDefault("catchup.heartbeatInterval", 10*time.Second)
	v.SetDefault("catchup.promptCountdown", 15*time.Second)
	v.SetDefault("catchup.finalizeTimeout", 10*time.Second)
	v.SetDefault("catchup.heartbeatMaxRetries", 3)
	v.SetDefault("catchup.heartbeatBackoff", time.Second)
	v.SetDefault("catchup.heartbeatMaxBackoff", 8*time.Second)
	v.SetDefault("catchup.terminalRetention", 10*time.Minute)
	v.SetDefault("catchup.idleTimeout", 2*time.Hour)
	v.SetDefault("catchup.sweepInterval", time.Minute)

	v.SetDefault("attendance.baseURL", "")
	v.SetDefault("attendance.timeout", 5*time.Second)
	v.SetDefault("attendance.rateLimit", 50.0)
	v.SetDefault("attendance.rateLimitBurst", 100)
	v.SetDefault("attendance.catalogPath", filepath.Join("config", "lessons.yaml"))

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "masomo:catchup:events")
}

// NewConfig loads the app configuration from defaults, an optional `config/.env.<env>` file and the environment.
// env vars are prefixed with the env name and use `_` as separator: eg. DEV_SERVER_ADDRESS.
func NewConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}

	// load .env if it exists (ignore if it does not)
	if root, err := Getwd(); err == nil {
		dotEnvPath := filepath.Join(root, "config", ".env."+strings.ToLower(env))
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
			}
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "stat %s", dotEnvPath)
		}
	}

	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	conf := &Config{
		AppName:      v.GetString("appName"),
		Env:          env,
		Build:        v.GetString("build"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
		Server: ServerConfig{
			Address:            v.GetString("server.address"),
			DebugAddress:       v.GetString("server.debugAddress"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
		},
		Catchup: CatchupConfig{
			TickInterval:        v.GetDuration("catchup.tickInterval"),
			HeartbeatInterval:   v.GetDuration("catchup.heartbeatInterval"),
			PromptCountdown:     v.GetDuration("catchup.promptCountdown"),
			FinalizeTimeout:     v.GetDuration("catchup.finalizeTimeout"),
			HeartbeatMaxRetries: v.GetInt("catchup.heartbeatMaxRetries"),
			HeartbeatBackoff:    v.GetDuration("catchup.heartbeatBackoff"),
			HeartbeatMaxBackoff: v.GetDuration("catchup.heartbeatMaxBackoff"),
			TerminalRetention:   v.GetDuration("catchup.terminalRetention"),
			IdleTimeout:         v.GetDuration("catchup.idleTimeout"),
			SweepInterval:       v.GetDuration("catchup.sweepInterval"),
		},
		Attendance: AttendanceConfig{
			BaseURL:        v.GetString("attendance.baseURL"),
			Timeout:        v.GetDuration("attendance.timeout"),
			RateLimit:      v.GetFloat64("attendance.rateLimit"),
			RateLimitBurst: v.GetInt("attendance.rateLimitBurst"),
			CatalogPath:    v.GetString("attendance.catalogPath"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Channel:  v.GetString("redis.channel"),
		},
	}
	if err := conf.check(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (conf *Config) check() error {
	c := conf.Catchup
	if c.TickInterval <= 0 || c.HeartbeatInterval <= 0 || c.PromptCountdown <= 0 || c.FinalizeTimeout <= 0 {
		return errors.New("catchup intervals must be positive")
	}
	if c.HeartbeatMaxRetries < 0 {
		return errors.New("catchup.heartbeatMaxRetries cannot be negative")
	}
	return nil
}
