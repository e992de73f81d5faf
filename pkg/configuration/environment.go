package configuration

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/iota-talent/pkg/logging"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

// LoadEnv loads the env files that exist in the working directory, or in the
// nearest parent directory holding a go.mod when none exist locally.
func LoadEnv(envFiles []string) (int, error) {
	existing := existingFiles("", envFiles)
	if len(existing) == 0 {
		if root, ok := findModuleRoot(); ok {
			existing = existingFiles(root, envFiles)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

func existingFiles(dir string, names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		path := name
		if dir != "" {
			path = filepath.Join(dir, name)
		}
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			out = append(out, path)
		}
	}
	return out
}

func findModuleRoot() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"iota_talent"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type ReferenceCacheOptions struct {
	RedisURL string        `env:"REFERENCE_CACHE_REDIS_URL"`
	TTL      time.Duration `env:"REFERENCE_CACHE_TTL" envDefault:"10m"`
}

func (r *ReferenceCacheOptions) Enabled() bool {
	return strings.TrimSpace(r.RedisURL) != ""
}

func (r *ReferenceCacheOptions) Validate() error {
	if r.Enabled() && r.TTL <= 0 {
		return fmt.Errorf("reference cache TTL must be positive, got %s", r.TTL)
	}
	return nil
}

type AuthzOptions struct {
	PolicyPath string `env:"AUTHZ_POLICY_PATH" envDefault:"config/access/talent_policy.yaml"`
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	Exporter    string `env:"OTEL_EXPORTER" envDefault:"stdout"` // stdout or otlp
	Endpoint    string `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"talent"`
}

func (o *OpenTelemetryOptions) Validate() error {
	if !o.Enabled {
		return nil
	}
	switch o.Exporter {
	case "stdout", "otlp":
		return nil
	default:
		return fmt.Errorf("invalid OTEL_EXPORTER=%q (expected stdout|otlp)", o.Exporter)
	}
}

type OutboxOptions struct {
	Enabled      bool          `env:"OUTBOX_ENABLED" envDefault:"true"`
	PollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"1s"`
	BatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
	MaxAttempts  int           `env:"OUTBOX_MAX_ATTEMPTS" envDefault:"25"`
	SingleActive bool          `env:"OUTBOX_SINGLE_ACTIVE" envDefault:"true"`
	Retention    time.Duration `env:"OUTBOX_RETENTION" envDefault:"168h"`
	// DeadRetention of zero keeps dead rows until removed by hand.
	DeadRetention time.Duration `env:"OUTBOX_DEAD_RETENTION" envDefault:"0"`
	MetricsAddr   string        `env:"OUTBOX_METRICS_ADDR" envDefault:""`
}

func (o *OutboxOptions) Validate() error {
	if !o.Enabled {
		return nil
	}
	var errs []error
	if o.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("OUTBOX_POLL_INTERVAL must be positive, got %s", o.PollInterval))
	}
	if o.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("OUTBOX_BATCH_SIZE must be positive, got %d", o.BatchSize))
	}
	if o.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("OUTBOX_MAX_ATTEMPTS must be positive, got %d", o.MaxAttempts))
	}
	if o.DeadRetention < 0 {
		errs = append(errs, fmt.Errorf("OUTBOX_DEAD_RETENTION must not be negative, got %s", o.DeadRetention))
	}
	return errors.Join(errs...)
}

type Configuration struct {
	Database       DatabaseOptions
	ReferenceCache ReferenceCacheOptions
	Authz          AuthzOptions
	OpenTelemetry  OpenTelemetryOptions
	Outbox         OutboxOptions

	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string `env:"LOG_PATH" envDefault:""`
	// Calendar used to derive "today" for tenure transitions.
	Timezone string `env:"TALENT_TIMEZONE" envDefault:"UTC"`

	location *time.Location
	logFile  *os.File
	logger   *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	return logging.ParseLevel(c.LogLevel)
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}
	return c.finish()
}

func (c *Configuration) finish() error {
	if err := errors.Join(c.ReferenceCache.Validate(), c.OpenTelemetry.Validate(), c.Outbox.Validate()); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	loc, err := time.LoadLocation(strings.TrimSpace(c.Timezone))
	if err != nil {
		return fmt.Errorf("invalid TALENT_TIMEZONE=%q: %w", c.Timezone, err)
	}
	c.location = loc

	if strings.TrimSpace(c.LogPath) != "" {
		f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
		if err != nil {
			return err
		}
		c.logFile = f
		c.logger = logger
	} else {
		c.logger = logging.ConsoleLogger(c.LogrusLogLevel())
	}

	c.Database.Opts = c.Database.ConnectionString()
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
