package config

import (
	"time"

	"github.com/caarlos0/env/v11"

	xenv "github.com/vicinityhq/realtime/internal/env"
)

type Config struct {
	Environment xenv.Environment `env:"ENVIRONMENT" envDefault:"development"`

	// SubjectID is the authenticated identity the daemon runs for.
	SubjectID string `env:"SUBJECT_ID"`

	// PlatformTag identifies this client flavor in presence announcements.
	PlatformTag string `env:"PLATFORM_TAG" envDefault:"daemon"`

	// Transport selects the channel transport: memory or redis.
	Transport string `env:"TRANSPORT" envDefault:"memory"`

	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Database DatabaseConfig `envPrefix:"DATABASE_"`

	Presence PresenceConfig `envPrefix:"PRESENCE_"`
	Notify   NotifyConfig   `envPrefix:"NOTIFY_"`
}

type RedisConfig struct {
	URL string `env:"URL" envDefault:"redis://localhost:6379/0"`
}

type DatabaseConfig struct {
	// Driver selects the profile store backend: memory, sqlite, postgres or redis.
	Driver string `env:"DRIVER" envDefault:"memory"`
	URL    string `env:"URL"`
	// Path is the sqlite database file when Driver is sqlite.
	Path string `env:"PATH" envDefault:"vicinity.db"`
}

type PresenceConfig struct {
	HeartbeatPeriod time.Duration `env:"HEARTBEAT_PERIOD" envDefault:"30s"`
}

type NotifyConfig struct {
	DedupTTL     time.Duration `env:"DEDUP_TTL" envDefault:"5s"`
	PrefsStale   time.Duration `env:"PREFS_STALE" envDefault:"60s"`
	AlertsPerSec float64       `env:"ALERTS_PER_SEC" envDefault:"1"`
	AlertBurst   int           `env:"ALERT_BURST" envDefault:"3"`
}

func Read() (Config, error) {
	return env.ParseAs[Config]()
}
