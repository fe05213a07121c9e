package cfg

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/event"
)

// TransportType selects the push channel implementation
type TransportType string

const (
	TransportWebSocket TransportType = "websocket"
	TransportNATS      TransportType = "nats"
	TransportKafka     TransportType = "kafka"
)

// SourceType selects where polling snapshots are fetched from
type SourceType string

const (
	SourceHTTP     SourceType = "http"
	SourcePostgres SourceType = "postgres"
	SourceSQLite   SourceType = "sqlite"
	SourceMySQL    SourceType = "mysql"
)

// Environment variables holding secrets. They override the file and are
// also read from a .env file next to the working directory when present.
const (
	EnvAdminSecret = "WASILAH_ADMIN_SECRET"
	EnvSourceDSN   = "WASILAH_SOURCE_DSN"
)

// ChannelConfiguration controls the push channel and its reconnect policy
type ChannelConfiguration struct {
	Transport TransportType `toml:"transport"`
	URL       string        `toml:"url"`

	NATSSubject  string   `toml:"nats_subject"` // subject prefix, events arrive on <prefix>.>
	KafkaBrokers []string `toml:"kafka_brokers"`
	KafkaTopic   string   `toml:"kafka_topic"`
	KafkaGroupID string   `toml:"kafka_group_id"`

	ReconnectIntervalMS  int `toml:"reconnect_interval_ms"`  // base backoff delay
	MaxReconnectAttempts int `toml:"max_reconnect_attempts"` // consecutive failures before giving up
	MaxBackoffMS         int `toml:"max_backoff_ms"`         // backoff ceiling
	HeartbeatIntervalMS  int `toml:"heartbeat_interval_ms"`
	DialTimeoutMS        int `toml:"dial_timeout_ms"`
	SendQueueSize        int `toml:"send_queue_size"`
}

// PollingConfiguration controls the polling fallback
type PollingConfiguration struct {
	Enabled             bool `toml:"enabled"`
	InitialIntervalMS   int  `toml:"initial_interval_ms"`
	MinIntervalMS       int  `toml:"min_interval_ms"`
	MaxIntervalMS       int  `toml:"max_interval_ms"`
	IdleRounds          int  `toml:"idle_rounds"` // unchanged cycles before backing off
	FetchTimeoutMS      int  `toml:"fetch_timeout_ms"`
	EmitInitialSnapshot bool `toml:"emit_initial_snapshot"`
}

// DedupConfiguration controls the duplicate suppression window
type DedupConfiguration struct {
	WindowMS int `toml:"window_ms"`
}

// SourceConfiguration describes the snapshot backend used while polling
type SourceConfiguration struct {
	Type    SourceType `toml:"type"`
	BaseURL string     `toml:"base_url"` // http only
	DSN     string     `toml:"dsn"`      // postgres, sqlite, mysql
}

// CacheConfiguration sizes the in-memory query cache
type CacheConfiguration struct {
	Size int `toml:"size"`
}

// EntityConfiguration maps an entity to one cache key. An entity may appear
// several times, once per cache shape it feeds.
type EntityConfiguration struct {
	Name     string   `toml:"name"`
	CacheKey []string `toml:"cache_key"`
	Policy   string   `toml:"policy"` // "patch" or "invalidate"
	Table    string   `toml:"table"`  // snapshot table, defaults to Name
	Poll     bool     `toml:"poll"`   // poll even without active bindings
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// AdminConfiguration for the status/admin HTTP server
type AdminConfiguration struct {
	Enabled     bool   `toml:"enabled"`
	BindAddress string `toml:"bind_address"`
	Port        int    `toml:"port"`
	Secret      string `toml:"secret"`
}

// Configuration is the main configuration structure
type Configuration struct {
	ClientID string `toml:"client_id"`

	Channel    ChannelConfiguration    `toml:"channel"`
	Polling    PollingConfiguration    `toml:"polling"`
	Dedup      DedupConfiguration      `toml:"dedup"`
	Source     SourceConfiguration     `toml:"source"`
	Cache      CacheConfiguration      `toml:"cache"`
	Entities   []EntityConfiguration   `toml:"entities"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
	Admin      AdminConfiguration      `toml:"admin"`
}

// Overrides carries command line values that take precedence over the file.
// Zero values leave the file setting untouched.
type Overrides struct {
	ChannelURL string
	Transport  string
	AdminPort  int
	ClientID   string
	Verbose    bool
}

// Default returns a configuration populated with defaults
func Default() *Configuration {
	return &Configuration{
		Channel: ChannelConfiguration{
			Transport:            TransportWebSocket,
			URL:                  "ws://localhost:8080/realtime",
			NATSSubject:          "wasilah.changes",
			KafkaTopic:           "wasilah-changes",
			KafkaGroupID:         "wasilah-realtime",
			ReconnectIntervalMS:  1000,
			MaxReconnectAttempts: 10,
			MaxBackoffMS:         30000,
			HeartbeatIntervalMS:  30000,
			DialTimeoutMS:        10000,
			SendQueueSize:        64,
		},

		Polling: PollingConfiguration{
			Enabled:           true,
			InitialIntervalMS: 10000,
			MinIntervalMS:     3000,
			MaxIntervalMS:     60000,
			IdleRounds:        3,
			FetchTimeoutMS:    10000,
		},

		Dedup: DedupConfiguration{
			WindowMS: 5000,
		},

		Source: SourceConfiguration{
			Type:    SourceHTTP,
			BaseURL: "http://localhost:8080/api",
		},

		Cache: CacheConfiguration{
			Size: 1024,
		},

		Logging: LoggingConfiguration{
			Verbose: false,
			Format:  "console",
		},

		Prometheus: PrometheusConfiguration{
			Enabled: true,
		},

		Admin: AdminConfiguration{
			Enabled:     true,
			BindAddress: "127.0.0.1",
			Port:        9464,
		},
	}
}

// Config is the process-wide configuration
var Config = Default()

// Load loads configuration from file, then applies CLI overrides and
// environment secrets
func Load(configPath string, o Overrides) error {
	next, err := Read(configPath)
	if err != nil {
		return err
	}

	if o.ChannelURL != "" {
		next.Channel.URL = o.ChannelURL
	}
	if o.Transport != "" {
		next.Channel.Transport = TransportType(o.Transport)
	}
	if o.AdminPort != 0 {
		next.Admin.Port = o.AdminPort
	}
	if o.ClientID != "" {
		next.ClientID = o.ClientID
	}
	if o.Verbose {
		next.Logging.Verbose = true
	}

	if next.ClientID == "" {
		next.ClientID = generateClientID()
		log.Info().Str("client_id", next.ClientID).Msg("Auto-generated client ID")
	}

	Config = next
	return nil
}

// Read decodes a configuration file over the defaults without touching Config.
// Secrets from the environment are applied last. A missing file yields defaults.
func Read(configPath string) (*Configuration, error) {
	next := Default()
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, next); err != nil {
				return nil, fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	applyEnv(next)
	return next, nil
}

func applyEnv(c *Configuration) {
	// .env is optional; real environment variables win over it
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to read .env file")
	}

	if v := os.Getenv(EnvAdminSecret); v != "" {
		c.Admin.Secret = v
	}
	if v := os.Getenv(EnvSourceDSN); v != "" {
		c.Source.DSN = v
	}
}

// generateClientID derives a stable id from the machine id, falling back to
// a random uuid when the machine id is unavailable (containers, sandboxes)
func generateClientID() string {
	id, err := machineid.ProtectedID("wasilah")
	if err != nil {
		log.Warn().Err(err).Msg("Machine ID unavailable, using random client ID")
		return uuid.NewString()
	}
	return id[:16]
}

// Validate checks the global configuration
func Validate() error {
	return Config.Validate()
}

// Validate checks configuration for errors
func (c *Configuration) Validate() error {
	switch c.Channel.Transport {
	case TransportWebSocket, TransportNATS:
		if c.Channel.URL == "" {
			return fmt.Errorf("channel url is required for %s transport", c.Channel.Transport)
		}
	case TransportKafka:
		if len(c.Channel.KafkaBrokers) == 0 {
			return fmt.Errorf("kafka transport requires at least one broker")
		}
		if c.Channel.KafkaTopic == "" {
			return fmt.Errorf("kafka transport requires a topic")
		}
	default:
		return fmt.Errorf("invalid channel transport: %q", c.Channel.Transport)
	}

	if c.Channel.ReconnectIntervalMS < 1 {
		return fmt.Errorf("reconnect interval must be >= 1ms")
	}
	if c.Channel.MaxReconnectAttempts < 1 {
		return fmt.Errorf("max reconnect attempts must be >= 1")
	}
	if c.Channel.MaxBackoffMS < c.Channel.ReconnectIntervalMS {
		return fmt.Errorf("max backoff (%dms) must be >= reconnect interval (%dms)",
			c.Channel.MaxBackoffMS, c.Channel.ReconnectIntervalMS)
	}
	if c.Channel.HeartbeatIntervalMS < 1 {
		return fmt.Errorf("heartbeat interval must be >= 1ms")
	}
	if c.Channel.DialTimeoutMS < 1 {
		return fmt.Errorf("dial timeout must be >= 1ms")
	}
	if c.Channel.SendQueueSize < 1 {
		return fmt.Errorf("send queue size must be >= 1")
	}

	if c.Polling.MinIntervalMS < 1 {
		return fmt.Errorf("polling min interval must be >= 1ms")
	}
	if c.Polling.MaxIntervalMS < c.Polling.MinIntervalMS {
		return fmt.Errorf("polling max interval must be >= min interval")
	}
	if c.Polling.InitialIntervalMS < c.Polling.MinIntervalMS || c.Polling.InitialIntervalMS > c.Polling.MaxIntervalMS {
		return fmt.Errorf("polling initial interval %dms outside [%d, %d]",
			c.Polling.InitialIntervalMS, c.Polling.MinIntervalMS, c.Polling.MaxIntervalMS)
	}
	if c.Polling.IdleRounds < 1 {
		return fmt.Errorf("polling idle rounds must be >= 1")
	}
	if c.Polling.FetchTimeoutMS < 1 {
		return fmt.Errorf("polling fetch timeout must be >= 1ms")
	}

	if c.Dedup.WindowMS < 1 {
		return fmt.Errorf("dedup window must be >= 1ms")
	}

	switch c.Source.Type {
	case SourceHTTP:
		if c.Polling.Enabled && c.Source.BaseURL == "" {
			return fmt.Errorf("http source requires base_url")
		}
	case SourcePostgres, SourceSQLite, SourceMySQL:
		if c.Polling.Enabled && c.Source.DSN == "" {
			return fmt.Errorf("%s source requires a dsn (or %s)", c.Source.Type, EnvSourceDSN)
		}
	default:
		return fmt.Errorf("invalid source type: %q", c.Source.Type)
	}

	if c.Cache.Size < 1 {
		return fmt.Errorf("cache size must be >= 1")
	}

	for i, e := range c.Entities {
		if _, err := event.ParseEntity(e.Name); err != nil {
			return fmt.Errorf("entities[%d]: %w", i, err)
		}
		if len(e.CacheKey) == 0 {
			return fmt.Errorf("entities[%d] (%s): cache_key is required", i, e.Name)
		}
		switch strings.ToLower(e.Policy) {
		case "patch", "invalidate":
		default:
			return fmt.Errorf("entities[%d] (%s): invalid policy %q", i, e.Name, e.Policy)
		}
	}

	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %q", c.Logging.Format)
	}

	if c.Admin.Enabled && (c.Admin.Port < 1 || c.Admin.Port > 65535) {
		return fmt.Errorf("invalid admin port: %d", c.Admin.Port)
	}

	return nil
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// ReconnectInterval returns the base reconnect delay
func (c ChannelConfiguration) ReconnectInterval() time.Duration { return ms(c.ReconnectIntervalMS) }

// MaxBackoff returns the reconnect delay ceiling
func (c ChannelConfiguration) MaxBackoff() time.Duration { return ms(c.MaxBackoffMS) }

// HeartbeatInterval returns the ping period
func (c ChannelConfiguration) HeartbeatInterval() time.Duration { return ms(c.HeartbeatIntervalMS) }

// DialTimeout returns the per-attempt dial deadline
func (c ChannelConfiguration) DialTimeout() time.Duration { return ms(c.DialTimeoutMS) }

func (p PollingConfiguration) InitialInterval() time.Duration { return ms(p.InitialIntervalMS) }
func (p PollingConfiguration) MinInterval() time.Duration     { return ms(p.MinIntervalMS) }
func (p PollingConfiguration) MaxInterval() time.Duration     { return ms(p.MaxIntervalMS) }
func (p PollingConfiguration) FetchTimeout() time.Duration    { return ms(p.FetchTimeoutMS) }

// Window returns the dedup window
func (d DedupConfiguration) Window() time.Duration { return ms(d.WindowMS) }

// TableFor returns the snapshot table configured for an entity
func (c *Configuration) TableFor(entity string) string {
	for _, e := range c.Entities {
		if e.Name == entity && e.Table != "" {
			return e.Table
		}
	}
	return entity
}

// AlwaysPoll reports whether an entity is polled regardless of bindings
func (c *Configuration) AlwaysPoll(entity string) bool {
	for _, e := range c.Entities {
		if e.Name == entity && e.Poll {
			return true
		}
	}
	return false
}

// EntityNames returns the distinct configured entity names in file order
func (c *Configuration) EntityNames() []string {
	seen := make(map[string]struct{}, len(c.Entities))
	var out []string
	for _, e := range c.Entities {
		if _, ok := seen[e.Name]; ok {
			continue
		}
		seen[e.Name] = struct{}{}
		out = append(out, e.Name)
	}
	return out
}
