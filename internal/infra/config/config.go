package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App           AppSettings           `mapstructure:"app"`
	Postgres      PostgresSettings      `mapstructure:"postgres"`
	Redis         RedisSettings         `mapstructure:"redis"`
	Kafka         KafkaSettings         `mapstructure:"kafka"`
	Telemetry     TelemetrySettings     `mapstructure:"telemetry"`
	Argon2        Argon2Settings        `mapstructure:"argon2"`
	ClientCookie  ClientCookieSettings  `mapstructure:"client_cookie"`
	Coin          CoinSettings          `mapstructure:"coin"`
	Ticker        TickerSettings        `mapstructure:"ticker"`
	IdleMonitor   IdleMonitorSettings   `mapstructure:"idle_monitor"`
	FailAttempt   FailAttemptSettings   `mapstructure:"fail_attempt"`
	PacketPolicy  PacketPolicySettings  `mapstructure:"packet_policy"`
}

type AppSettings struct {
	Name        string   `mapstructure:"name"`
	Env         string   `mapstructure:"env"`
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	TimeZone    string   `mapstructure:"time_zone"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures Redis connection and TLS. Redis backs
// FailAttemptGate's per-MAC failure counters, the coin-session status
// cache and the sub-device request throttle. PulseWindowPrefix and
// PulseWindowTTL are loaded but not read by any component.
type RedisSettings struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	DB                 int           `mapstructure:"db"`
	Password           string        `mapstructure:"password"`
	TLSEnabled         bool          `mapstructure:"tls_enabled"`
	PulseWindowPrefix  string        `mapstructure:"pulse_window_prefix"`
	PulseWindowTTL     time.Duration `mapstructure:"pulse_window_ttl"`
}

// KafkaSettings configures the Sarama producer that publishes domain
// events (coin pulses, credit applications, session expiry, source bans).
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

// Argon2Settings configures Argon2id hashing of remote coin-source shared
// secrets (sub_vendo_key).
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// ClientCookieSettings configures the JWT-backed client_id cookie minted
// by JWTClientIdentityManager.
type ClientCookieSettings struct {
	SigningSecret string        `mapstructure:"signing_secret"`
	TTL           time.Duration `mapstructure:"ttl"`
	CookieName    string        `mapstructure:"cookie_name"`
}

type TelemetrySettings struct {
	MetricsPort  int     `mapstructure:"metrics_port"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// CoinSettings tunes the appliance-wide CoinAggregator state machine.
type CoinSettings struct {
	BanLimitPulsesPerWindow int           `mapstructure:"ban_limit_pulses_per_window"`
	PulseAbuseWindow        time.Duration `mapstructure:"pulse_abuse_window"`
	LocalPulseValue         int64         `mapstructure:"local_pulse_value"`
}

// TickerSettings tunes the 1Hz reconciliation loop.
type TickerSettings struct {
	TrafficSampleInterval time.Duration `mapstructure:"traffic_sample_interval"`
	AuthReconcileInterval time.Duration `mapstructure:"auth_reconcile_interval"`
}

// IdleMonitorSettings tunes the idle-pause sweep.
type IdleMonitorSettings struct {
	StallThreshold time.Duration `mapstructure:"stall_threshold"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
}

// FailAttemptSettings tunes the per-MAC consecutive-failure gate.
type FailAttemptSettings struct {
	BanLimit int           `mapstructure:"ban_limit"`
	BanFor   time.Duration `mapstructure:"ban_for"`
}

// PacketPolicySettings bounds the os/exec calls shelling to ipset/tc/conntrack,
// and the HTTP-edge throttle applied to sub-device callbacks.
type PacketPolicySettings struct {
	ProbeTimeout            time.Duration `mapstructure:"probe_timeout"`
	RewriteTimeout          time.Duration `mapstructure:"rewrite_timeout"`
	IpsetName                string        `mapstructure:"ipset_name"`
	TcClassParent            string        `mapstructure:"tc_class_parent"`
	Iface                    string        `mapstructure:"iface"`
	SourceRequestsPerMinute  int           `mapstructure:"source_requests_per_minute"`
	SourceRequestWindow      time.Duration `mapstructure:"source_request_window"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("GATEWAY")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.time_zone",
		"app.cors_origins",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.pulse_window_prefix",
		"redis.pulse_window_ttl",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"telemetry.metrics_port",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"client_cookie.signing_secret",
		"client_cookie.ttl",
		"client_cookie.cookie_name",
		"coin.ban_limit_pulses_per_window",
		"coin.pulse_abuse_window",
		"ticker.traffic_sample_interval",
		"ticker.auth_reconcile_interval",
		"idle_monitor.stall_threshold",
		"idle_monitor.sweep_interval",
		"fail_attempt.ban_limit",
		"fail_attempt.ban_for",
		"packet_policy.probe_timeout",
		"packet_policy.rewrite_timeout",
		"packet_policy.ipset_name",
		"packet_policy.tc_class_parent",
		"packet_policy.iface",
		"packet_policy.source_requests_per_minute",
		"packet_policy.source_request_window",
		"coin.local_pulse_value",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "coin-gateway")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.time_zone", "Asia/Manila")
	v.SetDefault("app.cors_origins", []string{"*"})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "gateway")
	v.SetDefault("postgres.password", "gateway_password")
	v.SetDefault("postgres.database", "gateway")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.pulse_window_prefix", "gateway:pulse_window")
	v.SetDefault("redis.pulse_window_ttl", "2m")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "gateway")
	v.SetDefault("kafka.async", true)

	v.SetDefault("telemetry.metrics_port", 9090)
	v.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "coin-gateway")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("client_cookie.signing_secret", "")
	v.SetDefault("client_cookie.ttl", "8760h")
	v.SetDefault("client_cookie.cookie_name", "client_id")

	v.SetDefault("coin.ban_limit_pulses_per_window", 20)
	v.SetDefault("coin.pulse_abuse_window", "10s")
	v.SetDefault("coin.local_pulse_value", 1)

	v.SetDefault("ticker.traffic_sample_interval", "5s")
	v.SetDefault("ticker.auth_reconcile_interval", "60s")

	v.SetDefault("idle_monitor.stall_threshold", "3m")
	v.SetDefault("idle_monitor.sweep_interval", "30s")

	v.SetDefault("fail_attempt.ban_limit", 5)
	v.SetDefault("fail_attempt.ban_for", "15m")

	v.SetDefault("packet_policy.probe_timeout", "2s")
	v.SetDefault("packet_policy.rewrite_timeout", "5s")
	v.SetDefault("packet_policy.ipset_name", "gateway-authorized")
	v.SetDefault("packet_policy.tc_class_parent", "1:")
	v.SetDefault("packet_policy.iface", "br-lan")
	v.SetDefault("packet_policy.source_requests_per_minute", 120)
	v.SetDefault("packet_policy.source_request_window", "1m")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "GATEWAY_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
