// Package config loads and validates slotwatch configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // site.timezone must resolve on hosts without zoneinfo

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/meizi0715/bdt-v1.5/internal/calendar"
	"github.com/meizi0715/bdt-v1.5/internal/crawler"
	"github.com/meizi0715/bdt-v1.5/internal/schedule"
)

// Snapshot backends.
const (
	BackendLocal  = "local"
	BackendMemory = "memory"
	BackendGCS    = "gcs"
	BackendRedis  = "redis"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Site      SiteConfig             `mapstructure:"site"`
	Locations []crawler.LocationSpec `mapstructure:"locations"`
	// LocationsJSON is an array of 7-string tuples
	// [category, reserve_a, reserve_b, facility, page, label, name]. When
	// set it replaces Locations.
	LocationsJSON string          `mapstructure:"locations_json"`
	Selectors     SelectorsConfig `mapstructure:"selectors"`
	Crawl         CrawlConfig     `mapstructure:"crawl"`
	Browser       BrowserConfig   `mapstructure:"browser"`
	Calendar      CalendarConfig  `mapstructure:"calendar"`
	Snapshot      SnapshotConfig  `mapstructure:"snapshot"`
	Notify        NotifyConfig    `mapstructure:"notify"`
	Email         EmailConfig     `mapstructure:"email"`
	Telegram      TelegramConfig  `mapstructure:"telegram"`
	Metrics       MetricsConfig   `mapstructure:"metrics"`
	Logging       LoggingConfig   `mapstructure:"logging"`
}

// SiteConfig locates the reservation site.
type SiteConfig struct {
	URL       string `mapstructure:"url"`
	FrameName string `mapstructure:"frame_name"`
	Timezone  string `mapstructure:"timezone"`
}

// SelectorsConfig holds the site's button labels.
type SelectorsConfig struct {
	Purpose          string   `mapstructure:"purpose"`
	NoLocation       string   `mapstructure:"no_location"`
	NextPage         string   `mapstructure:"next_page"`
	NextWeek         string   `mapstructure:"next_week"`
	PrevWeek         string   `mapstructure:"prev_week"`
	SkipRoomKeywords []string `mapstructure:"skip_room_keywords"`
}

// CrawlConfig tunes waits inside a session.
type CrawlConfig struct {
	WaitTimeout    time.Duration `mapstructure:"wait_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	SettleDelay    time.Duration `mapstructure:"settle_delay"`
	ElementTimeout time.Duration `mapstructure:"element_timeout"`
	DialogTimeout  time.Duration `mapstructure:"dialog_timeout"`
	YearInference  string        `mapstructure:"year_inference"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless"`
	ExecPath          string        `mapstructure:"exec_path"`
	UserAgent         string        `mapstructure:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	LaunchQPS         float64       `mapstructure:"launch_qps"`
	LaunchBurst       int           `mapstructure:"launch_burst"`
}

// CalendarConfig adds closure days on top of national holidays.
type CalendarConfig struct {
	ExtraHolidays []string `mapstructure:"extra_holidays"`
}

// SnapshotConfig selects and configures the snapshot backend.
type SnapshotConfig struct {
	Backend string      `mapstructure:"backend"`
	Dir     string      `mapstructure:"dir"`
	Keep    int         `mapstructure:"keep"`
	GCS     GCSConfig   `mapstructure:"gcs"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// GCSConfig names the bucket for the gcs backend.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// RedisConfig holds redis backend connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// NotifyConfig holds the cron windows.
type NotifyConfig struct {
	ForcedWindow string `mapstructure:"forced_window"`
	PruneWindow  string `mapstructure:"prune_window"`
}

// EmailConfig configures the SMTP publisher and the message text.
type EmailConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	Username       string   `mapstructure:"username"`
	Password       string   `mapstructure:"password"`
	From           string   `mapstructure:"from"`
	To             []string `mapstructure:"to"`
	Subject        string   `mapstructure:"subject"`
	Header         string   `mapstructure:"header"`
	Footer         string   `mapstructure:"footer"`
	NoAvailability string   `mapstructure:"no_availability"`
	AttachICS      bool     `mapstructure:"attach_ics"`
}

// TelegramConfig configures the optional Telegram publisher.
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
	ChatID  int64  `mapstructure:"chat_id"`
}

// MetricsConfig says where run metrics are flushed.
type MetricsConfig struct {
	Textfile    string `mapstructure:"textfile"`
	Pushgateway string `mapstructure:"pushgateway"`
	Job         string `mapstructure:"job"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SLOTWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.LocationsJSON != "" {
		specs, err := ParseLocationTuples(cfg.LocationsJSON)
		if err != nil {
			return Config{}, err
		}
		cfg.Locations = specs
	}
	cfg.Locations = withSpecDefaults(cfg.Locations)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Keys without a meaningful default are still registered so that
	// AutomaticEnv can populate them during Unmarshal.
	for _, key := range []string{
		"site.url", "locations_json",
		"selectors.no_location", "selectors.next_page", "selectors.next_week", "selectors.prev_week",
		"browser.exec_path", "browser.user_agent",
		"snapshot.gcs.bucket", "snapshot.redis.addr", "snapshot.redis.password",
		"email.username", "email.password", "email.from", "email.subject",
		"email.header", "email.footer", "email.no_availability",
		"telegram.token", "metrics.textfile", "metrics.pushgateway",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("email.to", []string{})
	v.SetDefault("calendar.extra_holidays", []string{})
	v.SetDefault("email.enabled", false)
	v.SetDefault("email.attach_ics", false)
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.chat_id", 0)
	v.SetDefault("snapshot.redis.db", 0)
	v.SetDefault("site.frame_name", "MainFrame")
	v.SetDefault("site.timezone", "Asia/Tokyo")
	v.SetDefault("selectors.purpose", "目的")
	v.SetDefault("selectors.skip_room_keywords", []string{"センター", "中央"})
	v.SetDefault("crawl.wait_timeout", 25*time.Second)
	v.SetDefault("crawl.poll_interval", 500*time.Millisecond)
	v.SetDefault("crawl.settle_delay", 2*time.Second)
	v.SetDefault("crawl.element_timeout", 30*time.Second)
	v.SetDefault("crawl.dialog_timeout", 5*time.Second)
	v.SetDefault("crawl.year_inference", string(calendar.YearCurrent))
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", 45*time.Second)
	v.SetDefault("browser.launch_qps", 2.0)
	v.SetDefault("browser.launch_burst", 4)
	v.SetDefault("snapshot.backend", BackendLocal)
	v.SetDefault("snapshot.dir", "output")
	v.SetDefault("snapshot.keep", 6)
	v.SetDefault("snapshot.gcs.prefix", "slotwatch/")
	v.SetDefault("snapshot.redis.prefix", "slotwatch:")
	v.SetDefault("notify.forced_window", schedule.DefaultForcedWindow)
	v.SetDefault("notify.prune_window", schedule.DefaultPruneWindow)
	v.SetDefault("email.host", "smtp.gmail.com")
	v.SetDefault("email.port", 465)
	v.SetDefault("metrics.job", "slotwatch")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// ParseLocationTuples decodes the compact tuple form. JSON is valid YAML, so
// both notations are accepted.
func ParseLocationTuples(raw string) ([]crawler.LocationSpec, error) {
	var rows [][]string
	if err := yaml.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, fmt.Errorf("decode locations_json: %w", err)
	}
	specs := make([]crawler.LocationSpec, 0, len(rows))
	for i, row := range rows {
		if len(row) != 7 {
			return nil, fmt.Errorf("locations_json[%d]: want 7 fields, got %d", i, len(row))
		}
		specs = append(specs, crawler.LocationSpec{
			Category: row[0],
			ReserveA: row[1],
			ReserveB: row[2],
			Facility: row[3],
			Page:     row[4],
			Label:    row[5],
			Name:     row[6],
		})
	}
	return specs, nil
}

func withSpecDefaults(specs []crawler.LocationSpec) []crawler.LocationSpec {
	out := make([]crawler.LocationSpec, len(specs))
	for i, s := range specs {
		if s.Facility == "" {
			s.Facility = crawler.NoFacility
		}
		if s.Page == "" {
			s.Page = crawler.FirstPage
		}
		out[i] = s
	}
	return out
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Site.URL == "" {
		return fmt.Errorf("site.url is required")
	}
	if err := c.validateLocations(); err != nil {
		return err
	}
	if c.Selectors.NoLocation == "" || c.Selectors.NextWeek == "" || c.Selectors.PrevWeek == "" {
		return fmt.Errorf("selectors.no_location, selectors.next_week and selectors.prev_week are required")
	}
	if c.Crawl.WaitTimeout <= 0 || c.Crawl.PollInterval <= 0 {
		return fmt.Errorf("crawl.wait_timeout and crawl.poll_interval must be > 0")
	}
	if c.Crawl.PollInterval > c.Crawl.WaitTimeout {
		return fmt.Errorf("crawl.poll_interval must not exceed crawl.wait_timeout")
	}
	if _, err := calendar.ParseYearPolicy(c.Crawl.YearInference); err != nil {
		return fmt.Errorf("crawl.year_inference: %w", err)
	}
	if _, err := calendar.ParseExtraHolidays(c.Calendar.ExtraHolidays, time.UTC); err != nil {
		return fmt.Errorf("calendar.extra_holidays: %w", err)
	}
	if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
		return fmt.Errorf("site.timezone: %w", err)
	}
	if err := c.validateSnapshot(); err != nil {
		return err
	}
	if _, err := schedule.Parse(c.Notify.ForcedWindow); err != nil {
		return fmt.Errorf("notify.forced_window: %w", err)
	}
	if _, err := schedule.Parse(c.Notify.PruneWindow); err != nil {
		return fmt.Errorf("notify.prune_window: %w", err)
	}
	if c.Email.Enabled {
		if c.Email.Host == "" || c.Email.Port <= 0 {
			return fmt.Errorf("email.host and email.port must be set when email is enabled")
		}
		if c.Email.From == "" || len(c.Email.To) == 0 {
			return fmt.Errorf("email.from and email.to must be set when email is enabled")
		}
	}
	if c.Telegram.Enabled && (c.Telegram.Token == "" || c.Telegram.ChatID == 0) {
		return fmt.Errorf("telegram.token and telegram.chat_id must be set when telegram is enabled")
	}
	return nil
}

func (c Config) validateLocations() error {
	if len(c.Locations) == 0 {
		return fmt.Errorf("at least one location is required")
	}
	sessions := make(map[string]bool)
	var errs []error
	for i, s := range c.Locations {
		if s.Category == "" || s.Label == "" || s.Name == "" {
			errs = append(errs, fmt.Errorf("locations[%d]: category, label and name are required", i))
			continue
		}
		if s.StartsSession() && (s.ReserveA == "" || s.ReserveB == "") {
			errs = append(errs, fmt.Errorf("locations[%d]: reserve_a and reserve_b are required", i))
		}
		if !s.OnFirstPage() && c.Selectors.NextPage == "" {
			errs = append(errs, fmt.Errorf("locations[%d]: selectors.next_page is required for page %q", i, s.Page))
		}
		sessions[s.Label] = sessions[s.Label] || s.StartsSession()
	}
	for label, ok := range sessions {
		if !ok {
			errs = append(errs, fmt.Errorf("label %q has no location that can start a session", label))
		}
	}
	return errors.Join(errs...)
}

func (c Config) validateSnapshot() error {
	if c.Snapshot.Keep <= 0 {
		return fmt.Errorf("snapshot.keep must be > 0")
	}
	switch c.Snapshot.Backend {
	case BackendLocal:
		if c.Snapshot.Dir == "" {
			return fmt.Errorf("snapshot.dir is required for the local backend")
		}
	case BackendGCS:
		if c.Snapshot.GCS.Bucket == "" {
			return fmt.Errorf("snapshot.gcs.bucket is required for the gcs backend")
		}
	case BackendRedis:
		if c.Snapshot.Redis.Addr == "" {
			return fmt.Errorf("snapshot.redis.addr is required for the redis backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("snapshot.backend %q is not one of local, memory, gcs, redis", c.Snapshot.Backend)
	}
	return nil
}
