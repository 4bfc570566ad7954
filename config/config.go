package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env                string            `mapstructure:"env"`
	LogLevel           string            `mapstructure:"log_level"`
	LogType            string            `mapstructure:"log_type"`
	ServiceName        string            `mapstructure:"service_name"`
	Port               string            `mapstructure:"port"`
	Version            string            `mapstructure:"version"`
	CrawlSettings      *CrawlConfig      `mapstructure:"crawl"`
	WorkerSettings     *WorkerConfig     `mapstructure:"worker"`
	BrowserSettings    *BrowserConfig    `mapstructure:"browser"`
	SeedSettings       *SeedConfig       `mapstructure:"seeds"`
	HttpClientSettings *HttpClientConfig `mapstructure:"http_client"`
	CacheSettings      *CacheConfig      `mapstructure:"cache"`
	DbSettings         *DatabaseConfig   `mapstructure:"database"`
	SQSSettings        *SQSConfig        `mapstructure:"sqs"`
	KafkaSettings      *KafkaConfig      `mapstructure:"kafka"`
	TelemetrySettings  *TelemetryConfig  `mapstructure:"telemetry"`
}

// CrawlConfig describes the target search: destination, currency, sorting,
// optional filter/price/property-type passes and the extraction mode.
type CrawlConfig struct {
	DestType     string  `mapstructure:"dest_type"`
	Search       string  `mapstructure:"search"`
	StartURL     string  `mapstructure:"start_url"` // explicit seed URL override
	SortBy       string  `mapstructure:"sort_by"`
	Currency     string  `mapstructure:"currency"`
	Language     string  `mapstructure:"language"`
	MinMaxPrice  string  `mapstructure:"min_max_price"` // "none" or e.g. "100-200"
	PropertyType string  `mapstructure:"property_type"` // "none" or e.g. "Hotels"
	UseFilters   bool    `mapstructure:"use_filters"`
	Simple       bool    `mapstructure:"simple"`
	MinScore     float64 `mapstructure:"min_score"`
	MaxPages     int     `mapstructure:"max_pages"`
	CheckIn      string  `mapstructure:"check_in"`  // 2006-01-02
	CheckOut     string  `mapstructure:"check_out"` // 2006-01-02
	Rooms        int     `mapstructure:"rooms"`
	Adults       int     `mapstructure:"adults"`
	Children     int     `mapstructure:"children"`
	Enrichment   string  `mapstructure:"enrichment"` // registered callback name, empty to disable
}

type WorkerConfig struct {
	WorkersNum      int           `mapstructure:"workers_num"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MaxRetirements  int           `mapstructure:"max_retirements"`
	HandleTimeout   time.Duration `mapstructure:"handle_timeout"`
	RequestsLimit   int           `mapstructure:"requests_limit"`
	TimeInterval    time.Duration `mapstructure:"time_interval"`
	UserAgent       string        `mapstructure:"user_agent"`
	OutputQueueSize int           `mapstructure:"output_queue_size"`
}

type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless"`
	IgnoreCertErrors  bool          `mapstructure:"ignore_cert_errors"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	SelectorTimeout   time.Duration `mapstructure:"selector_timeout"`
	ProxyServers      []string      `mapstructure:"proxy_servers"`
}

type SeedConfig struct {
	Source   string `mapstructure:"source"` // search, sheet, file or sqs
	SheetURL string `mapstructure:"sheet_url"`
	FilePath string `mapstructure:"file_path"` // .csv or .xlsx
}

type HttpClientConfig struct {
	RequestTimeout            time.Duration `mapstructure:"request_timeout"`
	MaxIdleConnections        int           `mapstructure:"max_idle_connections"`
	MaxIdleConnectionsPerHost int           `mapstructure:"max_idle_connections_per_host"`
	MaxConnectionsPerHost     int           `mapstructure:"max_connections_per_host"`
	IdleConnectionTimeout     time.Duration `mapstructure:"idle_connection_timeout"`
	TlsHandshakeTimeout       time.Duration `mapstructure:"tls_handshake_timeout"`
	DialTimeout               time.Duration `mapstructure:"dial_timeout"`
	DialKeepAlive             time.Duration `mapstructure:"dial_keep_alive"`
	TlsInsecureSkipVerify     bool          `mapstructure:"tls_insecure_skip_verify"`
}

type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Servers    []string      `mapstructure:"servers"`
	TtlForSeen time.Duration `mapstructure:"ttl_for_seen"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
}

type SQSConfig struct {
	AwsBaseEndpoint     string `mapstructure:"aws_base_endpoint"`
	Region              string `mapstructure:"region"`
	QueueName           string `mapstructure:"queue_name"`
	MaxNumberOfMessages int32  `mapstructure:"max_number_of_messages"`
	WaitTimeSeconds     int32  `mapstructure:"wait_time_seconds"`
	VisibilityTimeout   int32  `mapstructure:"visibility_timeout"`
}

type KafkaConfig struct {
	Producer *ProducerConfig `mapstructure:"producer"`
}

type ProducerConfig struct {
	Addr                []string      `mapstructure:"addr"`
	WriteTopicName      string        `mapstructure:"write_topic_name"`
	DeadLetterTopicName string        `mapstructure:"dlq_topic_name"`
	MaxAttempts         int           `mapstructure:"max_attempts"`
	BatchSize           int           `mapstructure:"batch_size"`
	BatchTimeout        time.Duration `mapstructure:"batch_timeout"`
	ReadTimeout         time.Duration `mapstructure:"read_timeout"`
	WriteTimeout        time.Duration `mapstructure:"write_timeout"`
	RequiredAsks        int           `mapstructure:"required_acks"`
	Async               bool          `mapstructure:"async"`
}

type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	CollectorUrl string `mapstructure:"collector_url"`
}

const dateLayout = "2006-01-02"

// SeedsFromRows reports whether seeds come from an external row source
// (sheet, file or sqs) rather than a single search query.
func (c *Config) SeedsFromRows() bool {
	return c.SeedSettings != nil && c.SeedSettings.Source != "" && c.SeedSettings.Source != "search"
}

func MustLoad() *Config {
	viper.AddConfigPath(path.Join("."))
	viper.SetConfigName("config")
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		slog.Error("can't initialize config file.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("error unmarshalling viper config.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	return &cfg
}

func (c *Config) applyDefaults() {
	cs := c.CrawlSettings
	if cs == nil {
		return
	}
	if cs.DestType == "" {
		cs.DestType = "city"
	}
	if cs.SortBy == "" {
		cs.SortBy = "bayesian_review_score"
	}
	if cs.MinMaxPrice == "" {
		cs.MinMaxPrice = "none"
	}
	if cs.PropertyType == "" {
		cs.PropertyType = "none"
	}
	if cs.Rooms == 0 {
		cs.Rooms = 1
	}
	if cs.Adults == 0 {
		cs.Adults = 2
	}
	if c.SeedSettings == nil {
		c.SeedSettings = &SeedConfig{}
	}
	if c.SeedSettings.Source == "" {
		c.SeedSettings.Source = "search"
	}
}

// Validate surfaces configuration faults before the crawl starts. Any error
// returned here aborts the run.
func (c *Config) Validate() error {
	if c.CrawlSettings == nil {
		return errors.New("missing crawl section")
	}
	cs := c.CrawlSettings
	seedSource := "search"
	if c.SeedSettings != nil {
		seedSource = c.SeedSettings.Source
	}

	switch seedSource {
	case "search":
		if strings.TrimSpace(cs.Search) == "" && strings.TrimSpace(cs.StartURL) == "" {
			return errors.New(`missing "crawl.search" for seed source "search"`)
		}
	case "sheet":
		if strings.TrimSpace(c.SeedSettings.SheetURL) == "" {
			return errors.New(`missing "seeds.sheet_url" for seed source "sheet"`)
		}
	case "file":
		if strings.TrimSpace(c.SeedSettings.FilePath) == "" {
			return errors.New(`missing "seeds.file_path" for seed source "file"`)
		}
	case "sqs":
		if c.SQSSettings == nil || c.SQSSettings.QueueName == "" {
			return errors.New(`missing "sqs.queue_name" for seed source "sqs"`)
		}
	default:
		return fmt.Errorf("unknown seed source %q", seedSource)
	}
	if seedSource != "search" && strings.TrimSpace(cs.Search) != "" {
		return errors.New(`"crawl.search" cannot be combined with a row-based seed source`)
	}

	if cs.UseFilters && cs.PropertyType != "none" {
		return errors.New("property type and filters cannot be used at the same time")
	}
	if cs.Currency == "" {
		return errors.New(`missing "crawl.currency"`)
	}
	if cs.MinScore < 0 || cs.MinScore > 10 {
		return fmt.Errorf("min_score %v is out of the 0-10 range", cs.MinScore)
	}

	if _, err := c.DaysInterval(); err != nil {
		return err
	}

	return nil
}

// DaysInterval returns the number of days between check-in and check-out.
// Zero when either date is unset.
func (c *Config) DaysInterval() (int, error) {
	cs := c.CrawlSettings
	if strings.TrimSpace(cs.CheckIn) == "" || strings.TrimSpace(cs.CheckOut) == "" {
		return 0, nil
	}
	in, err := time.Parse(dateLayout, cs.CheckIn)
	if err != nil {
		return 0, fmt.Errorf("invalid check_in date %q: %w", cs.CheckIn, err)
	}
	out, err := time.Parse(dateLayout, cs.CheckOut)
	if err != nil {
		return 0, fmt.Errorf("invalid check_out date %q: %w", cs.CheckOut, err)
	}
	days := int(out.Sub(in).Hours() / 24)
	if days <= 0 {
		return 0, errors.New("check_out date must be after check_in date")
	}
	return days, nil
}
