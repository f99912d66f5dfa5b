// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"pos-device-service/internal/model"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig         `mapstructure:"server"`
	Logging  LoggingConfig        `mapstructure:"logging"`
	Device   DeviceConfig         `mapstructure:"device"`
	Devices  []model.DeviceConfig `mapstructure:"devices"`
	Fiscal   FiscalConfig         `mapstructure:"fiscal"`
	Drawer   DrawerConfig         `mapstructure:"drawer"`
	Loyalty  LoyaltyConfig        `mapstructure:"loyalty"`
	Scanner  SerialPeripheral     `mapstructure:"scanner"`
	Display  SerialPeripheral     `mapstructure:"display"`
	Journal  JournalConfig        `mapstructure:"journal"`
	Security SecurityConfig       `mapstructure:"security"`
	App      AppConfig            `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// DeviceConfig holds timeouts shared by every device connection
type DeviceConfig struct {
	OperationTimeout   time.Duration `mapstructure:"operation_timeout"`
	TransactionTimeout time.Duration `mapstructure:"transaction_timeout"`

	TCPConnectTimeout time.Duration `mapstructure:"tcp_connect_timeout"`
	TCPWriteTimeout   time.Duration `mapstructure:"tcp_write_timeout"`
	TCPReadTimeout    time.Duration `mapstructure:"tcp_read_timeout"`

	SerialBaudRate    int           `mapstructure:"serial_baud_rate"`
	SerialReadTimeout time.Duration `mapstructure:"serial_read_timeout"`

	ReaderPollInterval time.Duration `mapstructure:"reader_poll_interval"`
	ReaderBackoff      time.Duration `mapstructure:"reader_backoff"`
}

// Print modes for fiscal receipts
const (
	PrintModeDevice = "device"
	PrintModePOS    = "pos"
)

// FiscalConfig configures receipt building and rendering
type FiscalConfig struct {
	TaxRates     []model.TaxRateConfig `mapstructure:"tax_rates"`
	PaperWidth   int                   `mapstructure:"paper_width"`
	Localization string                `mapstructure:"localization"`
	PrintMode    string                `mapstructure:"print_mode"`
	// DrawerProfile is kicked after a receipt paid in cash
	DrawerProfile string `mapstructure:"drawer_profile"`
}

// DrawerConfig configures cash drawer actuation
type DrawerConfig struct {
	MinInterval time.Duration            `mapstructure:"min_interval"`
	DefaultPort int                      `mapstructure:"default_port"`
	Profiles    map[string]DrawerProfile `mapstructure:"profiles"`
}

// DrawerProfile is the network printer a drawer hangs off
type DrawerProfile struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LoyaltyConfig configures the loyalty card reader
type LoyaltyConfig struct {
	DebounceWindow time.Duration    `mapstructure:"debounce_window"`
	Reader         SerialPeripheral `mapstructure:"reader"`
}

// SerialPeripheral is an optional serial device such as a scanner or pole display
type SerialPeripheral struct {
	Port     string `mapstructure:"port"`
	BaudRate int    `mapstructure:"baud_rate"`
}

// Enabled reports whether a port is configured
func (p SerialPeripheral) Enabled() bool {
	return p.Port != ""
}

// JournalConfig represents the optional PostgreSQL operation journal
type JournalConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	DBName         string        `mapstructure:"dbname"`
	SSLMode        string        `mapstructure:"sslmode"`
	MaxOpenConns   int           `mapstructure:"max_open_conns"`
	MaxIdleConns   int           `mapstructure:"max_idle_conns"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	MigrationsPath string        `mapstructure:"migrations_path"`
	// Retention is how long journal rows are kept
	Retention time.Duration `mapstructure:"retention"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// DefaultConfigPaths are searched in order for config.yaml
var DefaultConfigPaths = []string{".", "./configs", "/etc/pos-device-service"}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigPaths...)
}

// LoadFrom loads configuration searching the given directories.
// A missing config file is not an error; defaults apply.
func LoadFrom(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// Environment variable support
	v.SetEnvPrefix("POS_DEVICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8084")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "120s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Device defaults
	v.SetDefault("device.operation_timeout", "30s")
	v.SetDefault("device.transaction_timeout", "90s")
	v.SetDefault("device.tcp_connect_timeout", "3s")
	v.SetDefault("device.tcp_write_timeout", "2s")
	v.SetDefault("device.tcp_read_timeout", "1s")
	v.SetDefault("device.serial_baud_rate", 9600)
	v.SetDefault("device.serial_read_timeout", "500ms")
	v.SetDefault("device.reader_poll_interval", "50ms")
	v.SetDefault("device.reader_backoff", "1s")

	// Fiscal defaults
	v.SetDefault("fiscal.paper_width", 42)
	v.SetDefault("fiscal.localization", "en")
	v.SetDefault("fiscal.print_mode", PrintModeDevice)

	// Peripheral defaults
	v.SetDefault("drawer.min_interval", "2s")
	v.SetDefault("drawer.default_port", 9100)
	v.SetDefault("loyalty.debounce_window", "3s")
	v.SetDefault("loyalty.reader.baud_rate", 9600)
	v.SetDefault("scanner.baud_rate", 9600)
	v.SetDefault("display.baud_rate", 9600)

	// Journal defaults
	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.host", "localhost")
	v.SetDefault("journal.port", 5432)
	v.SetDefault("journal.user", "postgres")
	v.SetDefault("journal.password", "postgres")
	v.SetDefault("journal.dbname", "pos_devices")
	v.SetDefault("journal.sslmode", "disable")
	v.SetDefault("journal.max_open_conns", 10)
	v.SetDefault("journal.max_idle_conns", 2)
	v.SetDefault("journal.max_lifetime", "5m")
	v.SetDefault("journal.migrations_path", "file://migrations")
	v.SetDefault("journal.retention", "720h")

	// Security defaults
	v.SetDefault("security.allowed_origins", []string{"*"})

	// App defaults
	v.SetDefault("app.name", "pos-device-service")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	validEnvs := []string{"development", "staging", "production", "test"}
	if !contains(validEnvs, config.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	validModes := []string{PrintModeDevice, PrintModePOS}
	if !contains(validModes, config.Fiscal.PrintMode) {
		return fmt.Errorf("fiscal.print_mode must be one of: %v", validModes)
	}

	for i, rate := range config.Fiscal.TaxRates {
		if len(rate.Code) != 1 {
			return fmt.Errorf("fiscal.tax_rates[%d]: code must be a single letter, got %q", i, rate.Code)
		}
	}

	if config.Journal.Retention <= 0 {
		return fmt.Errorf("journal.retention must be positive")
	}

	seen := make(map[string]bool, len(config.Devices))
	for i, dev := range config.Devices {
		if dev.DeviceID == "" {
			return fmt.Errorf("devices[%d]: device_id is required", i)
		}
		if seen[dev.DeviceID] {
			return fmt.Errorf("devices[%d]: duplicate device_id %q", i, dev.DeviceID)
		}
		seen[dev.DeviceID] = true

		switch dev.Protocol {
		case model.ProtocolFiscalESCPOS, model.ProtocolZVT, model.ProtocolPAX:
		default:
			return fmt.Errorf("devices[%d]: unknown protocol %q", i, dev.Protocol)
		}
	}

	return nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

// GetJournalDSN returns the journal database connection string
func (c *Config) GetJournalDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Journal.Host, c.Journal.Port, c.Journal.User,
		c.Journal.Password, c.Journal.DBName, c.Journal.SSLMode)
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
