package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/chartloom-cli/internal/analysis"
)

// Global configuration structure.
type Global struct {
	Host string `mapstructure:"host" yaml:"host" validate:"required"`
	Port int    `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
	// MaxUploadMB caps the request body of uploads.
	MaxUploadMB int `mapstructure:"max_upload_mb" yaml:"max_upload_mb" validate:"min=1,max=1024"`

	// Dataset store limits; 0 disables a limit.
	StoreCapacity int `mapstructure:"store_capacity" yaml:"store_capacity" validate:"min=0"`
	StoreTTLMin   int `mapstructure:"store_ttl_min" yaml:"store_ttl_min" validate:"min=0"`

	DateThreshold float64 `mapstructure:"date_threshold" yaml:"date_threshold" validate:"gt=0,lte=1"`
	PreviewRows   int     `mapstructure:"preview_rows" yaml:"preview_rows" validate:"min=0,max=1000"`
	MaxRows       int     `mapstructure:"max_rows" yaml:"max_rows" validate:"min=0"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format" validate:"oneof=text json"`
}

var validate = validator.New()

// Validate checks value ranges after loading or editing.
func (c *Global) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config %s: %v fails %s", keyOf(fe.StructField()), fe.Value(), fe.Tag())
		}
		return err
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Global) Addr() string { return net.JoinHostPort(c.Host, strconv.Itoa(c.Port)) }

// MaxUploadBytes is MaxUploadMB in bytes.
func (c *Global) MaxUploadBytes() int64 { return int64(c.MaxUploadMB) << 20 }

// StoreTTL is the idle lifetime of a stored dataset.
func (c *Global) StoreTTL() time.Duration { return time.Duration(c.StoreTTLMin) * time.Minute }

// AnalysisOptions maps config onto CSV loading and classification options.
func (c *Global) AnalysisOptions() analysis.Options {
	opt := analysis.DefaultOptions()
	if c.DateThreshold > 0 {
		opt.DateThreshold = c.DateThreshold
	}
	if c.MaxRows > 0 {
		opt.MaxRows = c.MaxRows
	}
	return opt
}

// Keys lists the settable keys in display order.
var Keys = []string{"host", "port", "max_upload_mb", "store_capacity", "store_ttl_min", "date_threshold", "preview_rows", "max_rows", "log_level", "log_format"}

// Get returns the value of key formatted for display.
func (c *Global) Get(key string) (string, error) {
	switch key {
	case "host":
		return c.Host, nil
	case "port":
		return strconv.Itoa(c.Port), nil
	case "max_upload_mb":
		return strconv.Itoa(c.MaxUploadMB), nil
	case "store_capacity":
		return strconv.Itoa(c.StoreCapacity), nil
	case "store_ttl_min":
		return strconv.Itoa(c.StoreTTLMin), nil
	case "date_threshold":
		return strconv.FormatFloat(c.DateThreshold, 'f', -1, 64), nil
	case "preview_rows":
		return strconv.Itoa(c.PreviewRows), nil
	case "max_rows":
		return strconv.Itoa(c.MaxRows), nil
	case "log_level":
		return c.LogLevel, nil
	case "log_format":
		return c.LogFormat, nil
	}
	return "", fmt.Errorf("unknown key: %s", key)
}

// Set parses val into key and validates the result. On error c is unchanged.
func (c *Global) Set(key, val string) error {
	next := *c
	val = strings.TrimSpace(val)
	atoi := func() (int, error) {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("invalid int for %s: %v", key, val)
		}
		return i, nil
	}
	var err error
	switch key {
	case "host":
		next.Host = val
	case "port":
		next.Port, err = atoi()
	case "max_upload_mb":
		next.MaxUploadMB, err = atoi()
	case "store_capacity":
		next.StoreCapacity, err = atoi()
	case "store_ttl_min":
		next.StoreTTLMin, err = atoi()
	case "preview_rows":
		next.PreviewRows, err = atoi()
	case "max_rows":
		next.MaxRows, err = atoi()
	case "date_threshold":
		next.DateThreshold, err = strconv.ParseFloat(val, 64)
		if err != nil {
			err = fmt.Errorf("invalid float for date_threshold: %v", val)
		}
	case "log_level":
		next.LogLevel = strings.ToLower(val)
	case "log_format":
		next.LogFormat = strings.ToLower(val)
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	if err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

func keyOf(field string) string {
	for _, k := range Keys {
		if strings.ReplaceAll(k, "_", "") == strings.ToLower(field) {
			return k
		}
	}
	return field
}

func defaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".chartloom"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.chartloom/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := defaultDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("CHARTLOOM")
	v.AutomaticEnv()

	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("port", 8050)
	v.SetDefault("max_upload_mb", 16)
	v.SetDefault("store_capacity", 32)
	v.SetDefault("store_ttl_min", 60)
	v.SetDefault("date_threshold", analysis.DefaultDateThreshold)
	v.SetDefault("preview_rows", 5)
	v.SetDefault("max_rows", 1_000_000)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := defaultDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.LogFormat = strings.ToLower(c.LogFormat)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
