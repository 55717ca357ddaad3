package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"sleepywoodpecker/ppg-scope/internal/chart"
	"sleepywoodpecker/ppg-scope/internal/device"
	"sleepywoodpecker/ppg-scope/internal/pipeline"
	"sleepywoodpecker/ppg-scope/internal/recorder"
)

const EnvPrefix = "PPG"

type DeviceConfig struct {
	Port           string        `mapstructure:"port"`
	BaudRate       int           `mapstructure:"baud_rate"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	Service        string        `mapstructure:"service"`
	Characteristic string        `mapstructure:"characteristic"`
	Simulate       bool          `mapstructure:"simulate"`
}

type AcquisitionConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Increment    time.Duration `mapstructure:"increment"`
	Timestamps   string        `mapstructure:"timestamps"`
	Channel      string        `mapstructure:"channel"`
}

type PoolsConfig struct {
	RenderWorkers  int    `mapstructure:"render_workers"`
	PersistWorkers int    `mapstructure:"persist_workers"`
	QueueSize      int    `mapstructure:"queue_size"`
	QueuePolicy    string `mapstructure:"queue_policy"`
}

type ChartConfig struct {
	Interval float64 `mapstructure:"interval"`
	YUpper   float64 `mapstructure:"y_upper"`
	MinYSpan float64 `mapstructure:"min_y_span"`
}

type RecordConfig struct {
	Path    string `mapstructure:"path"`
	Verbose bool   `mapstructure:"verbose"`
}

type LogConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

type TelemetryConfig struct {
	Addr     string        `mapstructure:"addr"`
	Interval time.Duration `mapstructure:"interval"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type ShutdownConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// Config holds the service configuration.
type Config struct {
	Device      DeviceConfig      `mapstructure:"device"`
	Acquisition AcquisitionConfig `mapstructure:"acquisition"`
	Pools       PoolsConfig       `mapstructure:"pools"`
	Chart       ChartConfig       `mapstructure:"chart"`
	Record      RecordConfig      `mapstructure:"record"`
	Log         LogConfig         `mapstructure:"log"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Shutdown    ShutdownConfig    `mapstructure:"shutdown"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device.port", "/dev/ttyUSB0")
	v.SetDefault("device.baud_rate", 460800)
	v.SetDefault("device.read_timeout", "5ms")
	v.SetDefault("device.service", device.SimulatedServiceID)
	v.SetDefault("device.characteristic", device.SimulatedCharacteristicID)
	v.SetDefault("device.simulate", false)

	v.SetDefault("acquisition.poll_interval", pipeline.DefaultPollInterval.String())
	v.SetDefault("acquisition.increment", pipeline.DefaultIncrement.String())
	v.SetDefault("acquisition.timestamps", "synthetic")
	v.SetDefault("acquisition.channel", "red")

	v.SetDefault("pools.render_workers", pipeline.DefaultWorkers)
	v.SetDefault("pools.persist_workers", pipeline.DefaultWorkers)
	v.SetDefault("pools.queue_size", pipeline.DefaultQueueSize)
	v.SetDefault("pools.queue_policy", "block")

	v.SetDefault("chart.interval", 10.0)
	v.SetDefault("chart.y_upper", 5000.0)
	v.SetDefault("chart.min_y_span", chart.DefaultMinYSpan)

	v.SetDefault("record.path", "ppg_record.txt")
	v.SetDefault("record.verbose", false)

	v.SetDefault("log.file", "ppg-scope.logs")
	v.SetDefault("log.level", "info")

	v.SetDefault("telemetry.addr", "")
	v.SetDefault("telemetry.interval", "1s")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("shutdown.timeout", "5s")
}

// Load reads the configuration from path, or from config.yaml in the usual search paths when
// path is empty. A missing file in the search paths is not an error. PPG_* environment
// variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/ppg-scope/")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var err error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			err = multierr.Append(err, fmt.Errorf(format, args...))
		}
	}

	if !c.Device.Simulate {
		check(c.Device.Port != "", "device.port is required unless device.simulate is set")
		check(c.Device.BaudRate > 0, "device.baud_rate must be positive, got %d", c.Device.BaudRate)
	}
	check(c.Device.Service != "", "device.service is required")
	check(c.Device.Characteristic != "", "device.characteristic is required")

	check(c.Acquisition.PollInterval > 0, "acquisition.poll_interval must be positive, got %s", c.Acquisition.PollInterval)
	check(c.Acquisition.Increment > 0, "acquisition.increment must be positive, got %s", c.Acquisition.Increment)
	if _, perr := pipeline.ParseTimestampSource(c.Acquisition.Timestamps); perr != nil {
		err = multierr.Append(err, fmt.Errorf("acquisition.timestamps: %w", perr))
	}
	if _, perr := chart.ParseChannel(c.Acquisition.Channel); perr != nil {
		err = multierr.Append(err, fmt.Errorf("acquisition.channel: %w", perr))
	}

	check(c.Pools.RenderWorkers > 0, "pools.render_workers must be positive, got %d", c.Pools.RenderWorkers)
	check(c.Pools.PersistWorkers > 0, "pools.persist_workers must be positive, got %d", c.Pools.PersistWorkers)
	check(c.Pools.QueueSize > 0, "pools.queue_size must be positive, got %d", c.Pools.QueueSize)
	if _, perr := pipeline.ParseQueuePolicy(c.Pools.QueuePolicy); perr != nil {
		err = multierr.Append(err, fmt.Errorf("pools.queue_policy: %w", perr))
	}

	check(c.Chart.Interval > 0, "chart.interval must be positive, got %v", c.Chart.Interval)
	check(c.Chart.MinYSpan >= 0, "chart.min_y_span must not be negative, got %v", c.Chart.MinYSpan)
	check(c.Record.Path != "", "record.path is required")
	check(c.Telemetry.Addr == "" || c.Telemetry.Interval > 0, "telemetry.interval must be positive, got %s", c.Telemetry.Interval)
	check(c.Shutdown.Timeout > 0, "shutdown.timeout must be positive, got %s", c.Shutdown.Timeout)
	return err
}

// SessionOptions translates the configuration into pipeline options. Validate must have passed.
func (c *Config) SessionOptions() pipeline.Options {
	timestamps, _ := pipeline.ParseTimestampSource(c.Acquisition.Timestamps)
	channel, _ := chart.ParseChannel(c.Acquisition.Channel)
	policy, _ := pipeline.ParseQueuePolicy(c.Pools.QueuePolicy)

	format := recorder.FormatPoints
	if c.Record.Verbose {
		format = recorder.FormatVerbose
	}

	return pipeline.Options{
		Loop: pipeline.LoopConfig{
			ServiceID:        c.Device.Service,
			CharacteristicID: c.Device.Characteristic,
			PollInterval:     c.Acquisition.PollInterval,
			Increment:        c.Acquisition.Increment,
			Timestamps:       timestamps,
		},
		Render:       pipeline.PoolConfig{Workers: c.Pools.RenderWorkers, QueueSize: c.Pools.QueueSize, Policy: policy},
		Persist:      pipeline.PoolConfig{Workers: c.Pools.PersistWorkers, QueueSize: c.Pools.QueueSize, Policy: policy},
		Interval:     c.Chart.Interval,
		YUpper:       c.Chart.YUpper,
		Channel:      channel,
		RecordPath:   c.Record.Path,
		RecordFormat: format,
	}
}

func (c *Config) SerialConfig() device.SerialConfig {
	return device.SerialConfig{
		PortName:         c.Device.Port,
		BaudRate:         c.Device.BaudRate,
		ReadTimeout:      c.Device.ReadTimeout,
		ServiceID:        c.Device.Service,
		CharacteristicID: c.Device.Characteristic,
	}
}
