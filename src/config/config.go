package config

import (
	"crypto/ecdsa"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/mosaicnetworks/xln/src/channel"
	"github.com/mosaicnetworks/xln/src/common"
	"github.com/mosaicnetworks/xln/src/node"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the node's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"
)

// Default configuration values.
const (
	DefaultLogLevel        = "debug"
	DefaultBindAddr        = "127.0.0.1:1337"
	DefaultServiceAddr     = "127.0.0.1:8000"
	DefaultStore           = false
	DefaultFlushBatchLimit = channel.DefaultFlushBatchLimit
	DefaultTimelockDelta   = 10
	DefaultTimelock        = 1000
	DefaultFeeBasisPoints  = 0
	DefaultSendTimeout     = 5 * time.Second
	DefaultDialTimeout     = 5 * time.Second
	DefaultProvider        = "0x0000000000000000000000000000000000000000"
	DefaultLogMaxSize      = 100
	DefaultLogMaxBackups   = 5
)

// Config contains all the configuration properties of a node.
type Config struct {
	// DataDir is the top-level directory containing configuration and data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, receives a copy of every log entry. The file is
	// rotated once it reaches DefaultLogMaxSize megabytes.
	LogFile string `mapstructure:"log-file"`

	// BindAddr is the local address:port where the websocket listener accepts
	// peers.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is the websocket URL announced to peers. Defaults to
	// ws://BindAddr.
	AdvertiseAddr string `mapstructure:"advertise"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// Store activates persistant storage.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// FlushBatchLimit is the maximum number of transitions per block.
	FlushBatchLimit int `mapstructure:"flush-batch-limit"`

	// TimelockDelta is subtracted from the timelock of forwarded payments.
	TimelockDelta int64 `mapstructure:"timelock-delta"`

	// DefaultTimelock is the timelock of payments started by this node.
	DefaultTimelock int64 `mapstructure:"default-timelock"`

	// FeeBasisPoints is the fee kept on forwarded payments, in hundredths of
	// a percent.
	FeeBasisPoints uint32 `mapstructure:"fee-bps"`

	// SendTimeout bounds the delivery of one flush message.
	SendTimeout time.Duration `mapstructure:"send-timeout"`

	// DialTimeout bounds outbound connections, handshake included.
	DialTimeout time.Duration `mapstructure:"dial-timeout"`

	// SubcontractProviderAddress is the contract referenced by dispute
	// proofs.
	SubcontractProviderAddress string `mapstructure:"provider"`

	// Key is the private key of the node.
	Key *ecdsa.PrivateKey

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:                    DefaultDataDir(),
		LogLevel:                   DefaultLogLevel,
		BindAddr:                   DefaultBindAddr,
		ServiceAddr:                DefaultServiceAddr,
		Store:                      DefaultStore,
		DatabaseDir:                DefaultDatabaseDir(),
		FlushBatchLimit:            DefaultFlushBatchLimit,
		TimelockDelta:              DefaultTimelockDelta,
		DefaultTimelock:            DefaultTimelock,
		FeeBasisPoints:             DefaultFeeBasisPoints,
		SendTimeout:                DefaultSendTimeout,
		DialTimeout:                DefaultDialTimeout,
		SubcontractProviderAddress: DefaultProvider,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// AdvertisedURL returns the websocket URL peers should dial.
func (c *Config) AdvertisedURL() string {
	if c.AdvertiseAddr != "" {
		return c.AdvertiseAddr
	}
	return "ws://" + c.BindAddr
}

// ChannelConfig derives the channel parameters.
func (c *Config) ChannelConfig() *channel.Config {
	return &channel.Config{
		FlushBatchLimit: c.FlushBatchLimit,
		SendTimeout:     c.SendTimeout,
		Provider:        c.SubcontractProviderAddress,
	}
}

// NodeConfig derives the node parameters.
func (c *Config) NodeConfig() *node.Config {
	return node.NewConfig(
		c.ChannelConfig(),
		c.TimelockDelta,
		c.DefaultTimelock,
		node.BasisPointsFee(c.FeeBasisPoints),
		c.DialTimeout,
		c.baseLogger(),
	)
}

// Logger returns a formatted logrus Entry, with prefix set to "xln".
func (c *Config) Logger() *logrus.Entry {
	return c.baseLogger().WithField("prefix", "xln")
}

func (c *Config) baseLogger() *logrus.Logger {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			rotating := &lumberjack.Logger{
				Filename:   c.LogFile,
				MaxSize:    DefaultLogMaxSize,
				MaxBackups: DefaultLogMaxBackups,
			}
			writers := lfshook.WriterMap{}
			for _, level := range logrus.AllLevels {
				writers[level] = rotating
			}
			c.logger.Hooks.Add(lfshook.NewHook(writers, &logrus.JSONFormatter{}))
		}
	}
	return c.logger
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".XLN")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "XLN")
		} else {
			return filepath.Join(home, ".xln")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
