package node

import (
	"testing"
	"time"

	"github.com/mosaicnetworks/xln/src/channel"
	"github.com/mosaicnetworks/xln/src/common"
	"github.com/sirupsen/logrus"
)

// Config holds the routing and channel parameters of a Node.
type Config struct {
	Channel *channel.Config

	// TimelockDelta is subtracted from the timelock of every forwarded
	// payment.
	TimelockDelta int64 `mapstructure:"timelock-delta"`

	// DefaultTimelock is the timelock budget of payments this node starts.
	DefaultTimelock int64 `mapstructure:"default-timelock"`

	// Fee is kept by this node on every payment it forwards.
	Fee FeePolicy

	// DialTimeout bounds connection attempts, handshake included.
	DialTimeout time.Duration `mapstructure:"dial-timeout"`

	Logger *logrus.Logger
}

// NewConfig ...
func NewConfig(
	channelConf *channel.Config,
	timelockDelta int64,
	defaultTimelock int64,
	fee FeePolicy,
	dialTimeout time.Duration,
	logger *logrus.Logger) *Config {

	return &Config{
		Channel:         channelConf,
		TimelockDelta:   timelockDelta,
		DefaultTimelock: defaultTimelock,
		Fee:             fee,
		DialTimeout:     dialTimeout,
		Logger:          logger,
	}
}

// DefaultConfig ...
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		Channel:         channel.DefaultConfig(),
		TimelockDelta:   10,
		DefaultTimelock: 1000,
		Fee:             BasisPointsFee(0),
		DialTimeout:     5 * time.Second,
		Logger:          logger,
	}
}

// TestConfig ...
func TestConfig(t testing.TB) *Config {
	config := DefaultConfig()
	config.Logger = common.NewTestLogger(t, logrus.DebugLevel)
	return config
}
