package commands

import (
	"github.com/mosaicnetworks/xln/src/xln"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts an xln node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runXLN,
	}
	AddConfigFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runXLN(cmd *cobra.Command, args []string) error {
	engine := xln.NewXLN(_config)

	if err := engine.Init(); err != nil {
		_config.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	engine.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddConfigFlags adds the node configuration flags to a command
func AddConfigFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Also write logs to this file, rotated by size")

	// Network
	cmd.Flags().StringP("listen", "l", _config.BindAddr, "Listen IP:Port for the websocket listener")
	cmd.Flags().StringP("advertise", "a", _config.AdvertiseAddr, "Websocket URL announced to peers")
	cmd.Flags().Duration("dial-timeout", _config.DialTimeout, "Timeout for outbound connections")
	cmd.Flags().Duration("send-timeout", _config.SendTimeout, "Timeout for delivering a flush")

	// Service
	cmd.Flags().Bool("no-service", _config.NoService, "Disable HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.DatabaseDir, "Dabatabase directory")

	// Channels and routing
	cmd.Flags().Int("flush-batch-limit", _config.FlushBatchLimit, "Max number of transitions per block")
	cmd.Flags().Int64("timelock-delta", _config.TimelockDelta, "Timelock subtracted at every hop")
	cmd.Flags().Int64("default-timelock", _config.DefaultTimelock, "Timelock of payments started by this node")
	cmd.Flags().Uint32("fee-bps", _config.FeeBasisPoints, "Fee on forwarded payments, in basis points")
	cmd.Flags().String("provider", _config.SubcontractProviderAddress, "Subcontract provider address used in dispute proofs")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	logFields := logrus.Fields{
		"xln.DataDir":         _config.DataDir,
		"xln.BindAddr":        _config.BindAddr,
		"xln.AdvertiseAddr":   _config.AdvertiseAddr,
		"xln.ServiceAddr":     _config.ServiceAddr,
		"xln.NoService":       _config.NoService,
		"xln.Store":           _config.Store,
		"xln.LogLevel":        _config.LogLevel,
		"xln.LogFile":         _config.LogFile,
		"xln.FlushBatchLimit": _config.FlushBatchLimit,
		"xln.TimelockDelta":   _config.TimelockDelta,
		"xln.DefaultTimelock": _config.DefaultTimelock,
		"xln.FeeBasisPoints":  _config.FeeBasisPoints,
		"xln.SendTimeout":     _config.SendTimeout,
		"xln.DialTimeout":     _config.DialTimeout,
	}

	if _config.Store {
		logFields["xln.DatabaseDir"] = _config.DatabaseDir
	}

	_config.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/xln.toml (.json, .yaml also work)
	viper.SetConfigName("xln")          // name of config file (without extension)
	viper.AddConfigPath(_config.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
