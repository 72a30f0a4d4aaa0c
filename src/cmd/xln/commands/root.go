package commands

import (
	"github.com/mosaicnetworks/xln/src/config"
	"github.com/spf13/cobra"
)

var (
	_config = config.NewDefaultConfig()
)

//RootCmd is the root command for xln
var RootCmd = &cobra.Command{
	Use:              "xln",
	Short:            "xln payment channel node",
	TraverseChildren: true,
}
