package wiring

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/reveriehq/reverie/pkg/config"
	"github.com/reveriehq/reverie/pkg/logger"
)

// Runtime holds the per-command runtime resolved from the global flags.
type Runtime struct {
	Viper     *viper.Viper
	ConfigDir string
	Logger    *zap.Logger
}

// Init resolves the global --debug and --config-dir flags into a logger and
// a viper instance layered over the config file and environment.
func Init(cmd *cobra.Command) (*Runtime, error) {
	debug, err := cmd.Flags().GetBool("debug")
	if err != nil {
		return nil, fmt.Errorf("could not get debug flag: %v", err)
	}
	configDir, err := cmd.Flags().GetString("config-dir")
	if err != nil {
		return nil, fmt.Errorf("could not get config-dir flag: %v", err)
	}

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, err
	}

	return &Runtime{
		Viper:     v,
		ConfigDir: configDir,
		Logger:    logger.NewLogger(debug),
	}, nil
}
