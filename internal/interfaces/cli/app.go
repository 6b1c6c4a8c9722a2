package cli

import (
	"fmt"
	"os"

	"github.com/dealdeskhq/dealdesk/internal/config"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
)

// bootstrap loads configuration and builds the logger every subcommand
// starts from.
func bootstrap(opts *RootOptions) (*config.Config, logging.Logger, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		// Environment variables alone can carry a full configuration in
		// containerized deployments.
		fmt.Fprintf(os.Stderr, "warning: %v, falling back to environment\n", err)
		cfg, err = config.LoadFromEnv()
		if err != nil {
			return nil, nil, err
		}
	}

	logger, err := logging.NewLogger(logging.LogConfig{
		Level:            cfg.Log.Level,
		Format:           cfg.Log.Format,
		OutputPaths:      cfg.Log.OutputPaths,
		ErrorOutputPaths: cfg.Log.ErrorOutputPaths,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
