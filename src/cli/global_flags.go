package cli

import (
	"context"

	"github.com/spf13/cobra"

	"shotty/src/config"
	"shotty/src/fleet"
	"shotty/src/logging"
	"shotty/src/safety"
	"shotty/src/target"
	"shotty/src/version"
)

// addGlobalFlags adds persistent session, logging and safety flags to the root command.
func addGlobalFlags(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.String("config", "", "Config file (default $XDG_CONFIG_HOME/shotty/config.yaml)")
	pf.String("provider", "", "Provider URI: ec2[:region] or incus[:socket] (default ec2)")
	pf.String("profile", "", "AWS profile for shotty to use (default shotty)")
	pf.String("region", "", "AWS region, overriding the profile and provider URI")
	pf.String("log-level", "", "Log level: debug|info|warn|error (default $LOG_LEVEL or warn)")
	pf.String("log-format", "", "Log format: text|json")
	pf.String("metrics-file", "", "Write Prometheus metrics to this textfile after a snapshot run")
	pf.Bool("dry-run", false, "Show planned actions without making changes")
}

// globals is the merged view of the config file and the global flags.
type globals struct {
	cfg    *config.Config
	target target.Target
	safety safety.Options
}

// loadGlobals reads the config file and lets explicitly set flags override it.
func loadGlobals(cmd *cobra.Command) (globals, error) {
	pf := cmd.Root().PersistentFlags()
	path, _ := pf.GetString("config")
	cfg, err := config.LoadOptional(path)
	if err != nil {
		return globals{}, err
	}
	override := func(name string, dst *string) {
		if pf.Changed(name) {
			*dst, _ = pf.GetString(name)
		}
	}
	override("provider", &cfg.Provider)
	override("profile", &cfg.Profile)
	override("log-level", &cfg.Logging.Level)
	override("log-format", &cfg.Logging.Format)
	override("metrics-file", &cfg.MetricsFile)

	tgt, err := target.Parse(cfg.Provider)
	if err != nil {
		return globals{}, err
	}
	if tgt.Value != "" && tgt.Scheme == "ec2" {
		cfg.Region = tgt.Value
	}
	override("region", &cfg.Region)

	dry, _ := pf.GetBool("dry-run")
	return globals{cfg: cfg, target: tgt, safety: safety.Options{DryRun: dry}}, nil
}

func setupLogging(cmd *cobra.Command) error {
	g, err := loadGlobals(cmd)
	if err != nil {
		return err
	}
	logging.SetDefault("shotty", version.Version, g.cfg.Logging.Level, g.cfg.Logging.Format)
	return nil
}

// connectFleet builds the provider client. Tests replace it.
var connectFleet = func(ctx context.Context, g globals) (fleet.Fleet, error) {
	switch g.target.Scheme {
	case "incus":
		return fleet.ConnectIncus(fleet.IncusOptions{
			Socket:       g.target.Value,
			Project:      g.cfg.IncusProject,
			WaitTimeout:  g.cfg.WaitTimeout,
			PollInterval: g.cfg.PollInterval,
		})
	default:
		return fleet.ConnectEC2(ctx, fleet.EC2Options{
			Profile:      g.cfg.Profile,
			Region:       g.cfg.Region,
			WaitTimeout:  g.cfg.WaitTimeout,
			PollInterval: g.cfg.PollInterval,
		})
	}
}

// SetConnectForTest replaces the provider constructor and returns a reset func.
func SetConnectForTest(fn func(context.Context) (fleet.Fleet, error)) func() {
	prev := connectFleet
	connectFleet = func(ctx context.Context, _ globals) (fleet.Fleet, error) { return fn(ctx) }
	return func() { connectFleet = prev }
}

// openFleet loads globals and connects to the configured provider.
func openFleet(cmd *cobra.Command) (fleet.Fleet, globals, error) {
	g, err := loadGlobals(cmd)
	if err != nil {
		return nil, globals{}, err
	}
	f, err := connectFleet(cmdContext(cmd), g)
	if err != nil {
		return nil, globals{}, err
	}
	return f, g, nil
}
