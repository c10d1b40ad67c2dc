// Command oven-heater drives the toy oven's LED heating element from the
// door switch: closing the door runs one colour cycle, opening it blanks the
// strip.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sweeney/oven-heater/internal/config"
	"github.com/sweeney/oven-heater/internal/gpio"
	"github.com/sweeney/oven-heater/internal/ledstrip"
	"github.com/sweeney/oven-heater/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "oven-heater",
		Short:         "Animate the oven heater LEDs while the door is closed",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runE,
	}
	config.BindFlags(root.PersistentFlags())

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the controller (default)",
		Args:  cobra.NoArgs,
		RunE:  runE,
	})
	root.AddCommand(newStateCmd())
	return root
}

func newStateCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print the current door state and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(cmd.Flags())
			if err != nil {
				return err
			}
			line, err := gpio.NewRealLine(cfg.Chip, cfg.Line)
			if err != nil {
				return fmt.Errorf("init gpio: %w", err)
			}
			defer line.Close()
			return printState(cmd.OutOrStdout(), line, cfg, clockwork.NewRealClock(), log, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status JSON instead of one line")
	return cmd
}

// setup loads the config and builds the logger.
func setup(fs *pflag.FlagSet) (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(fs)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	log, err := logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	return cfg, log, nil
}

func runE(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(cmd.Flags())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path, explicit := config.Path(cmd.Flags())
	return run(ctx, cfg, reloadSource(path, explicit, cmd.Flags()), log)
}

// reloadSource returns the file to watch for live changes and its loader.
// Without a config file there is nothing to watch.
func reloadSource(path string, explicit bool, fs *pflag.FlagSet) *reloader {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return &reloader{
		path: path,
		load: func(p string) (config.Config, error) { return config.LoadFile(p, explicit, fs) },
	}
}

func run(ctx context.Context, cfg config.Config, rl *reloader, log zerolog.Logger) error {
	line, err := gpio.NewRealLine(cfg.Chip, cfg.Line)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer line.Close()

	strip, err := ledstrip.OpenSPI(cfg.SPIPort, int64(cfg.SPIHz))
	if err != nil {
		return fmt.Errorf("init spi: %w", err)
	}
	defer func() {
		// Close writes a blank frame before releasing the port.
		if err := strip.Close(); err != nil {
			log.Warn().Err(err).Msg("blank strip on exit")
		}
	}()

	clock := clockwork.NewRealClock()
	ticker := clock.NewTicker(cfg.Heartbeat())
	defer ticker.Stop()

	a := &app{
		cfg:    cfg,
		log:    log,
		clock:  clock,
		reload: rl,
		notify: sdNotify,
	}
	return a.serve(ctx, line, strip, ticker.Chan())
}
