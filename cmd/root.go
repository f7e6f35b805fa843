/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/allbin/serialflash/internal/config"
	"github.com/allbin/serialflash/internal/logger"
	"github.com/allbin/serialflash/internal/tracer"
)

var cfgFile string

// app is the state shared by every command once the root pre-run has loaded
// the configuration
var app struct {
	cfg           *config.Config
	log           *slog.Logger
	closeLog      func() error
	closeTrace    func() error
	shutdownTrace func(context.Context) error
}

// altScreen marks commands that take over the terminal
const altScreen = "alt-screen"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "serialflash",
	Short: "Serial monitor and firmware flasher for ESP devices",
	Long: `serialflash keeps one serial link to a microcontroller and switches it
between a live monitor and an exclusive flashing session.

The monitor streams device output while you send lines, change the baud rate
or flash a firmware version from a catalog. Flashing suspends the monitor,
hands the port to esptool, and afterwards reopens the port at the previous
baud rate, double resets the chip and resumes monitoring.

Settings come from flags, SERIALFLASH_* environment variables and
$HOME/.serialflash.yaml (or --config).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return teardown(cmd.Context())
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.serialflash.yaml)")
	pf.String("catalog", ".", "Firmware catalog root: a directory or an http(s) URL")
	pf.String("esptool", "esptool.py", "esptool executable")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("log-format", "text", "Log format: text, json")
	pf.String("log-output", "stderr", "Log output: stderr, stdout or a file path")
	pf.Bool("trace", false, "Export trace spans to stdout (to the log file under monitor)")

	cobra.CheckErr(viper.BindPFlag("catalog", pf.Lookup("catalog")))
	cobra.CheckErr(viper.BindPFlag("esptool", pf.Lookup("esptool")))
	cobra.CheckErr(viper.BindPFlag("log.level", pf.Lookup("log-level")))
	cobra.CheckErr(viper.BindPFlag("log.format", pf.Lookup("log-format")))
	cobra.CheckErr(viper.BindPFlag("log.output", pf.Lookup("log-output")))
	cobra.CheckErr(viper.BindPFlag("trace.enabled", pf.Lookup("trace")))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	v := viper.GetViper()
	config.SetDefaults(v)
	config.BindEnv(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		v.AddConfigPath(home)
		v.SetConfigType("yaml")
		v.SetConfigName(".serialflash")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
			os.Exit(1)
		}
	}
}

// localKeys maps command-local flags onto config keys. They are bound per
// invocation since several commands define the same flag.
var localKeys = map[string]string{
	"baud":       "baud",
	"flash-baud": "flash_baud",
	"erase":      "erase",
	"device":     "device",
	"firmware":   "firmware",
	"version":    "version",
}

func setup(cmd *cobra.Command) error {
	for name, key := range localKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := viper.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	log, closeLog, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	traceCfg := cfg.Trace
	var traceOpts []tracer.Option
	closeTrace := func() error { return nil }

	enabled, file := traceRoute(cmd.Annotations[altScreen] == "true", cfg)
	traceCfg.Enabled = enabled
	if file != "" {
		w, c, err := logger.OpenOutput(file)
		if err != nil {
			_ = closeLog()
			return fmt.Errorf("open trace output: %w", err)
		}
		traceOpts = append(traceOpts, tracer.WithWriter(w))
		closeTrace = c
	}

	shutdown, err := tracer.Setup(cmd.Context(), traceCfg, traceOpts...)
	if err != nil {
		_ = closeTrace()
		_ = closeLog()
		return err
	}

	app.cfg = cfg
	app.log = log
	app.closeLog = closeLog
	app.closeTrace = closeTrace
	app.shutdownTrace = shutdown
	if f := viper.ConfigFileUsed(); f != "" {
		log.Debug("config loaded", "file", f)
	}
	return nil
}

// traceRoute decides where spans go. Commands owning the terminal send them to
// the log file, or drop them when logs go to a terminal as well.
func traceRoute(ownsTerminal bool, cfg *config.Config) (enabled bool, file string) {
	if !cfg.Trace.Enabled {
		return false, ""
	}
	if !ownsTerminal {
		return true, ""
	}
	if logger.IsTerminal(cfg.Log.Output) {
		return false, ""
	}
	return true, cfg.Log.Output
}

func teardown(ctx context.Context) error {
	var err error
	if app.shutdownTrace != nil {
		err = app.shutdownTrace(ctx)
	}
	if app.closeTrace != nil {
		if cerr := app.closeTrace(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if app.closeLog != nil {
		if cerr := app.closeLog(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
