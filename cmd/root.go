package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/usibridge/internal/config"
	"github.com/zjrosen/usibridge/internal/engine"
	"github.com/zjrosen/usibridge/internal/log"
	"github.com/zjrosen/usibridge/internal/presentation"
	"github.com/zjrosen/usibridge/internal/registry"
	"github.com/zjrosen/usibridge/internal/tracing"
)

// envPrefix prefixes environment overrides, e.g. USIBRIDGE_ENGINES_FILE.
const envPrefix = "USIBRIDGE"

var version = "dev"

// app carries the state shared by every command of one invocation.
type app struct {
	v        *viper.Viper
	cfgFile  string
	envFile  string
	debug    bool
	json     bool
	cfg      config.Config
	provider *tracing.Provider
	closeLog func()
}

func newApp() *app {
	return &app{v: viper.New()}
}

func (a *app) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "usibridge",
		Short: "Drive USI shogi engines from the command line",
		Long: `usibridge launches USI shogi engines as child processes, runs searches,
ponders and mate searches against them, and manages the engine definitions
file they are launched from.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return a.setup() },
	}

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "",
		"config file (default: ~/.config/usibridge/config.yaml)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env",
		"dotenv file loaded before reading the config")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false,
		"write a debug log (also enabled by USIBRIDGE_DEBUG)")
	root.PersistentFlags().BoolVar(&a.json, "json", false,
		"print JSON instead of text")
	root.PersistentFlags().String("engines", "",
		"engine definitions file (default: ~/.config/usibridge/engines.yaml)")
	_ = a.v.BindPFlag("engines_file", root.PersistentFlags().Lookup("engines"))

	root.AddCommand(
		a.newInfoCmd(),
		a.newSearchCmd(),
		a.newMateCmd(),
		a.newEnginesCmd(),
		a.newConfigCmd(),
	)
	return root
}

// setup loads .env, the config file and environment overrides, then starts
// logging and tracing.
func (a *app) setup() error {
	if err := a.loadEnvFile(); err != nil {
		return err
	}

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()
	config.SetDefaults(a.v)

	if err := a.readConfigFile(); err != nil {
		return err
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	if a.debug || os.Getenv(envPrefix+"_DEBUG") != "" {
		cleanup, err := log.Init(cfg.Log.Path)
		if err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}
		a.closeLog = cleanup
		if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
			log.SetMinLevel(level)
		}
		log.Info(log.CatConfig, "usibridge starting",
			"version", version,
			"config", a.v.ConfigFileUsed(),
			"engines", cfg.EnginesFile)
	}

	provider, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	a.provider = provider
	return nil
}

func (a *app) loadEnvFile() error {
	if a.envFile == "" {
		return nil
	}
	if _, err := os.Stat(a.envFile); err != nil {
		if errors.Is(err, os.ErrNotExist) && a.envFile == ".env" {
			return nil
		}
		return fmt.Errorf("reading env file: %w", err)
	}
	if err := godotenv.Load(a.envFile); err != nil {
		return fmt.Errorf("loading env file %s: %w", a.envFile, err)
	}
	return nil
}

// readConfigFile reads --config, or the default config if one exists. A
// missing default config is not an error.
func (a *app) readConfigFile() error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", a.cfgFile, err)
		}
		return nil
	}

	dir := config.DefaultDir()
	if dir == "" {
		return nil
	}
	a.v.AddConfigPath(dir)
	a.v.SetConfigName("config")
	a.v.SetConfigType("yaml")
	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config in %s: %w", dir, err)
	}
	return nil
}

func (a *app) teardown() {
	if a.provider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.provider.Shutdown(ctx); err != nil {
			log.ErrorErr(log.CatTrace, "Tracing shutdown failed", err)
		}
		cancel()
	}
	if a.closeLog != nil {
		a.closeLog()
	}
}

func (a *app) newRegistry() *registry.Registry {
	return registry.New(registry.Config{
		LaunchTimeout: a.cfg.Launch.Timeout(),
		QuitGrace:     a.cfg.Launch.QuitGrace(),
		StderrLines:   a.cfg.Launch.StderrLines,
		WorkDir:       a.cfg.Launch.WorkDir,
		Env:           a.cfg.Launch.Env,
		InfoInterval:  a.cfg.Session.InfoInterval(),
		EventBuffer:   a.cfg.Session.EventBuffer,
		EngineInfoTTL: a.cfg.Cache.EngineInfoTTL,
		Tracer:        a.provider.Tracer(),
	})
}

func (a *app) formatter(w io.Writer) *presentation.Formatter {
	if a.json {
		return presentation.NewJSONFormatter(w)
	}
	return presentation.NewFormatter(w)
}

// loadEngines reads the engine definitions file.
func (a *app) loadEngines() (*engine.Engines, error) {
	data, err := os.ReadFile(a.cfg.EnginesFile)
	if err != nil {
		return nil, fmt.Errorf("reading engines file: %w", err)
	}
	engines, err := engine.ParseEngines(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.cfg.EnginesFile, err)
	}
	return engines, nil
}

// findEngine resolves ref as a URI or display name in the engines file.
func (a *app) findEngine(ref string) (*engine.Descriptor, error) {
	engines, err := a.loadEngines()
	if err != nil {
		return nil, err
	}
	d, ok := engines.Find(ref)
	if !ok {
		return nil, fmt.Errorf("engine %q not found in %s", ref, filepath.Base(a.cfg.EnginesFile))
	}
	return d, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := newApp()
	defer a.teardown()

	root := a.newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

// Execute runs the root command
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
}
