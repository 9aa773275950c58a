package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/provenance/internal/model"
)

// Version is the release version, set at build time
var Version = "v0.1.0"

var (
	cfgFile string
	verbose bool

	logger *zap.Logger
	cfg    *model.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "provenance",
	Short: "Provenance - recursive content ingestion and evidence mapping",
	Long: `Provenance ingests a web page, PDF or social post, extracts its topics
and verifiable claims, searches for evidence behind each claim, and
recursively ingests the references it finds into a content graph.

It records where claims come from and which sources talk about them.
It does not decide whether a claim is true.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = loadConfig(newViper(cfgFile))
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("provenance " + Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.provenance/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(versionCmd)
}

// configDir returns ~/.provenance
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error finding home directory: %w", err)
	}
	return filepath.Join(home, ".provenance"), nil
}

// newViper prepares a viper instance reading file (or ~/.provenance/config.yaml)
// and PROVENANCE_* environment variables
func newViper(file string) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	if file != "" {
		v.SetConfigFile(file)
	} else if dir, err := configDir(); err == nil {
		v.AddConfigPath(dir)
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("PROVENANCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// loadConfig layers the config file and environment over the defaults.
// A missing config file is not an error.
func loadConfig(v *viper.Viper) (*model.Config, error) {
	out := model.DefaultConfig()

	// Seed every key so that AutomaticEnv can override keys absent from the file
	defaults, err := yaml.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal defaults: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}
	// Secrets are never written to YAML, so bind them explicitly
	_ = v.BindEnv("llm.api_key")
	_ = v.BindEnv("store.postgres_dsn")

	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", v.ConfigFileUsed(), err)
		}
	}

	if err := v.Unmarshal(out); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return out, nil
}
