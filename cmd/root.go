package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app       = "cv-screener"
	envPrefix = "CV_SCREENER"
)

var (
	cfgFile string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:          app,
	Short:        "Parse resumes, score them against job descriptions and invite the best candidates",
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return loadConfig(viper.GetViper())
	},
}

// Execute runs the command line.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ./cv-screener.yaml when present)")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	flags.BoolP("debug", "d", false, "log at debug level")
	flags.BoolP("json", "j", false, "log as JSON")

	for _, name := range []string{"debug", "json"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

// loadConfig layers defaults, the dotenv file, CV_SCREENER_* variables and
// the config file into v.
func loadConfig(v *viper.Viper) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", envFile, err)
	}

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("ai.gemini.api-key", "GEMINI_API_KEY"); err != nil {
		return fmt.Errorf("binding GEMINI_API_KEY: %w", err)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(app)
		v.SetConfigType("yaml")
	}

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		return nil
	case cfgFile == "" && errors.As(err, &notFound):
		// defaults and the environment are enough
		return nil
	default:
		return fmt.Errorf("reading config: %w", err)
	}
}
