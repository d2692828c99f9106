// Package cmd implements the content-crawler command line.
package cmd

import (
	"context"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/bootstrap"
)

const (
	keyConfig = "config"
	keyDebug  = "debug"
)

// Execute runs the root command. version is stamped at build time.
func Execute(ctx context.Context, version string) error {
	// Load .env early so viper's env bindings see it.
	_ = godotenv.Load()
	return NewRootCommand(version).ExecuteContext(ctx)
}

// NewRootCommand builds the command tree. Running it without a subcommand
// serves the API.
func NewRootCommand(version string) *cobra.Command {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	_ = v.BindEnv(keyConfig, "CONFIG_PATH")
	_ = v.BindEnv(keyDebug, "APP_DEBUG")

	options := func() bootstrap.Options {
		return bootstrap.Options{
			ConfigPath: v.GetString(keyConfig),
			Debug:      v.GetBool(keyDebug),
			Version:    version,
		}
	}

	root := &cobra.Command{
		Use:           "content-crawler",
		Short:         "Crawls AWS documentation, blogs and videos and scores their quality",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return bootstrap.Start(cmd.Context(), options())
		},
	}

	root.PersistentFlags().String(keyConfig, "", "config file (default is $CONFIG_PATH or ./config.yml)")
	root.PersistentFlags().Bool(keyDebug, false, "enable debug logging")
	_ = v.BindPFlag(keyConfig, root.PersistentFlags().Lookup(keyConfig))
	_ = v.BindPFlag(keyDebug, root.PersistentFlags().Lookup(keyDebug))

	root.AddCommand(
		serveCommand(options),
		runCommand(options),
		crawlCommand(options),
		sourcesCommand(options),
		migrateCommand(options),
		versionCommand(version),
	)
	return root
}

func serveCommand(options func() bootstrap.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the daily schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return bootstrap.Start(cmd.Context(), options())
		},
	}
}

func versionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("content-crawler version %s\n", version)
		},
	}
}
