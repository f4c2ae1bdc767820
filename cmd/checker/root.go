package main

import (
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/shaymcgreal/datatransformer/app/config"
)

// commandContext carries what every subcommand shares: the resolved
// settings and a logger built once flags are parsed.
type commandContext struct {
	v      *viper.Viper
	logger *zap.Logger
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{v: viper.New()}
	ctx.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	ctx.v.AutomaticEnv()
	ctx.v.SetDefault("meilisearch.url", "http://localhost:7700")
	ctx.v.SetDefault("meilisearch.index", "dq_rows")

	rootCmd := &cobra.Command{
		Use:           "checker",
		Short:         "CRM data quality and duplicate checker",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ctx.logger = newLogger(cmd.ErrOrStderr(), ctx.v.GetBool("debug"))
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if ctx.logger != nil {
				_ = ctx.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("profile", config.DefaultProfile, "Built-in linkage profile ("+strings.Join(config.Profiles(), ", ")+")")
	flags.StringP("config", "c", "", "Linkage configuration YAML file (overrides --profile)")
	flags.Bool("debug", false, "Log per-field failure reasons")
	_ = ctx.v.BindPFlag("linkage.profile", flags.Lookup("profile"))
	_ = ctx.v.BindPFlag("linkage.config", flags.Lookup("config"))
	_ = ctx.v.BindPFlag("debug", flags.Lookup("debug"))

	rootCmd.AddCommand(newCheckCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))
	return rootCmd
}

// linkageConfig returns the configuration selected by --config or
// --profile.
func (c *commandContext) linkageConfig() (*config.LinkageCfg, error) {
	if path := c.v.GetString("linkage.config"); path != "" {
		return config.Resolve(path)
	}
	return config.LoadProfile(c.v.GetString("linkage.profile"))
}

// newLogger writes human-readable lines to w; the progress bar and the
// summary table share the terminal with it.
func newLogger(w io.Writer, debug bool) *zap.Logger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), level)
	return zap.New(core)
}
