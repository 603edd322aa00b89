// Package cli holds the mailtrust cobra commands.
package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/raysh454/mailtrust/internal/app"
	"github.com/raysh454/mailtrust/internal/logging"
	"github.com/raysh454/mailtrust/internal/present"
)

func NewRoot(version string) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "mailtrust",
		Short:         "mailtrust: email trust evaluation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = version
	cmd.SetVersionTemplate("mailtrust {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", getenvDefault("MAILTRUST_CONFIG", ""), "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.channel, "channel", "", "Scan channel: local|http|ws (default from config)")
	cmd.PersistentFlags().StringVar(&opts.server, "server", "", "Aggregating server base URL for the http and ws channels")
	cmd.PersistentFlags().StringVar(&opts.renderer, "renderer", "", "Body renderer: static|browser (default from config)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	cmd.PersistentFlags().BoolVar(&opts.json, "json", false, "Print verdicts as JSON lines")

	cmd.AddCommand(newScanCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))
	cmd.AddCommand(newServeCmd(opts))

	return cmd
}

type rootOptions struct {
	configPath string
	channel    string
	server     string
	renderer   string
	logLevel   string
	json       bool
}

// config loads the file named by --config and applies flag overrides.
func (o *rootOptions) config() (*app.Config, error) {
	cfg, err := app.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.channel != "" {
		cfg.Channel.Kind = o.channel
	}
	if o.server != "" {
		cfg.Channel.ServerURL = o.server
	}
	if o.renderer != "" {
		cfg.Snapshot.Renderer = o.renderer
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// application builds an Application logging to the command's stderr.
func (o *rootOptions) application(cmd *cobra.Command, cfg *app.Config) (*app.Application, error) {
	logger := logging.NewLogger(cmd.ErrOrStderr(), "mailtrust", logging.ParseLevel(cfg.LogLevel))
	return app.NewApplication(cfg, logger)
}

// presenter returns the text or JSON presenter writing to w.
func (o *rootOptions) presenter(w io.Writer) func(label string) app.Presenter {
	if o.json {
		p := present.NewJSON(w)
		return func(string) app.Presenter { return p }
	}
	t := present.NewText(w)
	return func(label string) app.Presenter {
		if label == "" {
			return t
		}
		return t.Labeled(label)
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
