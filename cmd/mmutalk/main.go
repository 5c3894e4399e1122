package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kirillkom/campus-assistant/internal/bootstrap"
	"github.com/kirillkom/campus-assistant/internal/config"
	"github.com/kirillkom/campus-assistant/internal/observability/logging"
)

// cli holds state shared by every subcommand.
type cli struct {
	v   *viper.Viper
	cfg config.Config
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:           "mmutalk",
		Short:         "뮤톡🐬: question answering over the Mokpo National Maritime University portal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFrom(c.v)
			if err != nil {
				return err
			}
			c.cfg = cfg
			slog.SetDefault(logging.NewWithWriter(os.Stderr, "mmutalk", cfg.LogLevel, cfg.LogFormat))
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "YAML config file (CONFIG_FILE)")
	flags.String("data-dir", "", "corpus directory of *.txt files (DATA_DIR)")
	flags.String("index-dir", "", "directory holding vector_index (INDEX_DIR)")
	flags.String("index-backend", "", "local or qdrant (INDEX_BACKEND)")
	flags.String("log-level", "", "debug, info, warn or error (LOG_LEVEL)")
	for key, name := range map[string]string{
		"config_file":   "config",
		"data_dir":      "data-dir",
		"index_dir":     "index-dir",
		"index_backend": "index-backend",
		"log_level":     "log-level",
	} {
		if err := c.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	root.AddCommand(
		c.newChatCmd(),
		c.newAskCmd(),
		c.newIndexCmd(),
		c.newFilesCmd(),
		c.newMCPCmd(),
	)
	return root
}

// open wires the application and makes sure an index is ready.
func (c *cli) open(ctx context.Context, opts ...bootstrap.Option) (*bootstrap.App, error) {
	app, err := bootstrap.New(ctx, c.cfg, append([]bootstrap.Option{bootstrap.WithoutQueue()}, opts...)...)
	if err != nil {
		return nil, err
	}
	if _, err := app.Indexer.LoadOrBuild(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func discardLogs() {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}
