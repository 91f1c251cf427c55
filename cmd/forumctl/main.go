package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forumly/forumcore/internal/app/apiapp"
	"github.com/forumly/forumcore/internal/config"
	"github.com/forumly/forumcore/internal/infra/logger"
)

var Version = "dev"

type runtime struct {
	cfgPath  string
	services apiapp.Services
	log      *zap.Logger
}

func main() {
	rt := &runtime{}

	rootCmd := &cobra.Command{
		Use:           "forumctl",
		Short:         "Operate membership reconciliation and the comment report queue",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.init(cmd.Context())
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			rt.close()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&rt.cfgPath, "config", "c", "", "config file (default $APP_CONFIG or configs/config.yaml)")

	rootCmd.AddCommand(reconcileCmd(rt))
	rootCmd.AddCommand(reportedCmd(rt))
	rootCmd.AddCommand(tokenCmd(rt))

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (rt *runtime) init(ctx context.Context) error {
	_ = godotenv.Load()

	path := rt.cfgPath
	if path == "" {
		path = os.Getenv("APP_CONFIG")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	services, err := apiapp.BuildServices(ctx, cfg, log)
	if err != nil {
		return err
	}

	rt.services = services
	rt.log = log
	return nil
}

func (rt *runtime) close() {
	if rt.services.Postgres != nil {
		rt.services.Postgres.Close()
	}
	if rt.services.Redis != nil {
		_ = rt.services.Redis.Close()
	}
	if rt.log != nil {
		_ = rt.log.Sync()
	}
}
