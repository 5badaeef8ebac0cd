package main

import (
	"context"
	"fmt"

	"github.com/fathima-sithara/chatlist-service/internal/config"
	"github.com/fathima-sithara/chatlist-service/internal/events"
	"github.com/fathima-sithara/chatlist-service/internal/logger"
	"github.com/fathima-sithara/chatlist-service/internal/seed"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load users and messages from a YAML fixture into the configured store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.App.Development(), cfg.App.Name)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			f, err := seed.Load(afero.NewOsFs(), file)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := openStore(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("store init: %w", err)
			}
			defer func() { _ = store.Close(context.Background()) }()

			var pub seed.Publisher
			if len(cfg.Kafka.Brokers) > 0 {
				p := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
				defer p.Close()
				pub = p
			}

			st, err := seed.Apply(ctx, store, f, pub)
			if err != nil {
				return err
			}
			log.Info("seed applied", zap.Int("users", st.Users), zap.Int("messages", st.Messages))
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d users and %d messages\n", st.Users, st.Messages)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "fixtures.yaml", "fixture file")
	return cmd
}
