package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ms-payments/internal/completion"
	"ms-payments/internal/kafka"
	"ms-payments/internal/store"
)

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Evaluate every pending order once and complete the eligible ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			db, err := e.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			var publisher kafka.Publisher = kafka.LogPublisher{Log: e.log}
			if e.cfg.Kafka.Enabled {
				producer := kafka.NewProducer(e.cfg.Kafka.Brokers, e.log)
				defer producer.Close()
				publisher = producer
			}

			r := completion.NewReconciler(store.New(db), publisher, e.cfg.Kafka.Topics.OrderCompleted, e.cfg.Completion, e.log)
			n, err := r.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "completed %d order(s)\n", n)
			return nil
		},
	}
}
