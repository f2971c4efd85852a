package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ms-payments/internal/amount"
	"ms-payments/internal/store"
)

type statementLine struct {
	ID        string `json:"id"`
	Account   string `json:"account"`
	Amount    string `json:"amount"`
	State     string `json:"state"`
	CreatedAt string `json:"created_at"`
	OrderID   string `json:"order_id,omitempty"`
}

func statementCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "statement",
		Short: "List Payme transactions created in a time range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			start, err := time.Parse(time.RFC3339, from)
			if err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
			end := time.Now().UTC()
			if to != "" {
				if end, err = time.Parse(time.RFC3339, to); err != nil {
					return fmt.Errorf("invalid --to: %w", err)
				}
			}

			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			db, err := e.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			txs, err := store.New(db).ListTransactionsCreatedBetween(cmd.Context(), start.UTC(), end.UTC())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, tx := range txs {
				line := statementLine{
					ID:        tx.ID,
					Account:   tx.AccountRef,
					Amount:    amount.ToDecimalString(tx.Amount),
					State:     tx.State.String(),
					CreatedAt: tx.CreatedAt.UTC().Format(time.RFC3339),
					OrderID:   tx.OrderID,
				}
				if err := enc.Encode(line); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().String("from", "", "start of the range, RFC 3339 (required)")
	cmd.Flags().String("to", "", "end of the range, RFC 3339 (default now)")
	cmd.MarkFlagRequired("from")
	return cmd
}
