package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <address>",
	Short: "Dump stored transactions for an address as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		txs, err := a.store.GetTransactionsByAddress(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("read store: %w", err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(txs); err != nil {
			return fmt.Errorf("encode transactions: %w", err)
		}
		return nil
	},
}
