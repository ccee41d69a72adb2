package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chainhist/chainhist/internal/history"
)

var (
	flagNetwork   string
	flagPage      int
	flagPageSize  int
	flagNoTokens  bool
	flagAscending bool
)

func init() {
	historyCmd.Flags().StringVar(&flagNetwork, "network", "", "Network key (required)")
	historyCmd.Flags().IntVar(&flagPage, "page", 1, "Page number (1-based)")
	historyCmd.Flags().IntVar(&flagPageSize, "page-size", 10, "Items per page")
	historyCmd.Flags().BoolVar(&flagNoTokens, "no-tokens", false, "Skip token transfers")
	historyCmd.Flags().BoolVar(&flagAscending, "asc", false, "Sort oldest first")
	_ = historyCmd.MarkFlagRequired("network")
}

var historyCmd = &cobra.Command{
	Use:   "history <address>",
	Short: "Fetch one page of a wallet's transaction history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		page, err := a.service.GetTransactionHistory(cmd.Context(), args[0], flagNetwork, history.Options{
			Page:                  flagPage,
			PageSize:              flagPageSize,
			IncludeTokenTransfers: !flagNoTokens,
			Ascending:             flagAscending,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(page); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		return nil
	},
}
