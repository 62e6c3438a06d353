package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	writeRecordType string
	writeDataJSON   string
	writePlainJSON  string
)

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Encrypt and write a record",
	Long: `Write encrypts a JSON object of string fields under a record of
the given type and stores it.`,
	Example: `  e3db write --type contact --data '{"name":"Ada"}'
  e3db write --type contact --data '{"name":"Ada"}' --plain '{"source":"import"}'`,
	RunE: runWrite,
}

func init() {
	rootCmd.AddCommand(writeCmd)

	writeCmd.Flags().StringVarP(&writeRecordType, "type", "t", "", "record type (required)")
	writeCmd.Flags().StringVarP(&writeDataJSON, "data", "d", "", "record data as a JSON object of strings (required)")
	writeCmd.Flags().StringVarP(&writePlainJSON, "plain", "p", "", "plaintext metadata as a JSON object of strings")
	writeCmd.MarkFlagRequired("type")
	writeCmd.MarkFlagRequired("data")
}

func runWrite(cmd *cobra.Command, args []string) error {
	var data map[string]string
	if err := json.Unmarshal([]byte(writeDataJSON), &data); err != nil {
		return fmt.Errorf("parse --data: %w", err)
	}

	var plain map[string]string
	if writePlainJSON != "" {
		if err := json.Unmarshal([]byte(writePlainJSON), &plain); err != nil {
			return fmt.Errorf("parse --plain: %w", err)
		}
	}

	client, err := newClient()
	if err != nil {
		return err
	}

	rec, err := client.Write(context.Background(), writeRecordType, data, plain)
	if err != nil {
		logger.Error("write failed", zap.Error(err))
		return err
	}

	logger.Info("wrote record", zap.String("record_id", rec.Meta.RecordID))
	return json.NewEncoder(os.Stdout).Encode(rec)
}
