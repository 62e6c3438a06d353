package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	filePutRecordType string
	filePutPlainJSON  string
)

var filePutCmd = &cobra.Command{
	Use:   "file-put <local-path>",
	Short: "Encrypt and upload a file as a file-backed record",
	Args:  cobra.ExactArgs(1),
	RunE:  runFilePut,
}

func init() {
	rootCmd.AddCommand(filePutCmd)
	filePutCmd.Flags().StringVarP(&filePutRecordType, "type", "t", "", "record type (required)")
	filePutCmd.Flags().StringVarP(&filePutPlainJSON, "plain", "p", "", "plaintext metadata as a JSON object of strings")
	filePutCmd.MarkFlagRequired("type")
}

func runFilePut(cmd *cobra.Command, args []string) error {
	var plain map[string]string
	if filePutPlainJSON != "" {
		if err := json.Unmarshal([]byte(filePutPlainJSON), &plain); err != nil {
			return err
		}
	}

	client, err := newClient()
	if err != nil {
		return err
	}

	rec, err := client.WriteFile(context.Background(), filePutRecordType, args[0], plain)
	if err != nil {
		logger.Error("file-put failed", zap.String("path", args[0]), zap.Error(err))
		return err
	}

	logger.Info("uploaded file", zap.String("record_id", rec.Meta.RecordID))
	return json.NewEncoder(os.Stdout).Encode(rec)
}

var fileGetCmd = &cobra.Command{
	Use:   "file-get <record-id> <local-path>",
	Short: "Download and decrypt a file-backed record",
	Args:  cobra.ExactArgs(2),
	RunE:  runFileGet,
}

func init() {
	rootCmd.AddCommand(fileGetCmd)
}

func runFileGet(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	if err := client.ReadFile(context.Background(), args[0], args[1]); err != nil {
		logger.Error("file-get failed", zap.String("record_id", args[0]), zap.Error(err))
		return err
	}

	logger.Info("downloaded file", zap.String("record_id", args[0]), zap.String("path", args[1]))
	return nil
}
