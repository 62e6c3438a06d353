package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var readCmd = &cobra.Command{
	Use:   "read <record-id>",
	Short: "Read and decrypt a record",
	Args:  cobra.ExactArgs(1),
	RunE:  runRead,
}

func init() {
	rootCmd.AddCommand(readCmd)
}

func runRead(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	rec, err := client.Read(context.Background(), args[0])
	if err != nil {
		logger.Error("read failed", zap.String("record_id", args[0]), zap.Error(err))
		return err
	}

	return json.NewEncoder(os.Stdout).Encode(rec)
}
