package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var revokeOnBehalfOf string

var revokeCmd = &cobra.Command{
	Use:   "revoke <record-type> <reader-id>",
	Short: "Revoke a reader's access to a record type",
	Args:  cobra.ExactArgs(2),
	RunE:  runRevoke,
}

func init() {
	rootCmd.AddCommand(revokeCmd)
	revokeCmd.Flags().StringVar(&revokeOnBehalfOf, "on-behalf-of", "", "revoke access to writerID's records instead of this client's own, as a delegated authorizer")
}

func runRevoke(cmd *cobra.Command, args []string) error {
	recordType, readerID := args[0], args[1]

	client, err := newClient()
	if err != nil {
		return err
	}

	ctx := context.Background()
	if revokeOnBehalfOf != "" {
		err = client.RevokeOnBehalfOf(ctx, revokeOnBehalfOf, readerID, recordType)
	} else {
		err = client.Revoke(ctx, recordType, readerID)
	}
	if err != nil {
		logger.Error("revoke failed", zap.String("record_type", recordType), zap.String("reader_id", readerID), zap.Error(err))
		return err
	}

	logger.Info("revoked", zap.String("record_type", recordType), zap.String("reader_id", readerID))
	return nil
}

var removeAuthorizerCmd = &cobra.Command{
	Use:   "remove-authorizer <record-type> <authorizer-id>",
	Short: "Revoke a delegated authorizer's sharing ability",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		return client.RemoveAuthorizer(context.Background(), args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(removeAuthorizerCmd)
}
