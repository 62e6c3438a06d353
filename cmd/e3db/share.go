package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var shareAsAuthorizerFor string

var shareCmd = &cobra.Command{
	Use:   "share <record-type> <reader-id>",
	Short: "Grant a reader access to a record type",
	Args:  cobra.ExactArgs(2),
	RunE:  runShare,
}

func init() {
	rootCmd.AddCommand(shareCmd)
	shareCmd.Flags().StringVar(&shareAsAuthorizerFor, "on-behalf-of", "", "share writerID's records instead of this client's own, as a delegated authorizer")
}

func runShare(cmd *cobra.Command, args []string) error {
	recordType, readerID := args[0], args[1]

	client, err := newClient()
	if err != nil {
		return err
	}

	ctx := context.Background()
	if shareAsAuthorizerFor != "" {
		err = client.ShareOnBehalfOf(ctx, shareAsAuthorizerFor, readerID, recordType)
	} else {
		err = client.Share(ctx, recordType, readerID)
	}
	if err != nil {
		logger.Error("share failed", zap.String("record_type", recordType), zap.String("reader_id", readerID), zap.Error(err))
		return err
	}

	logger.Info("shared", zap.String("record_type", recordType), zap.String("reader_id", readerID))
	return nil
}

var addAuthorizerCmd = &cobra.Command{
	Use:   "add-authorizer <record-type> <authorizer-id>",
	Short: "Let another client share this client's records on its behalf",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		return client.AddAuthorizer(context.Background(), args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(addAuthorizerCmd)
}
