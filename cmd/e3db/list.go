package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tozny/e3db-go/query"
)

var (
	listRecordType string
	listWriterID   string
	listCount      int
	listNextToken  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Search/list records",
	Long:  `List pages through this client's records, optionally filtered by type and writer.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVar(&listRecordType, "type", "", "filter by record type")
	listCmd.Flags().StringVar(&listWriterID, "writer", "", "filter by writer client ID")
	listCmd.Flags().IntVar(&listCount, "count", 50, "page size")
	listCmd.Flags().IntVar(&listNextToken, "after", 0, "resume after this index (from a prior page's last_index)")
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	params := query.New()
	params.Count = listCount
	params.NextToken = listNextToken
	if listRecordType != "" {
		params.ContentTypes = []string{listRecordType}
	}
	if listWriterID != "" {
		params.WriterIDs = []string{listWriterID}
	}

	result, err := client.List(context.Background(), params)
	if err != nil {
		logger.Error("list failed", zap.Error(err))
		return err
	}

	return json.NewEncoder(os.Stdout).Encode(result)
}
