package tablemap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// ScanPages reads every page of a scan and decodes the items. LastEvaluatedKey
// is followed until the table is exhausted.
func ScanPages(ctx context.Context, client dynamodb.ScanAPIClient, in *dynamodb.ScanInput) ([]Record, error) {
	var records []Record

	pages := dynamodb.NewScanPaginator(client, in)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		for _, item := range page.Items {
			r, err := UnmarshalRecord(item)
			if err != nil {
				return nil, err
			}
			records = append(records, r)
		}
	}

	return records, nil
}

// TableNames lists every table name visible to client.
func TableNames(ctx context.Context, client dynamodb.ListTablesAPIClient) ([]string, error) {
	var names []string

	pages := dynamodb.NewListTablesPaginator(client, &dynamodb.ListTablesInput{})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list tables: %w", err)
		}
		names = append(names, page.TableNames...)
	}

	return names, nil
}
