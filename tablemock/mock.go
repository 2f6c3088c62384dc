package tablemock

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/nisimpson/tablemap"
)

// APICall is the signature shared by every DynamoDB client operation.
type APICall[T, U any] = func(context.Context, *T, ...func(*dynamodb.Options)) (*U, error)

// MockClient is a DynamoDBClient whose operations delegate to replaceable
// funcs, so DynamoDriver tests can inspect each request the driver builds.
type MockClient struct {
	CreateTableFunc    APICall[dynamodb.CreateTableInput, dynamodb.CreateTableOutput]
	DescribeTableFunc  APICall[dynamodb.DescribeTableInput, dynamodb.DescribeTableOutput]
	UpdateTableFunc    APICall[dynamodb.UpdateTableInput, dynamodb.UpdateTableOutput]
	ListTablesFunc     APICall[dynamodb.ListTablesInput, dynamodb.ListTablesOutput]
	ScanFunc           APICall[dynamodb.ScanInput, dynamodb.ScanOutput]
	GetFunc            APICall[dynamodb.GetItemInput, dynamodb.GetItemOutput]
	PutFunc            APICall[dynamodb.PutItemInput, dynamodb.PutItemOutput]
	UpdateFunc         APICall[dynamodb.UpdateItemInput, dynamodb.UpdateItemOutput]
	DeleteFunc         APICall[dynamodb.DeleteItemInput, dynamodb.DeleteItemOutput]
	BatchWriteItemFunc APICall[dynamodb.BatchWriteItemInput, dynamodb.BatchWriteItemOutput]
}

var _ tablemap.DynamoDBClient = (*MockClient)(nil)

// NewMockClient creates a mock client whose operations all fail the test
// until an expectation is set.
func NewMockClient(t testing.TB) *MockClient {
	return &MockClient{
		CreateTableFunc:    defaultFunc[dynamodb.CreateTableInput, dynamodb.CreateTableOutput](t, "CreateTable"),
		DescribeTableFunc:  defaultFunc[dynamodb.DescribeTableInput, dynamodb.DescribeTableOutput](t, "DescribeTable"),
		UpdateTableFunc:    defaultFunc[dynamodb.UpdateTableInput, dynamodb.UpdateTableOutput](t, "UpdateTable"),
		ListTablesFunc:     defaultFunc[dynamodb.ListTablesInput, dynamodb.ListTablesOutput](t, "ListTables"),
		ScanFunc:           defaultFunc[dynamodb.ScanInput, dynamodb.ScanOutput](t, "Scan"),
		GetFunc:            defaultFunc[dynamodb.GetItemInput, dynamodb.GetItemOutput](t, "GetItem"),
		PutFunc:            defaultFunc[dynamodb.PutItemInput, dynamodb.PutItemOutput](t, "PutItem"),
		UpdateFunc:         defaultFunc[dynamodb.UpdateItemInput, dynamodb.UpdateItemOutput](t, "UpdateItem"),
		DeleteFunc:         defaultFunc[dynamodb.DeleteItemInput, dynamodb.DeleteItemOutput](t, "DeleteItem"),
		BatchWriteItemFunc: defaultFunc[dynamodb.BatchWriteItemInput, dynamodb.BatchWriteItemOutput](t, "BatchWriteItem"),
	}
}

// defaultFunc reports the call with Errorf rather than Fatal: drivers may
// call from goroutines other than the test's.
func defaultFunc[T, U any](t testing.TB, name string) APICall[T, U] {
	return func(ctx context.Context, params *T, optFns ...func(*dynamodb.Options)) (*U, error) {
		t.Errorf("unexpected call to %s", name)
		return nil, fmt.Errorf("unexpected call to %s", name)
	}
}

func (m *MockClient) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	return m.CreateTableFunc(ctx, params, optFns...)
}

func (m *MockClient) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return m.DescribeTableFunc(ctx, params, optFns...)
}

func (m *MockClient) UpdateTable(ctx context.Context, params *dynamodb.UpdateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTableOutput, error) {
	return m.UpdateTableFunc(ctx, params, optFns...)
}

func (m *MockClient) ListTables(ctx context.Context, params *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error) {
	return m.ListTablesFunc(ctx, params, optFns...)
}

func (m *MockClient) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	return m.ScanFunc(ctx, params, optFns...)
}

func (m *MockClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return m.GetFunc(ctx, params, optFns...)
}

func (m *MockClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return m.PutFunc(ctx, params, optFns...)
}

func (m *MockClient) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return m.UpdateFunc(ctx, params, optFns...)
}

func (m *MockClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return m.DeleteFunc(ctx, params, optFns...)
}

func (m *MockClient) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	return m.BatchWriteItemFunc(ctx, params, optFns...)
}
