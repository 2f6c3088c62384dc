package tablemap

import (
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	// MaxBatchSize is the maximum number of items allowed in a DynamoDB batch operation.
	MaxBatchSize = 25

	// IndexSuffix is appended to a field name to form its secondary index name.
	IndexSuffix = "-index"
)

// Item is a raw DynamoDB item.
type Item = map[string]types.AttributeValue

// Table describes the physical DynamoDB table behind a TableRef and marshals
// requests against it.
type Table struct {
	Name          string                    // physical table name
	Key           string                    // hash key attribute
	KeyType       types.ScalarAttributeType // S or N
	ReadCapacity  int64                     // zero selects on-demand billing
	WriteCapacity int64
}

// IndexName returns the secondary index name for field.
func IndexName(field string) string {
	return field + IndexSuffix
}

func (t *Table) throughput() *types.ProvisionedThroughput {
	if t.ReadCapacity == 0 && t.WriteCapacity == 0 {
		return nil
	}
	return &types.ProvisionedThroughput{
		ReadCapacityUnits:  aws.Int64(t.ReadCapacity),
		WriteCapacityUnits: aws.Int64(t.WriteCapacity),
	}
}

// MarshalCreate marshals the create table request. The table has a single
// hash key and no sort key.
func (t *Table) MarshalCreate() *dynamodb.CreateTableInput {
	in := &dynamodb.CreateTableInput{
		TableName: aws.String(t.Name),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(t.Key), AttributeType: t.KeyType},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(t.Key), KeyType: types.KeyTypeHash},
		},
		BillingMode: types.BillingModePayPerRequest,
	}
	if tp := t.throughput(); tp != nil {
		in.BillingMode = types.BillingModeProvisioned
		in.ProvisionedThroughput = tp
	}
	return in
}

// MarshalCreateIndex marshals the request adding a global secondary index on
// field. Foreign keys hold parent primary keys, so the index key shares the
// table's key type.
func (t *Table) MarshalCreateIndex(field string) *dynamodb.UpdateTableInput {
	return &dynamodb.UpdateTableInput{
		TableName: aws.String(t.Name),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(field), AttributeType: t.KeyType},
		},
		GlobalSecondaryIndexUpdates: []types.GlobalSecondaryIndexUpdate{
			{
				Create: &types.CreateGlobalSecondaryIndexAction{
					IndexName: aws.String(IndexName(field)),
					KeySchema: []types.KeySchemaElement{
						{AttributeName: aws.String(field), KeyType: types.KeyTypeHash},
					},
					Projection:            &types.Projection{ProjectionType: types.ProjectionTypeAll},
					ProvisionedThroughput: t.throughput(),
				},
			},
		},
	}
}

// MarshalKey marshals a primary key value.
func (t *Table) MarshalKey(id any) (Item, error) {
	if id == nil {
		return nil, fmt.Errorf("missing primary key %q", t.Key)
	}
	av, err := attributevalue.Marshal(id)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key: %w", err)
	}
	return Item{t.Key: av}, nil
}

// MarshalGet marshals the get item request for id.
func (t *Table) MarshalGet(id any, consistent bool) (*dynamodb.GetItemInput, error) {
	key, err := t.MarshalKey(id)
	if err != nil {
		return nil, err
	}
	return &dynamodb.GetItemInput{
		TableName:      aws.String(t.Name),
		Key:            key,
		ConsistentRead: aws.Bool(consistent),
	}, nil
}

// MarshalPut marshals the put item request for r. Unless overwrite is set the
// put fails when a record with the same key exists. The old image is always
// requested.
func (t *Table) MarshalPut(r Record, overwrite bool) (*dynamodb.PutItemInput, error) {
	item, err := attributevalue.MarshalMap(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item: %w", err)
	}

	in := &dynamodb.PutItemInput{
		TableName:    aws.String(t.Name),
		Item:         item,
		ReturnValues: types.ReturnValueAllOld,
	}
	if !overwrite {
		expr, err := expression.NewBuilder().
			WithCondition(expression.AttributeNotExists(expression.Name(t.Key))).
			Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build condition: %w", err)
		}
		in.ConditionExpression = expr.Condition()
		in.ExpressionAttributeNames = expr.Names()
	}
	return in, nil
}

// MarshalMerge marshals the update item request setting every field of props
// on the record with key id. With mustExist the update fails when no such
// record exists; otherwise it creates one. It returns nil when props has no
// field other than the key.
func (t *Table) MarshalMerge(id any, props Record, mustExist bool) (*dynamodb.UpdateItemInput, error) {
	key, err := t.MarshalKey(id)
	if err != nil {
		return nil, err
	}

	fields := make([]string, 0, len(props))
	for field := range props {
		if field != t.Key {
			fields = append(fields, field)
		}
	}
	if len(fields) == 0 {
		return nil, nil
	}
	sort.Strings(fields)

	var update expression.UpdateBuilder
	for _, field := range fields {
		update = update.Set(expression.Name(field), expression.Value(props[field]))
	}
	builder := expression.NewBuilder().WithUpdate(update)
	if mustExist {
		builder = builder.WithCondition(expression.AttributeExists(expression.Name(t.Key)))
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build update: %w", err)
	}

	return &dynamodb.UpdateItemInput{
		TableName:                 aws.String(t.Name),
		Key:                       key,
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllOld,
	}, nil
}

// MarshalDelete marshals the delete item request for id.
func (t *Table) MarshalDelete(id any) (*dynamodb.DeleteItemInput, error) {
	key, err := t.MarshalKey(id)
	if err != nil {
		return nil, err
	}
	return &dynamodb.DeleteItemInput{
		TableName:    aws.String(t.Name),
		Key:          key,
		ReturnValues: types.ReturnValueAllOld,
	}, nil
}

// MarshalBatchDelete marshals delete requests for ids. Since there is a limit
// on how many requests can be contained in a single input, the requests are
// chunked in sizes of MaxBatchSize or less.
func (t *Table) MarshalBatchDelete(ids []any) ([]*dynamodb.BatchWriteItemInput, error) {
	var batches []*dynamodb.BatchWriteItemInput

	for i := 0; i < len(ids); i += MaxBatchSize {
		end := min(i+MaxBatchSize, len(ids))

		requests := make([]types.WriteRequest, 0, end-i)
		for _, id := range ids[i:end] {
			key, err := t.MarshalKey(id)
			if err != nil {
				return nil, err
			}
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: key},
			})
		}

		batches = append(batches, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				t.Name: requests,
			},
		})
	}

	return batches, nil
}

// MarshalScan marshals the scan request for plan. The filter expression, when
// the plan has a renderable one, only narrows the read; sorting, pagination
// and exact matching happen after the scan.
func (t *Table) MarshalScan(plan *Plan, consistent bool) (*dynamodb.ScanInput, error) {
	in := &dynamodb.ScanInput{
		TableName:      aws.String(t.Name),
		ConsistentRead: aws.Bool(consistent),
	}
	if plan == nil || plan.Filter == nil {
		return in, nil
	}

	cond, ok := plan.Filter.Condition()
	if !ok {
		return in, nil
	}
	expr, err := expression.NewBuilder().WithFilter(cond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build filter: %w", err)
	}
	in.FilterExpression = expr.Filter()
	in.ExpressionAttributeNames = expr.Names()
	in.ExpressionAttributeValues = expr.Values()
	return in, nil
}

// UnmarshalRecord decodes a raw item. Numbers decode as float64.
func UnmarshalRecord(item Item) (Record, error) {
	if len(item) == 0 {
		return nil, nil
	}
	var r Record
	if err := attributevalue.UnmarshalMap(item, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return r, nil
}
