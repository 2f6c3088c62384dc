package tablemap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// DynamoDBClient defines the DynamoDB operations required by DynamoDriver.
type DynamoDBClient interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	UpdateTable(ctx context.Context, params *dynamodb.UpdateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTableOutput, error)
	ListTables(ctx context.Context, params *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

var _ DynamoDBClient = (*dynamodb.Client)(nil)

// DynamoConfig controls how TableRefs map onto DynamoDB tables.
type DynamoConfig struct {
	TableDelimiter string        `yaml:"tableDelimiter"` // Joins database and table into the physical name
	KeyType        string        `yaml:"keyType"`        // "S" or "N"
	ReadCapacity   int64         `yaml:"readCapacity"`   // Zero selects on-demand billing
	WriteCapacity  int64         `yaml:"writeCapacity"`
	PollInterval   time.Duration `yaml:"pollInterval"` // Delay between status checks while waiting on schema
	WaitTimeout    time.Duration `yaml:"waitTimeout"`  // Upper bound on waiting for a table or index
	MaxRetries     int           `yaml:"maxRetries"`   // Attempts to flush unprocessed batch items
	Region         string        `yaml:"region"`       // Used by NewDynamoDriverFromEnv
	Endpoint       string        `yaml:"endpoint"`     // Used by NewDynamoDriverFromEnv, e.g. DynamoDB Local

	Logger *slog.Logger `yaml:"-"`
}

// DefaultDynamoConfig returns the configuration used by NewDynamoDriver
// before options apply.
func DefaultDynamoConfig() DynamoConfig {
	return DynamoConfig{
		TableDelimiter: ".",
		KeyType:        string(types.ScalarAttributeTypeS),
		PollInterval:   time.Second,
		WaitTimeout:    5 * time.Minute,
		MaxRetries:     5,
	}
}

// LoadDynamoConfig reads a YAML document over DefaultDynamoConfig.
func LoadDynamoConfig(r io.Reader) (DynamoConfig, error) {
	cfg := DefaultDynamoConfig()
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && err != io.EOF {
		return cfg, fmt.Errorf("failed to decode dynamodb config: %w", err)
	}
	return cfg, nil
}

// WithDynamoConfig replaces the whole driver configuration.
func WithDynamoConfig(c DynamoConfig) func(*DynamoConfig) {
	return func(cfg *DynamoConfig) { *cfg = c }
}

// DynamoDriver implements Driver on DynamoDB. A database is a table-name
// namespace: the table "users" of database "app" is the DynamoDB table
// "app.users". Queries run as filtered scans; the compiled plan is
// re-applied to the scanned records for exact matching, sorting and
// pagination.
type DynamoDriver struct {
	client DynamoDBClient
	config DynamoConfig
	logger *slog.Logger
}

var _ Driver = (*DynamoDriver)(nil)

// NewDynamoDriver creates a driver over client.
func NewDynamoDriver(client DynamoDBClient, opts ...func(*DynamoConfig)) *DynamoDriver {
	cfg := DefaultDynamoConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.TableDelimiter == "" {
		cfg.TableDelimiter = "."
	}
	if cfg.KeyType == "" {
		cfg.KeyType = string(types.ScalarAttributeTypeS)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 5 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DynamoDriver{client: client, config: cfg, logger: logger}
}

// NewDynamoDriverFromEnv loads the AWS configuration from the environment and
// creates a driver with a fresh DynamoDB client.
func NewDynamoDriverFromEnv(ctx context.Context, opts ...func(*DynamoConfig)) (*DynamoDriver, error) {
	cfg := DefaultDynamoConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewDynamoDriver(client, WithDynamoConfig(cfg)), nil
}

// Client returns the underlying DynamoDB client.
func (d *DynamoDriver) Client() DynamoDBClient { return d.client }

// PhysicalName returns the DynamoDB table name for ref.
func (d *DynamoDriver) PhysicalName(ref TableRef) string {
	return ref.DB + d.config.TableDelimiter + ref.Table
}

func (d *DynamoDriver) table(ref TableRef) *Table {
	return &Table{
		Name:          d.PhysicalName(ref),
		Key:           ref.Key,
		KeyType:       types.ScalarAttributeType(d.config.KeyType),
		ReadCapacity:  d.config.ReadCapacity,
		WriteCapacity: d.config.WriteCapacity,
	}
}

// ListDatabases implements SchemaDriver by collecting the namespaces of the
// existing tables.
func (d *DynamoDriver) ListDatabases(ctx context.Context) ([]string, error) {
	names, err := TableNames(ctx, d.client)
	if err != nil {
		return nil, err
	}
	var dbs []string
	for _, name := range names {
		if db, _, ok := strings.Cut(name, d.config.TableDelimiter); ok && !slices.Contains(dbs, db) {
			dbs = append(dbs, db)
		}
	}
	slices.Sort(dbs)
	return dbs, nil
}

// CreateDatabase implements SchemaDriver. Namespaces need no provisioning.
func (d *DynamoDriver) CreateDatabase(context.Context, string) error {
	return nil
}

// ListTables implements SchemaDriver.
func (d *DynamoDriver) ListTables(ctx context.Context, db string) ([]string, error) {
	names, err := TableNames(ctx, d.client)
	if err != nil {
		return nil, err
	}
	prefix := db + d.config.TableDelimiter
	var tables []string
	for _, name := range names {
		if table, ok := strings.CutPrefix(name, prefix); ok {
			tables = append(tables, table)
		}
	}
	return tables, nil
}

// CreateTable implements SchemaDriver and waits for the table to become
// active.
func (d *DynamoDriver) CreateTable(ctx context.Context, ref TableRef) error {
	t := d.table(ref)
	d.logger.DebugContext(ctx, "create table", "table", t.Name)

	if _, err := d.client.CreateTable(ctx, t.MarshalCreate()); err != nil && !isResourceInUse(err) {
		return fmt.Errorf("failed to create table %s: %w", t.Name, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(d.client, func(o *dynamodb.TableExistsWaiterOptions) {
		o.MinDelay = d.config.PollInterval
		if o.MaxDelay < o.MinDelay {
			o.MaxDelay = o.MinDelay
		}
	})
	err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(t.Name)}, d.config.WaitTimeout)
	if err != nil {
		return fmt.Errorf("table %s did not become active: %w", t.Name, err)
	}
	return nil
}

// ListIndexes implements SchemaDriver. Index names are reported as the
// fields they cover.
func (d *DynamoDriver) ListIndexes(ctx context.Context, ref TableRef) ([]string, error) {
	desc, err := d.describe(ctx, ref)
	if err != nil {
		return nil, err
	}
	var fields []string
	for _, gsi := range desc.GlobalSecondaryIndexes {
		if field, ok := strings.CutSuffix(aws.ToString(gsi.IndexName), IndexSuffix); ok {
			fields = append(fields, field)
		}
	}
	return fields, nil
}

// CreateIndex implements SchemaDriver.
func (d *DynamoDriver) CreateIndex(ctx context.Context, ref TableRef, field string) error {
	t := d.table(ref)
	d.logger.DebugContext(ctx, "create index", "table", t.Name, "index", IndexName(field))

	_, err := d.client.UpdateTable(ctx, t.MarshalCreateIndex(field))
	if err != nil && !isResourceInUse(err) && !isAlreadyExists(err) {
		return fmt.Errorf("failed to create index %s on %s: %w", IndexName(field), t.Name, err)
	}
	return nil
}

// WaitIndex implements SchemaDriver by polling the table description until
// the index is active.
func (d *DynamoDriver) WaitIndex(ctx context.Context, ref TableRef, field string) error {
	name := IndexName(field)
	deadline := time.Now().Add(d.config.WaitTimeout)

	for {
		desc, err := d.describe(ctx, ref)
		if err != nil {
			return err
		}

		idx := slices.IndexFunc(desc.GlobalSecondaryIndexes, func(gsi types.GlobalSecondaryIndexDescription) bool {
			return aws.ToString(gsi.IndexName) == name
		})
		if idx < 0 {
			return fmt.Errorf("index %s not found on %s", name, d.PhysicalName(ref))
		}
		if desc.GlobalSecondaryIndexes[idx].IndexStatus == types.IndexStatusActive {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("index %s on %s did not become active within %v", name, d.PhysicalName(ref), d.config.WaitTimeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.config.PollInterval):
		}
	}
}

func (d *DynamoDriver) describe(ctx context.Context, ref TableRef) (*types.TableDescription, error) {
	out, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.PhysicalName(ref)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe table %s: %w", d.PhysicalName(ref), err)
	}
	if out.Table == nil {
		return nil, fmt.Errorf("table %s has no description", d.PhysicalName(ref))
	}
	return out.Table, nil
}

// Scan implements Driver.
func (d *DynamoDriver) Scan(ctx context.Context, ref TableRef, plan *Plan, opts NativeOpts) ([]Record, error) {
	in, err := d.table(ref).MarshalScan(plan, opts.Bool(OptConsistentRead))
	if err != nil {
		return nil, err
	}
	records, err := ScanPages(ctx, d.client, in)
	if err != nil {
		return nil, err
	}
	return plan.Apply(records), nil
}

// Get implements Driver.
func (d *DynamoDriver) Get(ctx context.Context, ref TableRef, id any, opts NativeOpts) (Record, error) {
	in, err := d.table(ref).MarshalGet(id, opts.Bool(OptConsistentRead))
	if err != nil {
		return nil, err
	}
	out, err := d.client.GetItem(ctx, in)
	if err != nil {
		return nil, err
	}
	return UnmarshalRecord(out.Item)
}

// Insert implements Driver. Records without a primary key get a generated
// UUID when the key type is a string. Duplicate keys are reported in the
// result unless the conflict option is "update" or "replace".
func (d *DynamoDriver) Insert(ctx context.Context, ref TableRef, records []Record, opts NativeOpts) (*WriteResult, error) {
	t := d.table(ref)
	changes := opts.Bool(OptReturnChanges)
	conflict := opts.String(OptConflict)
	wr := &WriteResult{}

	for _, rec := range records {
		rec = CloneRecord(rec)
		if rec == nil {
			rec = Record{}
		}
		if rec[ref.Key] == nil {
			if t.KeyType != types.ScalarAttributeTypeS {
				wr.Fail("Missing primary key `%s`", ref.Key)
				continue
			}
			rec[ref.Key] = uuid.NewString()
			wr.GeneratedKeys = append(wr.GeneratedKeys, rec[ref.Key])
		}

		var (
			old Record
			err error
		)
		switch conflict {
		case ConflictUpdate:
			old, err = d.upsert(ctx, t, rec)
			if old != nil {
				rec = merged(old, rec)
			}
		case ConflictReplace:
			old, err = d.put(ctx, t, rec, true)
		default:
			old, err = d.put(ctx, t, rec, false)
		}
		if isConditionFailed(err) {
			wr.Fail("Duplicate primary key `%s`: %v", ref.Key, rec[ref.Key])
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to write %v: %w", rec[ref.Key], err)
		}

		switch {
		case old == nil:
			wr.Inserted++
		case sameRecord(old, rec):
			wr.Unchanged++
		default:
			wr.Replaced++
		}
		if changes {
			wr.Changes = append(wr.Changes, Change{OldVal: old, NewVal: rec})
		}
	}
	return wr, nil
}

func (d *DynamoDriver) put(ctx context.Context, t *Table, rec Record, overwrite bool) (Record, error) {
	in, err := t.MarshalPut(rec, overwrite)
	if err != nil {
		return nil, err
	}
	out, err := d.client.PutItem(ctx, in)
	if err != nil {
		return nil, err
	}
	return UnmarshalRecord(out.Attributes)
}

// upsert sets the fields of rec on the record with the same key, creating it
// when missing, and returns the old image.
func (d *DynamoDriver) upsert(ctx context.Context, t *Table, rec Record) (Record, error) {
	id := rec[t.Key]
	in, err := t.MarshalMerge(id, rec, false)
	if err != nil {
		return nil, err
	}
	if in == nil {
		// key only: create it unless present
		old, err := d.put(ctx, t, rec, false)
		if !isConditionFailed(err) {
			return old, err
		}
		return d.get(ctx, t, id)
	}
	out, err := d.client.UpdateItem(ctx, in)
	if err != nil {
		return nil, err
	}
	return UnmarshalRecord(out.Attributes)
}

func (d *DynamoDriver) get(ctx context.Context, t *Table, id any) (Record, error) {
	in, err := t.MarshalGet(id, true)
	if err != nil {
		return nil, err
	}
	out, err := d.client.GetItem(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("failed to read %v: %w", id, err)
	}
	return UnmarshalRecord(out.Item)
}

// Update implements Driver.
func (d *DynamoDriver) Update(ctx context.Context, ref TableRef, id any, props Record, opts NativeOpts) (*WriteResult, error) {
	return d.update(ctx, d.table(ref), id, props, opts.Bool(OptReturnChanges))
}

func (d *DynamoDriver) update(ctx context.Context, t *Table, id any, props Record, changes bool) (*WriteResult, error) {
	wr := &WriteResult{}

	in, err := t.MarshalMerge(id, props, true)
	if err != nil {
		return nil, err
	}

	var old Record
	if in == nil {
		if old, err = d.get(ctx, t, id); err != nil {
			return nil, err
		}
	} else {
		out, err := d.client.UpdateItem(ctx, in)
		if isConditionFailed(err) {
			wr.Skipped++
			return wr, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update %v: %w", id, err)
		}
		if old, err = UnmarshalRecord(out.Attributes); err != nil {
			return nil, err
		}
	}
	if old == nil {
		wr.Skipped++
		return wr, nil
	}

	rec := merged(old, props)
	if sameRecord(old, rec) {
		wr.Unchanged++
	} else {
		wr.Replaced++
	}
	if changes {
		wr.Changes = append(wr.Changes, Change{OldVal: old, NewVal: rec})
	}
	return wr, nil
}

// UpdateWhere implements Driver by updating each selected record in turn.
func (d *DynamoDriver) UpdateWhere(ctx context.Context, ref TableRef, plan *Plan, props Record, opts NativeOpts) (*WriteResult, error) {
	records, err := d.Scan(ctx, ref, plan, opts)
	if err != nil {
		return nil, err
	}

	t := d.table(ref)
	wr := &WriteResult{}
	for _, rec := range records {
		res, err := d.update(ctx, t, rec[ref.Key], props, opts.Bool(OptReturnChanges))
		if err != nil {
			return nil, err
		}
		wr.Merge(res)
	}
	return wr, nil
}

// Delete implements Driver.
func (d *DynamoDriver) Delete(ctx context.Context, ref TableRef, id any, opts NativeOpts) (*WriteResult, error) {
	in, err := d.table(ref).MarshalDelete(id)
	if err != nil {
		return nil, err
	}
	out, err := d.client.DeleteItem(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("failed to delete %v: %w", id, err)
	}
	old, err := UnmarshalRecord(out.Attributes)
	if err != nil {
		return nil, err
	}

	wr := &WriteResult{}
	if old == nil {
		wr.Skipped++
		return wr, nil
	}
	wr.Deleted++
	if opts.Bool(OptReturnChanges) {
		wr.Changes = append(wr.Changes, Change{OldVal: old})
	}
	return wr, nil
}

// DeleteWhere implements Driver with batched deletes of the selected records.
func (d *DynamoDriver) DeleteWhere(ctx context.Context, ref TableRef, plan *Plan, opts NativeOpts) (*WriteResult, error) {
	records, err := d.Scan(ctx, ref, plan, opts)
	if err != nil {
		return nil, err
	}
	wr := &WriteResult{}
	if len(records) == 0 {
		return wr, nil
	}

	ids := make([]any, len(records))
	for i, rec := range records {
		ids[i] = rec[ref.Key]
	}
	batches, err := d.table(ref).MarshalBatchDelete(ids)
	if err != nil {
		return nil, err
	}
	for _, batch := range batches {
		if err := d.writeBatch(ctx, batch); err != nil {
			return nil, err
		}
	}

	wr.Deleted = len(records)
	if opts.Bool(OptReturnChanges) {
		for _, rec := range records {
			wr.Changes = append(wr.Changes, Change{OldVal: rec})
		}
	}
	return wr, nil
}

// writeBatch sends batch, resubmitting unprocessed items up to MaxRetries
// times.
func (d *DynamoDriver) writeBatch(ctx context.Context, batch *dynamodb.BatchWriteItemInput) error {
	for attempt := 0; ; attempt++ {
		out, err := d.client.BatchWriteItem(ctx, batch)
		if err != nil {
			return fmt.Errorf("failed to batch write: %w", err)
		}
		if len(out.UnprocessedItems) == 0 {
			return nil
		}
		if attempt >= d.config.MaxRetries {
			return fmt.Errorf("batch write left unprocessed items after %d attempts", attempt+1)
		}
		d.logger.DebugContext(ctx, "retry unprocessed items", "attempt", attempt+1)
		batch = &dynamodb.BatchWriteItemInput{RequestItems: out.UnprocessedItems}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.config.PollInterval):
		}
	}
}

func merged(old, props Record) Record {
	out := CloneRecord(old)
	for k, v := range props {
		out[k] = v
	}
	return out
}

func sameRecord(a, b Record) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		w, ok := b[k]
		if !ok || !Equal(v, w) {
			return false
		}
	}
	return true
}

func isConditionFailed(err error) bool {
	var cfe *types.ConditionalCheckFailedException
	return errors.As(err, &cfe)
}

func isResourceInUse(err error) bool {
	var riu *types.ResourceInUseException
	return errors.As(err, &riu)
}

// isAlreadyExists matches the validation error DynamoDB returns when an
// index of the same name is already being created.
func isAlreadyExists(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) &&
		apiErr.ErrorCode() == "ValidationException" &&
		strings.Contains(apiErr.ErrorMessage(), "already exists")
}
