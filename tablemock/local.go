package tablemock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/nisimpson/tablemap"
	"golang.org/x/sync/errgroup"
)

// DefaultLocalPort is the port DynamoDB Local listens on unless told otherwise.
const DefaultLocalPort = 8000

// Local is a DynamoDB Local instance on localhost. Config seeds every driver
// returned by Driver; it polls quickly since DynamoDB Local activates tables
// and indexes immediately.
type Local struct {
	Port   int
	Client *dynamodb.Client
	Config tablemap.DynamoConfig
}

// NewLocalClient returns a DynamoDB client for DynamoDB Local on port. The
// region and credentials are placeholders; DynamoDB Local accepts any.
//
//	driver := tablemap.NewDynamoDriver(tablemock.NewLocalClient(8000))
func NewLocalClient(port int) *dynamodb.Client {
	cfg := aws.Config{
		Region:      "us-east-1",
		Credentials: credentials.StaticCredentialsProvider{Value: aws.Credentials{AccessKeyID: "local", SecretAccessKey: "local"}},
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		o.BaseEndpoint = aws.String(localEndpoint(port))
	})
}

func localEndpoint(port int) string {
	return "http://" + net.JoinHostPort("localhost", strconv.Itoa(port))
}

// NewLocal connects to DynamoDB Local on port.
func NewLocal(port int) *Local {
	cfg := tablemap.DefaultDynamoConfig()
	cfg.PollInterval = 100 * time.Millisecond
	cfg.WaitTimeout = 30 * time.Second
	return &Local{Port: port, Client: NewLocalClient(port), Config: cfg}
}

// Endpoint returns the base URL of the instance.
func (l *Local) Endpoint() string { return localEndpoint(l.Port) }

// Driver returns a tablemap driver over the local client.
func (l *Local) Driver(opts ...func(*tablemap.DynamoConfig)) *tablemap.DynamoDriver {
	base := func(c *tablemap.DynamoConfig) { *c = l.Config }
	return tablemap.NewDynamoDriver(l.Client, append([]func(*tablemap.DynamoConfig){base}, opts...)...)
}

// Ping reports whether DynamoDB Local answers on the port. A bare TCP check
// comes first so an idle port fails fast instead of waiting on SDK retries.
func (l *Local) Ping(ctx context.Context) error {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("localhost", strconv.Itoa(l.Port)), 2*time.Second)
	if err != nil {
		return err
	}
	conn.Close()

	_, err = l.Client.ListTables(ctx, &dynamodb.ListTablesInput{Limit: aws.Int32(1)})
	return err
}

// Await pings until the instance answers, ctx ends or timeout elapses.
func (l *Local) Await(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()

	for {
		err := l.Ping(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("DynamoDB Local not available at %s: %w", l.Endpoint(), errors.Join(ctx.Err(), err))
		case <-tick.C:
		}
	}
}

// DropDatabase deletes every table in the namespace of db and waits until
// they are gone. It returns the number of tables dropped.
func (l *Local) DropDatabase(ctx context.Context, db string) (int, error) {
	driver := l.Driver()
	tables, err := driver.ListTables(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("failed to list tables of %s: %w", db, err)
	}

	waiter := dynamodb.NewTableNotExistsWaiter(l.Client, func(o *dynamodb.TableNotExistsWaiterOptions) {
		o.MinDelay = l.Config.PollInterval
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, table := range tables {
		name := driver.PhysicalName(tablemap.TableRef{DB: db, Table: table})
		g.Go(func() error {
			in := &dynamodb.DescribeTableInput{TableName: aws.String(name)}
			if _, err := l.Client.DeleteTable(gctx, &dynamodb.DeleteTableInput{TableName: in.TableName}); err != nil {
				return fmt.Errorf("failed to delete table %s: %w", name, err)
			}
			if err := waiter.Wait(gctx, in, l.Config.WaitTimeout); err != nil {
				return fmt.Errorf("table %s was not deleted: %w", name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(tables), nil
}
