package tablemock

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nisimpson/tablemap"
)

// Integration configures RunIntegrationTest. The zero value is usable.
type Integration struct {
	Port    int           // Defaults to DefaultLocalPort
	Require bool          // Fail rather than skip when DynamoDB Local is down
	Prefix  string        // Database name prefix, "it" by default
	Timeout time.Duration // Bound on dropping the database afterwards

	// Options adjust the driver handed to the test.
	Options []func(*tablemap.DynamoConfig)
}

// NewTestDB returns a unique database name starting with prefix. Dots are
// replaced so the name never contains the default table delimiter.
func NewTestDB(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ReplaceAll(prefix, ".", "-") + "-" + id[:12]
}

// RequireLocal returns the DynamoDB Local instance on port, skipping the test
// when it is not running or when tests run in short mode.
func RequireLocal(t testing.TB, port int) *Local {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	local := NewLocal(port)
	if err := local.Ping(context.Background()); err != nil {
		t.Skipf("DynamoDB Local not available on port %d: %v", port, err)
	}
	return local
}

// RunIntegrationTest runs fn against DynamoDB Local inside a fresh database
// namespace, which is dropped when the test ends.
func RunIntegrationTest(t *testing.T, it *Integration, fn func(driver *tablemap.DynamoDriver, db string)) {
	t.Helper()
	if it == nil {
		it = &Integration{}
	}
	port := it.Port
	if port == 0 {
		port = DefaultLocalPort
	}
	prefix := it.Prefix
	if prefix == "" {
		prefix = "it"
	}
	timeout := it.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var local *Local
	if it.Require {
		local = NewLocal(port)
		if err := local.Ping(context.Background()); err != nil {
			t.Fatalf("DynamoDB Local not available on port %d: %v", port, err)
		}
	} else {
		local = RequireLocal(t, port)
	}

	db := NewTestDB(prefix)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if _, err := local.DropDatabase(ctx, db); err != nil {
			t.Errorf("failed to drop database %s: %v", db, err)
		}
	})

	fn(local.Driver(it.Options...), db)
}
