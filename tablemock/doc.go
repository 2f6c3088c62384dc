// Package tablemock provides testing utilities for the tablemap library.
//
// This package includes:
//   - An in-memory Driver that counts calls and records scans
//   - An expectation-based mock DynamoDB client for unit testing DynamoDriver
//   - Local DynamoDB integration utilities
//   - Record builders with fluent and functional APIs
//   - JSON:API fixture seeding through an Adapter
//
// # Memory Driver
//
// MemoryDriver behaves like a real store, down to rejecting a table in a
// missing database, so adapter code runs unchanged against it:
//
//	driver := tablemock.NewMemoryDriver()
//	adapter := tablemap.New(driver)
//
//	_, err := adapter.FindAll(ctx, post, nil, &tablemap.Options{With: []string{"user"}})
//
//	// One query per relation, however many posts were loaded
//	if n := len(driver.ScansOf("user")); n != 1 {
//		t.Errorf("expected 1 user scan, got %d", n)
//	}
//
// # Mock Client
//
// The MockClient provides an expectation-based mock implementation where you set
// expectations for specific operations:
//
//	mock := tablemock.NewMockClient(t)
//
//	mock.GetFunc = func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
//		// Verify the operation parameters
//		return &dynamodb.GetItemOutput{}, nil
//	}
//
//	driver := tablemap.NewDynamoDriver(mock)
//
// # Record Builders
//
//	user := tablemock.NewRecord().WithID("u1").With("name", "ada").Build()
//	post := tablemock.NewRecord(
//		tablemock.WithID("p1"),
//		tablemock.WithRef("userId", user),
//	).Build()
//
// # Local DynamoDB
//
//	tablemock.RunIntegrationTest(t, nil, func(driver *tablemap.DynamoDriver, db string) {
//		adapter := tablemap.New(driver, tablemap.WithDB(db))
//		// Your integration test code here
//	})
//
// # Test Data Seeding
//
//	seeder := tablemock.NewSeeder(adapter, user, post)
//	n, err := seeder.SeedFromJSON(ctx, strings.NewReader(fixtures))
package tablemock
