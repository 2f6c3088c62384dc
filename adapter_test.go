package tablemap_test

import (
	"context"
	"errors"
	"testing"

	"github.com/nisimpson/tablemap"
	"github.com/nisimpson/tablemap/tablemock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw() *tablemap.Options {
	return &tablemap.Options{Raw: tablemap.Bool(true)}
}

func TestAdapterCreate(t *testing.T) {
	b := newBlog()
	ctx := context.Background()

	t.Run("provisions and inserts", func(t *testing.T) {
		adapter, driver := newAdapter(t)

		res, err := adapter.Create(ctx, b.user, tablemap.Record{"id": "u1", "name": "ada"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "ada", res.Data["name"])
		assert.Zero(t, res.Created, "counts are only reported for raw calls")
		assert.Nil(t, res.Native)

		assert.Equal(t, 1, driver.Calls(tablemock.OpCreateDatabase))
		assert.Equal(t, 1, driver.Calls(tablemock.OpCreateTable))
		assert.Len(t, driver.Rows(ref(b.user)), 1)
	})

	t.Run("generates a key", func(t *testing.T) {
		adapter, _ := newAdapter(t)

		res, err := adapter.Create(ctx, b.user, tablemap.Record{"name": "bob"}, raw())
		require.NoError(t, err)
		assert.NotEmpty(t, res.Data["id"])
		assert.Equal(t, 1, res.Created)
		require.NotNil(t, res.Native)
		assert.Equal(t, 1, res.Native.Inserted)
		assert.Equal(t, []any{res.Data["id"]}, res.Native.GeneratedKeys)
	})

	t.Run("duplicate key", func(t *testing.T) {
		adapter, driver := newAdapter(t)
		driver.Seed(ref(b.user), tablemap.Record{"id": "u1"})

		_, err := adapter.Create(ctx, b.user, tablemap.Record{"id": "u1"}, nil)

		var ne *tablemap.NativeError
		require.ErrorAs(t, err, &ne)
		assert.Equal(t, "create", ne.Op)
		assert.Contains(t, ne.Message, "Duplicate primary key")
	})

	t.Run("conflict option", func(t *testing.T) {
		adapter, driver := newAdapter(t)
		driver.Seed(ref(b.user), tablemap.Record{"id": "u1", "name": "ada", "age": 36})

		opts := &tablemap.Options{InsertOpts: tablemap.NativeOpts{tablemap.OptConflict: tablemap.ConflictReplace}}
		res, err := adapter.Create(ctx, b.user, tablemap.Record{"id": "u1", "name": "eve"}, opts)
		require.NoError(t, err)
		assert.Equal(t, tablemap.Record{"id": "u1", "name": "eve"}, res.Data)
	})

	t.Run("database override", func(t *testing.T) {
		adapter, driver := newAdapter(t)

		_, err := adapter.Create(ctx, b.user, tablemap.Record{"id": "u1"}, &tablemap.Options{DB: "other"})
		require.NoError(t, err)
		assert.Len(t, driver.Rows(tablemap.TableRef{DB: "other", Table: "user", Key: "id"}), 1)
		assert.Empty(t, driver.Rows(ref(b.user)))
	})
}

func TestAdapterCreateMany(t *testing.T) {
	b := newBlog()
	adapter, driver := newAdapter(t)

	res, err := adapter.CreateMany(context.Background(), b.post, []tablemap.Record{
		{"id": "p1"}, {"id": "p2"}, {"title": "untitled"},
	}, raw())
	require.NoError(t, err)
	assert.Len(t, res.Data, 3)
	assert.Equal(t, 3, res.Created)
	assert.Len(t, res.Native.GeneratedKeys, 1)
	assert.Len(t, driver.Rows(ref(b.post)), 3)
}

func TestAdapterFind(t *testing.T) {
	b := newBlog()
	adapter, driver := newAdapter(t)
	seedBlog(driver, b)
	ctx := context.Background()

	res, err := adapter.Find(ctx, b.user, "u1", raw())
	require.NoError(t, err)
	assert.Equal(t, "ada", res.Data["name"])
	assert.Equal(t, 1, res.Found)

	res, err = adapter.Find(ctx, b.user, "nobody", raw())
	require.NoError(t, err, "a missing record is not an error")
	assert.Nil(t, res.Data)
	assert.Zero(t, res.Found)
}

func TestAdapterFindAll(t *testing.T) {
	b := newBlog()
	adapter, driver := newAdapter(t)
	seedBlog(driver, b)
	ctx := context.Background()

	t.Run("query", func(t *testing.T) {
		q := tablemap.NewQuery().
			And("userId", tablemap.OpEqual, "u1").
			Or("userId", tablemap.OpEqual, "u2").
			Sort("title", tablemap.SortDescending)

		res, err := adapter.FindAll(ctx, b.post, q, raw())
		require.NoError(t, err)
		assert.Equal(t, []any{"p3", "p2", "p1"}, recordIDs(res.Data))
		assert.Equal(t, 3, res.Found)
	})

	t.Run("no match is an empty list", func(t *testing.T) {
		res, err := adapter.FindAll(ctx, b.post, tablemap.NewQuery().Equal("title", "none"), nil)
		require.NoError(t, err)
		assert.NotNil(t, res.Data)
		assert.Empty(t, res.Data)
	})

	t.Run("call operators", func(t *testing.T) {
		opts := &tablemap.Options{Operators: tablemap.Operators{
			"startsWith": func(field string, value any) tablemap.Filter {
				return &tablemap.Predicate{Field: "id", Operator: tablemap.OpIn, Value: []any{"p1", "p2"}}
			},
		}}
		res, err := adapter.FindAll(ctx, b.post, tablemap.NewQuery().And("title", "startsWith", "f"), opts)
		require.NoError(t, err)
		assert.Equal(t, []any{"p1", "p2"}, recordIDs(res.Data))
	})

	t.Run("adapter operators", func(t *testing.T) {
		custom, driver := newAdapter(t, tablemap.WithOperators(tablemap.Operators{tablemap.OpEqual: nil}))
		seedBlog(driver, b)

		res, err := custom.FindAll(ctx, b.post, tablemap.NewQuery().Equal("id", "p1"), nil)
		require.NoError(t, err)
		assert.Len(t, res.Data, 5, "a disabled operator selects everything")
	})

	t.Run("invalid query", func(t *testing.T) {
		_, err := adapter.FindAll(ctx, b.post, tablemap.NewQuery().Page(-1, 0), nil)
		assert.ErrorIs(t, err, tablemap.ErrInvalidQuery)
	})
}

func TestAdapterUpdate(t *testing.T) {
	b := newBlog()
	adapter, driver := newAdapter(t)
	seedBlog(driver, b)
	ctx := context.Background()

	res, err := adapter.Update(ctx, b.user, "u1", tablemap.Record{"name": "ada l."}, raw())
	require.NoError(t, err)
	assert.Equal(t, "ada l.", res.Data["name"])
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Native.Replaced)

	_, err = adapter.Update(ctx, b.user, "nobody", tablemap.Record{"name": "x"}, nil)
	assert.ErrorIs(t, err, tablemap.ErrNotFound)

	var nf *tablemap.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "nobody", nf.ID)
}

func TestAdapterUpdateAll(t *testing.T) {
	b := newBlog()
	adapter, driver := newAdapter(t)
	seedBlog(driver, b)

	res, err := adapter.UpdateAll(context.Background(), b.post, tablemap.Record{"published": true},
		tablemap.NewQuery().Equal("userId", "u1"), raw())
	require.NoError(t, err)
	assert.Equal(t, []any{"p1", "p2"}, recordIDs(res.Data))
	assert.Equal(t, 2, res.Updated)

	for _, p := range driver.Rows(ref(b.post)) {
		assert.Equal(t, p["userId"] == "u1", p["published"] == true, "post %v", p["id"])
	}
}

func TestAdapterUpdateMany(t *testing.T) {
	b := newBlog()
	adapter, driver := newAdapter(t)
	seedBlog(driver, b)

	res, err := adapter.UpdateMany(context.Background(), b.user, []tablemap.Record{
		{"id": "u1", "name": "ada l."},
		{"name": "no key"},
		{"id": "u2", "age": 40},
	}, raw())
	require.NoError(t, err)
	assert.Equal(t, []any{"u1", "u2"}, recordIDs(res.Data))
	assert.Equal(t, 2, res.Updated)

	rows := driver.Rows(ref(b.user))
	assert.Len(t, rows, 3, "records without a key are ignored")
	assert.Equal(t, "bob", rows[1]["name"], "fields not in the update are kept")
}

func TestAdapterDestroy(t *testing.T) {
	b := newBlog()
	adapter, driver := newAdapter(t)
	seedBlog(driver, b)
	ctx := context.Background()

	wr, err := adapter.Destroy(ctx, b.post, "p1", nil)
	require.NoError(t, err)
	assert.Nil(t, wr, "plain calls return no result")

	wr, err = adapter.Destroy(ctx, b.post, "p2", raw())
	require.NoError(t, err)
	assert.Equal(t, 1, wr.Deleted)

	wr, err = adapter.DestroyAll(ctx, b.post, tablemap.NewQuery().And("userId", tablemap.OpNotEqual, nil), raw())
	require.NoError(t, err)
	assert.Equal(t, 2, wr.Deleted)
	assert.Equal(t, []any{"p4"}, recordIDs(driver.Rows(ref(b.post))))

	wr, err = adapter.DestroyAll(ctx, b.post, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, wr)
	assert.Empty(t, driver.Rows(ref(b.post)))
}

func TestAdapterRawConfig(t *testing.T) {
	b := newBlog()
	adapter, driver := newAdapter(t, tablemap.WithRaw(true))
	seedBlog(driver, b)
	ctx := context.Background()

	res, err := adapter.Find(ctx, b.user, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Found)

	res, err = adapter.Find(ctx, b.user, "u1", &tablemap.Options{Raw: tablemap.Bool(false)})
	require.NoError(t, err)
	assert.Zero(t, res.Found, "the call option overrides the config")
}

func TestAdapterHooks(t *testing.T) {
	b := newBlog()
	ctx := context.Background()

	t.Run("replace input and output", func(t *testing.T) {
		var stages []string
		adapter, driver := newAdapter(t, tablemap.WithHooks(tablemap.Hooks{
			BeforeCreate: func(ctx context.Context, m *tablemap.Mapper, props tablemap.Record, opts *tablemap.Options) (tablemap.Record, error) {
				stages = append(stages, opts.Op())
				in := tablemap.CloneRecord(props)
				in["createdBy"] = "hook"
				return in, nil
			},
			AfterCreate: func(ctx context.Context, m *tablemap.Mapper, props tablemap.Record, opts *tablemap.Options, record tablemap.Record) (tablemap.Record, error) {
				stages = append(stages, opts.Op())
				return tablemap.Record{"wrapped": record["id"]}, nil
			},
			AfterFind: func(ctx context.Context, m *tablemap.Mapper, id any, opts *tablemap.Options, record tablemap.Record) (tablemap.Record, error) {
				return nil, nil
			},
		}))

		res, err := adapter.Create(ctx, b.user, tablemap.Record{"id": "u1"}, nil)
		require.NoError(t, err)
		assert.Equal(t, tablemap.Record{"wrapped": "u1"}, res.Data)
		assert.Equal(t, []string{"beforeCreate", "afterCreate"}, stages)
		assert.Equal(t, "hook", driver.Rows(ref(b.user))[0]["createdBy"])

		found, err := adapter.Find(ctx, b.user, "u1", nil)
		require.NoError(t, err)
		assert.Equal(t, "u1", found.Data["id"], "a nil hook result keeps the record")
	})

	t.Run("error aborts", func(t *testing.T) {
		denied := errors.New("denied")
		adapter, driver := newAdapter(t, tablemap.WithHooks(tablemap.Hooks{
			BeforeDestroyAll: func(context.Context, *tablemap.Mapper, *tablemap.Query, *tablemap.Options) error {
				return denied
			},
		}))
		seedBlog(driver, b)

		_, err := adapter.DestroyAll(ctx, b.post, nil, nil)
		assert.ErrorIs(t, err, denied)
		assert.Zero(t, driver.Calls(tablemock.OpDeleteWhere))
	})

	t.Run("after destroy sees the native result", func(t *testing.T) {
		var seen *tablemap.WriteResult
		adapter, driver := newAdapter(t, tablemap.WithHooks(tablemap.Hooks{
			AfterDestroy: func(ctx context.Context, m *tablemap.Mapper, id any, opts *tablemap.Options, wr *tablemap.WriteResult) (*tablemap.WriteResult, error) {
				seen = wr
				return nil, nil
			},
		}))
		seedBlog(driver, b)

		_, err := adapter.Destroy(ctx, b.post, "p1", nil)
		require.NoError(t, err)
		require.NotNil(t, seen)
		assert.Equal(t, 1, seen.Deleted)
	})
}

func TestAdapterSharedProvisioner(t *testing.T) {
	b := newBlog()
	driver := tablemock.NewMemoryDriver()
	shared := tablemap.NewProvisioner(driver, quietLogger())

	first := tablemap.New(driver, tablemap.WithProvisioner(shared), tablemap.WithLogger(quietLogger()))
	second := tablemap.New(driver, tablemap.WithProvisioner(shared), tablemap.WithLogger(quietLogger()))
	ctx := context.Background()

	_, err := first.Create(ctx, b.user, tablemap.Record{"id": "u1"}, nil)
	require.NoError(t, err)
	_, err = second.Find(ctx, b.user, "u1", nil)
	require.NoError(t, err)

	assert.Same(t, shared, second.Provisioner())
	assert.Equal(t, 1, driver.Calls(tablemock.OpListTables))
}

func TestAdapterProvisioningFailure(t *testing.T) {
	b := newBlog()
	adapter, driver := newAdapter(t)
	driver.FailWith = func(op string, _ tablemap.TableRef) error {
		if op == tablemock.OpListDatabases {
			return errors.New("unreachable")
		}
		return nil
	}

	_, err := adapter.FindAll(context.Background(), b.user, nil, nil)

	var pe *tablemap.ProvisioningError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "database", pe.Object)
	assert.Zero(t, driver.Calls(tablemock.OpScan))
}
