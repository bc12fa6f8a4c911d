package schema

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type mapLocator struct {
	mu    sync.Mutex
	docs  map[string]string
	reads map[string]int
}

func newMapLocator(docs map[string]string) *mapLocator {
	return &mapLocator{docs: docs, reads: map[string]int{}}
}

func (l *mapLocator) Read(_ context.Context, uri string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reads[uri]++
	doc, ok := l.docs[uri]
	if !ok {
		return nil, errors.Wrap(ErrResourceNotFound, uri)
	}
	return []byte(doc), nil
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *countingObserver) ObserveSchemaCache(_, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = map[string]int{}
	}
	o.counts[outcome]++
}

const usersDoc = `{"model":"users","table":"users","fields":{"id":{"type":"integer","autoIncrement":true},"user_name":{}}}`
const reportingUsersDoc = `{"model":"users","table":"report_users","fields":{"id":{"type":"integer"}}}`

func TestStore_ConnectionScopedFirst(t *testing.T) {
	loc := newMapLocator(map[string]string{
		"schema://crud6/users.json":              usersDoc,
		"schema://crud6/reporting_db/users.json": reportingUsersDoc,
	})
	st, err := NewStore(loc, "crud6")
	require.NoError(t, err)

	s, err := st.GetSchema(context.Background(), "users", "reporting_db")
	require.NoError(t, err)
	assert.Equal(t, "report_users", s.Table)
	assert.Equal(t, "reporting_db", s.Connection)

	def, err := st.GetSchema(context.Background(), "users", "")
	require.NoError(t, err)
	assert.Equal(t, "users", def.Table)
	assert.Empty(t, def.Connection)
	assert.Equal(t, 0, loc.reads["schema://crud6/default/users.json"])
}

func TestStore_FallsBackToNamespaceRoot(t *testing.T) {
	loc := newMapLocator(map[string]string{"schema://crud6/users.json": usersDoc})
	st, err := NewStore(loc, "crud6")
	require.NoError(t, err)

	s, err := st.GetSchema(context.Background(), "users", "archive")
	require.NoError(t, err)
	assert.Equal(t, "users", s.Table)
	assert.Empty(t, s.Connection)
	assert.Equal(t, 1, loc.reads["schema://crud6/archive/users.json"])
}

func TestStore_NotFound(t *testing.T) {
	st, err := NewStore(newMapLocator(nil), "crud6")
	require.NoError(t, err)

	_, err = st.GetSchema(context.Background(), "ghosts", "")
	assert.True(t, errors.Is(err, ErrSchemaNotFound))

	_, err = st.GetSchema(context.Background(), "../etc/passwd", "")
	assert.True(t, errors.Is(err, ErrSchemaNotFound))
}

func TestStore_Invalid(t *testing.T) {
	cases := map[string]string{
		"missing table":  `{"model":"bad","fields":{"id":{}}}`,
		"empty fields":   `{"model":"bad","table":"bad","fields":{}}`,
		"model mismatch": `{"model":"other","table":"bad","fields":{"id":{}}}`,
		"not json":       `{"model":`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			st, err := NewStore(newMapLocator(map[string]string{"schema://crud6/bad.json": doc}), "crud6")
			require.NoError(t, err)
			_, err = st.GetSchema(context.Background(), "bad", "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSchemaInvalid), "got %v", err)
			assert.False(t, st.Cached("bad", ""))
		})
	}
}

func TestStore_CachesAndClears(t *testing.T) {
	loc := newMapLocator(map[string]string{"schema://crud6/users.json": usersDoc})
	obs := &countingObserver{}
	st, err := NewStore(loc, "crud6", WithObserver(obs))
	require.NoError(t, err)
	ctx := context.Background()

	first, err := st.GetSchema(ctx, "users", "")
	require.NoError(t, err)
	second, err := st.GetSchema(ctx, "users", "default")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, loc.reads["schema://crud6/users.json"])
	assert.Equal(t, 1, obs.counts[CacheMiss])
	assert.Equal(t, 1, obs.counts[CacheHit])
	assert.NotEmpty(t, first.ETag())

	st.ClearCache("users", "")
	assert.False(t, st.Cached("users", ""))
	third, err := st.GetSchema(ctx, "users", "")
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, 2, loc.reads["schema://crud6/users.json"])

	st.ClearAll()
	assert.False(t, st.Cached("users", ""))
}

func TestStore_ClearModelDropsEveryConnection(t *testing.T) {
	loc := newMapLocator(map[string]string{
		"schema://crud6/users.json":              usersDoc,
		"schema://crud6/reporting_db/users.json": reportingUsersDoc,
		"schema://crud6/roles.json":              `{"model":"roles","table":"roles","fields":{"id":{}}}`,
	})
	st, err := NewStore(loc, "crud6")
	require.NoError(t, err)
	ctx := context.Background()
	for _, conn := range []string{"", "reporting_db"} {
		_, err := st.GetSchema(ctx, "users", conn)
		require.NoError(t, err)
	}
	_, err = st.GetSchema(ctx, "roles", "")
	require.NoError(t, err)

	st.ClearCache("users", "")
	assert.True(t, st.Cached("users", "reporting_db"))

	_, err = st.GetSchema(ctx, "users", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"users@default", "users@reporting_db"}, st.ClearModel("users"))
	assert.False(t, st.Cached("users", ""))
	assert.False(t, st.Cached("users", "reporting_db"))
	assert.True(t, st.Cached("roles", ""))
}

func TestStore_AttachWithoutRelatedIDIsRejected(t *testing.T) {
	st, err := NewStore(nil, "crud6")
	require.NoError(t, err)
	_, err = st.Parse([]byte(`{"model":"users","table":"users","fields":{"id":{}},
		"relationships":[{"name":"roles","type":"many_to_many","pivotTable":"role_users",
			"actions":{"onCreate":{"attach":[{"pivotData":{"assigned_at":"now"}}]}}}]}`), "users")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRelationship)
	assert.Contains(t, err.Error(), "relationships.roles.actions.on_create.attach[0]")
}

func TestStore_LogsDroppedRelationshipAttributes(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	st, err := NewStore(nil, "crud6", WithLogger(zap.New(core)))
	require.NoError(t, err)
	s, err := st.Parse([]byte(`{"model":"users","table":"users","fields":{"id":{}},
		"relationships":[{"name":"roles","type":"many_to_many","pivot_table":"role_users",
			"actions":{"on_update":{"sync":["role_ids"],"detach":"all"}}}]}`), "users")
	require.NoError(t, err)

	require.Len(t, s.Relationships, 1)
	set := s.Relationships[0].Actions.OnUpdate
	require.NotNil(t, set)
	assert.Empty(t, set.Sync)
	assert.True(t, set.Detach.All)

	entries := logs.FilterMessage("schema attribute dropped").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "relationships.roles.actions.on_update.sync", entries[0].ContextMap()["path"])
}

func TestStore_ConcurrentGet(t *testing.T) {
	loc := newMapLocator(map[string]string{"schema://crud6/users.json": usersDoc})
	st, err := NewStore(loc, "crud6")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := st.GetSchema(context.Background(), "users", "")
			assert.NoError(t, err)
			assert.Len(t, s.Fields, 2)
		}()
	}
	wg.Wait()
	assert.True(t, st.Cached("users", ""))
}

func TestStore_PersistentTier(t *testing.T) {
	cache, err := OpenBuntCache(":memory:")
	require.NoError(t, err)
	defer cache.Close()

	loc := newMapLocator(map[string]string{"schema://crud6/users.json": usersDoc})
	obs := &countingObserver{}
	st, err := NewStore(loc, "crud6", WithPersistentCache(cache, 0), WithObserver(obs))
	require.NoError(t, err)
	ctx := context.Background()

	loaded, err := st.GetSchema(ctx, "users", "")
	require.NoError(t, err)
	keys, err := cache.Keys("")
	require.NoError(t, err)
	assert.Equal(t, []string{"users@default"}, keys)

	// a fresh store sharing the persistent tier never reads the locator
	loc2 := newMapLocator(nil)
	st2, err := NewStore(loc2, "crud6", WithPersistentCache(cache, 0), WithObserver(obs))
	require.NoError(t, err)
	restored, err := st2.GetSchema(ctx, "users", "")
	require.NoError(t, err)
	assert.Equal(t, loaded.Fields, restored.Fields)
	assert.Equal(t, loaded.ETag(), restored.ETag())
	assert.Empty(t, loc2.reads)
	assert.Equal(t, 1, obs.counts[CachePersistentHit])

	st2.ClearAll()
	keys, err = cache.Keys("")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestFileLocator(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "crud6", "reporting_db"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "crud6", "users.json"), []byte(usersDoc), 0o644))

	loc := FileLocator{Root: root}
	data, err := loc.Read(context.Background(), "schema://crud6/users.json")
	require.NoError(t, err)
	assert.JSONEq(t, usersDoc, string(data))

	_, err = loc.Read(context.Background(), "schema://crud6/reporting_db/users.json")
	assert.True(t, errors.Is(err, ErrResourceNotFound))

	_, err = loc.Read(context.Background(), "schema://crud6/../secret.json")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrResourceNotFound))

	st, err := NewStore(loc, "crud6")
	require.NoError(t, err)
	s, err := st.GetSchema(context.Background(), "users", "reporting_db")
	require.NoError(t, err)
	assert.Equal(t, "users", s.Model)
}

func TestCandidateURIs(t *testing.T) {
	assert.Equal(t, []string{"schema://crud6/users.json"}, CandidateURIs("crud6", "", "users"))
	assert.Equal(t, []string{"schema://crud6/users.json"}, CandidateURIs("crud6", "default", "users"))
	assert.Equal(t, []string{
		"schema://crud6/db2/users.json",
		"schema://crud6/users.json",
	}, CandidateURIs("crud6", "db2", "users"))
}
