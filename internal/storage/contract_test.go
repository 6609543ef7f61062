package storage_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"crm-pipeline-api/internal/domain"
	"crm-pipeline-api/internal/handler"
	"crm-pipeline-api/internal/storage"
	"crm-pipeline-api/internal/storage/kv"
)

const testAPIKey = "test-internal-key"

type adapterCase struct {
	name    string
	factory func(t *testing.T) storage.Factory
}

func embeddedFactory(t *testing.T) storage.Factory {
	return storage.EmbeddedFactory(kv.NewMemoryStore(), zap.NewNop(), nil)
}

// storeServer serves the remote protocol over an embedded in-memory store
func storeServer(t *testing.T, backing storage.Factory) *httptest.Server {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	handler.NewStoreHandler(backing, testAPIKey, zap.NewNop()).RegisterRoutes(engine.Group("/store"))
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return srv
}

func remoteFactory(t *testing.T) storage.Factory {
	srv := storeServer(t, embeddedFactory(t))
	return storage.RemoteFactory(storage.RemoteConfig{
		BaseURL: srv.URL,
		APIKey:  testAPIKey,
		Timeout: 5 * time.Second,
	}, zap.NewNop(), nil)
}

func setupEntityDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every pooled connection to :memory: would open a separate database
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.EntityRecord{}))
	return db
}

func relationalFactory(t *testing.T) storage.Factory {
	return storage.RelationalFactory(setupEntityDB(t), zap.NewNop(), nil)
}

var adapterCases = []adapterCase{
	{"embedded", embeddedFactory},
	{"remote", remoteFactory},
	{"relational", relationalFactory},
}

func TestAdapterContract(t *testing.T) {
	for _, ac := range adapterCases {
		t.Run(ac.name, func(t *testing.T) {
			factory := ac.factory(t)
			t.Run("connection", func(t *testing.T) {
				assert.NoError(t, factory("acme").TestConnection(context.Background()))
			})
			t.Run("round trip", func(t *testing.T) { testRoundTrip(t, factory("acme")) })
			t.Run("update merges", func(t *testing.T) { testUpdateMerges(t, factory("acme")) })
			t.Run("not found", func(t *testing.T) { testNotFound(t, factory("acme")) })
			t.Run("stages and stats", func(t *testing.T) { testStagesAndStats(t, factory("acme")) })
			t.Run("pagination", func(t *testing.T) { testPagination(t, factory("acme")) })
			t.Run("tenant isolation", func(t *testing.T) { testTenantIsolation(t, factory) })
		})
	}
}

func testRoundTrip(t *testing.T, a storage.Adapter) {
	ctx := context.Background()

	created, err := a.Create(ctx, "leads", storage.EntityInput{
		Data: map[string]interface{}{"name": "John", "email": "john@example.com"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, storage.DefaultStage, created.Stage)
	assert.True(t, created.CreatedAt.Equal(created.UpdatedAt))

	got, err := a.GetByID(ctx, "leads", created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.Stage, got.Stage)
	assert.Equal(t, created.Data, got.Data)
	assert.True(t, got.CreatedAt.Equal(got.UpdatedAt))
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))

	withStage, err := a.Create(ctx, "leads", storage.EntityInput{Stage: "qualified", Data: map[string]interface{}{}})
	require.NoError(t, err)
	assert.Equal(t, "qualified", withStage.Stage)
}

func testUpdateMerges(t *testing.T, a storage.Adapter) {
	ctx := context.Background()

	created, err := a.Create(ctx, "deals", storage.EntityInput{
		Data: map[string]interface{}{"name": "Big deal", "owner": "ann", "temp": "x"},
	})
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	updated, err := a.Update(ctx, "deals", created.ID, storage.EntityPatch{
		Data: map[string]interface{}{"owner": "bob", "temp": nil},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"name": "Big deal", "owner": "bob"}, updated.Data)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
	assert.True(t, updated.CreatedAt.Equal(created.CreatedAt))

	moved, err := a.MoveStage(ctx, "deals", created.ID, "won")
	require.NoError(t, err)
	assert.Equal(t, "won", moved.Stage)
	assert.Equal(t, "bob", moved.Data["owner"])

	got, err := a.GetByID(ctx, "deals", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "won", got.Stage)
	assert.Equal(t, map[string]interface{}{"name": "Big deal", "owner": "bob"}, got.Data)
}

func testNotFound(t *testing.T, a storage.Adapter) {
	ctx := context.Background()

	_, err := a.GetByID(ctx, "leads", "missing")
	assert.ErrorIs(t, err, storage.ErrEntityNotFound)

	_, err = a.Update(ctx, "leads", "missing", storage.EntityPatch{Data: map[string]interface{}{"a": "b"}})
	assert.ErrorIs(t, err, storage.ErrEntityNotFound)

	_, err = a.MoveStage(ctx, "leads", "missing", "won")
	assert.ErrorIs(t, err, storage.ErrEntityNotFound)

	assert.ErrorIs(t, a.Delete(ctx, "leads", "missing"), storage.ErrEntityNotFound)

	created, err := a.Create(ctx, "leads", storage.EntityInput{Data: map[string]interface{}{"name": "Gone"}})
	require.NoError(t, err)
	require.NoError(t, a.Delete(ctx, "leads", created.ID))
	_, err = a.GetByID(ctx, "leads", created.ID)
	assert.ErrorIs(t, err, storage.ErrEntityNotFound)
}

func testStagesAndStats(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	stages := []string{"new", "new", "contacted", "won", "new"}
	for i, s := range stages {
		_, err := a.Create(ctx, "tickets", storage.EntityInput{Stage: s, Data: map[string]interface{}{"n": fmt.Sprint(i)}})
		require.NoError(t, err)
	}

	stats, err := a.GetStats(ctx, "tickets")
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, map[string]int{"new": 3, "contacted": 1, "won": 1}, stats.ByStage)

	byStage, err := a.GetByStage(ctx, "tickets", "new")
	require.NoError(t, err)
	assert.Len(t, byStage, 3)

	none, err := a.GetByStage(ctx, "tickets", "lost")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	empty, err := a.GetStats(ctx, "nothing")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Total)
	assert.Empty(t, empty.ByStage)
}

func testPagination(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	for i := 0; i < 60; i++ {
		_, err := a.Create(ctx, "students", storage.EntityInput{Data: map[string]interface{}{"seq": fmt.Sprintf("%02d", i)}})
		require.NoError(t, err)
	}

	page, err := a.GetAll(ctx, "students", storage.Filters{Page: 2, Limit: 25})
	require.NoError(t, err)
	assert.Len(t, page.Items, 25)
	assert.Equal(t, 60, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 25, page.Limit)

	sorted, err := a.GetAll(ctx, "students", storage.Filters{SortBy: "seq", SortOrder: storage.SortDesc, Limit: 3})
	require.NoError(t, err)
	require.Len(t, sorted.Items, 3)
	assert.Equal(t, "59", sorted.Items[0].Data["seq"])
	assert.Equal(t, "57", sorted.Items[2].Data["seq"])
}

func testTenantIsolation(t *testing.T, factory storage.Factory) {
	ctx := context.Background()
	acme, globex := factory("acme-iso"), factory("globex-iso")

	created, err := acme.Create(ctx, "leads", storage.EntityInput{Data: map[string]interface{}{"name": "Secret"}})
	require.NoError(t, err)

	_, err = globex.GetByID(ctx, "leads", created.ID)
	assert.ErrorIs(t, err, storage.ErrEntityNotFound)

	page, err := globex.GetAll(ctx, "leads", storage.Filters{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
}

// The same data and filters give the same answer on every backend
func TestAdapterEquivalence(t *testing.T) {
	ctx := context.Background()
	rows := []storage.EntityInput{
		{Stage: "new", Data: map[string]interface{}{"name": "Alice", "amount": 1200.0, "closeDate": "2024-03-01"}},
		{Stage: "contacted", Data: map[string]interface{}{"name": "Bob Alison", "amount": 50.0, "closeDate": "2024-04-10"}},
		{Stage: "won", Data: map[string]interface{}{"name": "Carol", "amount": 300.0, "closeDate": "2024-03-20"}},
		{Stage: "new", Data: map[string]interface{}{"name": "Dan", "closeDate": "garbage"}},
		{Stage: "lost", Data: map[string]interface{}{"name": "Eve", "amount": 75.5}},
	}
	from, _ := storage.ParseDateBound("2024-03-01", false)
	to, _ := storage.ParseDateBound("2024-03-31", true)

	queries := []storage.Filters{
		{},
		{Search: "ali"},
		{Stages: []string{"new", "won"}},
		{DateRange: &storage.DateRange{Field: "closeDate", From: from, To: to}},
		{SortBy: "amount", SortOrder: storage.SortDesc},
		{SortBy: "name", SortOrder: storage.SortAsc, Page: 2, Limit: 2},
		{Search: "a", Stages: []string{"new", "contacted"}, SortBy: "name"},
	}

	results := make(map[string][][]string)
	for _, ac := range adapterCases {
		a := ac.factory(t)("equiv")
		for _, r := range rows {
			_, err := a.Create(ctx, "leads", r)
			require.NoError(t, err)
		}
		for _, q := range queries {
			page, err := a.GetAll(ctx, "leads", q)
			require.NoError(t, err, ac.name)
			names := make([]string, 0, len(page.Items))
			for _, e := range page.Items {
				names = append(names, fmt.Sprint(e.Data["name"]))
			}
			if q.SortBy == "" {
				// default order depends on generated ids for equal timestamps
				sort.Strings(names)
			}
			names = append(names, fmt.Sprintf("total=%d pages=%d", page.Total, page.TotalPages))
			results[ac.name] = append(results[ac.name], names)
		}
	}

	assert.Equal(t, results["embedded"], results["remote"])
	assert.Equal(t, results["embedded"], results["relational"])
	assert.Equal(t, []string{"Alice", "Bob Alison", "total=2 pages=1"}, results["embedded"][1])
	assert.Equal(t, []string{"Alice", "Carol", "Eve", "Bob Alison", "Dan", "total=5 pages=1"}, results["embedded"][4])
}

func TestRemoteAdapter_TransportErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":{"code":"TRANSPORT_ERROR","message":"upstream down"}}`))
		}))
		defer srv.Close()

		a := storage.NewRemoteAdapter(storage.RemoteConfig{BaseURL: srv.URL, APIKey: testAPIKey}, "acme", nil, zap.NewNop(), nil)
		_, err := a.GetAll(ctx, "leads", storage.Filters{})
		require.Error(t, err)
		assert.True(t, storage.IsTransport(err))
		assert.NotErrorIs(t, err, storage.ErrEntityNotFound)
	})

	t.Run("unreachable host", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		a := storage.NewRemoteAdapter(storage.RemoteConfig{BaseURL: url, Timeout: time.Second}, "acme", nil, zap.NewNop(), nil)
		_, err := a.GetByID(ctx, "leads", "x")
		assert.True(t, storage.IsTransport(err))
		assert.True(t, storage.IsTransport(a.TestConnection(ctx)))
	})

	t.Run("garbage body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}))
		defer srv.Close()

		a := storage.NewRemoteAdapter(storage.RemoteConfig{BaseURL: srv.URL}, "acme", nil, zap.NewNop(), nil)
		_, err := a.GetStats(ctx, "leads")
		assert.True(t, storage.IsTransport(err))
	})

	t.Run("base url without a store", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		a := storage.NewRemoteAdapter(storage.RemoteConfig{BaseURL: srv.URL, APIKey: testAPIKey}, "acme", nil, zap.NewNop(), nil)
		err := a.TestConnection(ctx)
		assert.True(t, storage.IsTransport(err))
		assert.NotErrorIs(t, err, storage.ErrEntityNotFound)
	})

	t.Run("wrong api key", func(t *testing.T) {
		srv := storeServer(t, embeddedFactory(t))
		a := storage.NewRemoteAdapter(storage.RemoteConfig{BaseURL: srv.URL, APIKey: "nope"}, "acme", nil, zap.NewNop(), nil)
		err := a.TestConnection(ctx)
		assert.True(t, storage.IsTransport(err))
	})

	t.Run("bad request", func(t *testing.T) {
		srv := storeServer(t, embeddedFactory(t))
		a := storage.NewRemoteAdapter(storage.RemoteConfig{BaseURL: srv.URL, APIKey: testAPIKey}, "acme", nil, zap.NewNop(), nil)
		_, err := a.GetAll(ctx, "leads", storage.Filters{SortOrder: "sideways"})
		assert.ErrorIs(t, err, storage.ErrInvalidInput)
		assert.False(t, storage.IsTransport(err))
	})
}

func TestRemoteAdapter_SendsProtocolHeaders(t *testing.T) {
	var gotKey, gotCompany, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get(storage.HeaderAPIKey)
		gotCompany = r.Header.Get(storage.HeaderCompanyID)
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"items":null,"total":0,"page":1,"limit":10,"totalPages":0}}`))
	}))
	defer srv.Close()

	a := storage.NewRemoteAdapter(storage.RemoteConfig{BaseURL: srv.URL + "/", APIKey: "k"}, "acme", nil, zap.NewNop(), nil)
	page, err := a.GetAll(context.Background(), "leads", storage.Filters{Limit: 10, Stages: []string{"a", "b"}})
	require.NoError(t, err)

	assert.Equal(t, "k", gotKey)
	assert.Equal(t, "acme", gotCompany)
	assert.Equal(t, "limit=10&stage=a&stage=b", gotQuery)
	assert.NotNil(t, page.Items)
}

func TestEmbeddedAdapter_LastWriterWins(t *testing.T) {
	ctx := context.Background()
	a := storage.NewEmbeddedAdapter(kv.NewMemoryStore(), "acme", zap.NewNop(), nil)

	created, err := a.Create(ctx, "leads", storage.EntityInput{Data: map[string]interface{}{"owner": "ann"}})
	require.NoError(t, err)

	done := make(chan struct{})
	for _, owner := range []string{"bob", "cid"} {
		go func(owner string) {
			defer func() { done <- struct{}{} }()
			_, _ = a.Update(ctx, "leads", created.ID, storage.EntityPatch{Data: map[string]interface{}{"owner": owner}})
		}(owner)
	}
	<-done
	<-done

	got, err := a.GetByID(ctx, "leads", created.ID)
	require.NoError(t, err)
	assert.Contains(t, []interface{}{"bob", "cid"}, got.Data["owner"])
}

func TestEmbeddedAdapter_CompaniesWithSeparatorsStayIsolated(t *testing.T) {
	ctx := context.Background()
	factory := storage.EmbeddedFactory(kv.NewMemoryStore(), zap.NewNop(), nil)

	// "a:b"/"c" and "a"/"b:c" would share a collection under a plain join
	_, err := factory("a:b").Create(ctx, "c", storage.EntityInput{Data: map[string]interface{}{"name": "first"}})
	require.NoError(t, err)

	page, err := factory("a").GetAll(ctx, "b:c", storage.Filters{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)

	stats, err := factory("a:b").GetStats(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}

func TestRemoteAdapter_EntityTypeNamedHealth(t *testing.T) {
	ctx := context.Background()
	a := remoteFactory(t)("acme")

	created, err := a.Create(ctx, "health", storage.EntityInput{Data: map[string]interface{}{"name": "checkup"}})
	require.NoError(t, err)

	page, err := a.GetAll(ctx, "health", storage.Filters{})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, created.ID, page.Items[0].ID)

	got, err := a.GetByID(ctx, "health", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "checkup", got.Data["name"])

	assert.NoError(t, a.TestConnection(ctx))
}

func TestRemoteAdapter_TestConnectionPath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"status":"ok"}}`))
	}))
	defer srv.Close()

	a := storage.NewRemoteAdapter(storage.RemoteConfig{BaseURL: srv.URL, APIKey: "k"}, "acme", nil, zap.NewNop(), nil)
	require.NoError(t, a.TestConnection(context.Background()))
	assert.Equal(t, "/store/_health", gotPath)
}
