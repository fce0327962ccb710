package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skryldev/storefront/api"
	"github.com/Skryldev/storefront/cache"
	"github.com/Skryldev/storefront/db"
	"github.com/Skryldev/storefront/identity"
	"github.com/Skryldev/storefront/metrics"
	"github.com/Skryldev/storefront/migrations"
	"github.com/Skryldev/storefront/models"
	"github.com/Skryldev/storefront/repo"
)

var secret = []byte("api-test-secret")

type recordingPublisher struct {
	mu     sync.Mutex
	orders []*models.Order
	err    error
}

func (p *recordingPublisher) PublishOrderCreated(_ context.Context, o *models.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.orders = append(p.orders, o)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []*models.Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*models.Order(nil), p.orders...)
}

type fixture struct {
	t      *testing.T
	db     *db.DB
	router http.Handler
	redis  *miniredis.Miniredis
	events *recordingPublisher

	categories repo.CategoryRepository
	products   repo.ProductRepository
	orders     repo.OrderRepository
	users      repo.UserRepository
}

// newFixture builds the full router over an in-memory SQLite store and a
// miniredis instance. mutate may replace any dependency before wiring.
func newFixture(t *testing.T, mutate ...func(*api.Deps, *redis.Client)) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := metrics.New()
	d, err := db.OpenWithDriver("sqlite3", db.DriverOptions{Database: ":memory:"}, db.Config{
		MaxOpenConns: 1,
		Hooks:        []db.Hook{db.NewMetricsHook(m)},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, migrations.Up(d.Raw(), "sqlite3"))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{
		t:          t,
		db:         d,
		redis:      mr,
		events:     &recordingPublisher{},
		categories: repo.NewCategoryRepo(d),
		products:   repo.NewProductRepo(d),
		orders:     repo.NewOrderRepo(d),
		users:      repo.NewUserRepo(d),
	}

	svc, err := identity.NewService(f.users, identity.Options{
		Secret:   secret,
		TokenTTL: time.Hour,
		HashCost: bcrypt.MinCost,
		Logger:   logger,
	})
	require.NoError(t, err)

	deps := api.Deps{
		Store:        d,
		Categories:   f.categories,
		Products:     f.products,
		Orders:       f.orders,
		Identity:     svc,
		ProductCache: cache.NewProducts(cache.NewRedis(client), time.Minute, logger),
		AuthLimiter:  cache.NewRedisLimiter(client, "rate_limit:", 1000, time.Minute),
		Events:       f.events,
		Metrics:      m,
		Logger:       logger,
	}
	for _, m := range mutate {
		m(&deps, client)
	}
	f.router = api.NewRouter(deps)
	return f
}

func bearer(token string) string { return "Bearer " + token }

// do sends a request. body may be nil, a raw string, or any value to be
// encoded as JSON. auth is the full Authorization header value.
func (f *fixture) do(method, path string, body any, auth string) *httptest.ResponseRecorder {
	f.t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(f.t, err)
		r = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst), w.Body.String())
}

func bodyMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	decode(t, w, &m)
	return m
}

// register creates a user through the API and returns its token and id.
func (f *fixture) register(email string) (string, int64) {
	f.t.Helper()
	w := f.do(http.MethodPost, "/user/register", map[string]any{
		"name": "Test", "email": email, "password": "secret123",
	}, "")
	require.Equal(f.t, http.StatusCreated, w.Code, w.Body.String())

	var out struct{ Token string }
	decode(f.t, w, &out)
	u, err := f.users.GetByEmail(context.Background(), email)
	require.NoError(f.t, err)
	return out.Token, u.ID
}

func (f *fixture) count(table string) int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.db.QueryRow(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func (f *fixture) seedCategory(name string) int64 {
	f.t.Helper()
	c, err := f.categories.Insert(context.Background(), models.CreateCategoryParams{Name: name})
	require.NoError(f.t, err)
	return c.ID
}

// signToken signs a token outside the identity service, for forged and
// expired cases.
func signToken(t *testing.T, key []byte, userID int64, expires time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(expires.Add(-time.Hour)),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return s
}
