package systemtest

import (
	"context"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	apihttp "github.com/accessdesk/credpool/internal/api/http"
	"github.com/accessdesk/credpool/internal/audit"
	"github.com/accessdesk/credpool/internal/auth"
	"github.com/accessdesk/credpool/internal/db"
	"github.com/accessdesk/credpool/internal/inventory"
	"github.com/accessdesk/credpool/internal/pool"
	"github.com/accessdesk/credpool/internal/secrets"
	"github.com/accessdesk/credpool/internal/users"
	"github.com/accessdesk/credpool/systemtest/postgres"
	"github.com/accessdesk/credpool/systemtest/tests"
)

const (
	testJWTSecret = "systemtest-jwt-secret"
	testAPIKey    = "systemtest-admin-key"
	// 32 bytes, hex encoded. Test fixture only.
	testMasterKey = "6368616e676520746869732070617373776f726420746f206120736563726574"
)

// TestSystemIntegration runs the whole API against a real Postgres, since the
// allocator's concurrency guarantees live in the database's row locking and
// cannot be exercised against a fake.
func TestSystemIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping system test in short mode")
	}

	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	container, dbURL, err := postgres.StartPostgres(ctx, "credpool", "credpool", "credpool")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := postgres.TerminatePostgres(context.Background(), container); err != nil {
			t.Logf("terminate postgres: %v", err)
		}
	})

	require.NoError(t, db.RunMigrations(dbURL, ""))

	pgPool, err := db.InitDB(ctx, db.Config{URL: dbURL, MaxConns: 25})
	require.NoError(t, err)
	t.Cleanup(pgPool.Close)

	key, err := secrets.ParseKey(testMasterKey)
	require.NoError(t, err)
	cipher := secrets.NewCipher(key)

	recorder := audit.NewRecorder(pgPool, nil)
	srvs := &apihttp.Services{
		Auth:      auth.NewService(pgPool, auth.Config{JWTSecret: testJWTSecret, TokenExpiry: time.Hour}),
		Users:     users.NewService(pgPool),
		Pool:      pool.NewService(pool.NewStore(pgPool), recorder, 0),
		Inventory: inventory.NewService(pgPool, cipher, recorder),
		Recorder:  recorder,
		Cipher:    cipher,
		DB:        pgPool,
		JWTSecret: testJWTSecret,
	}

	engine := gin.New()
	apihttp.SetupRoute(ctx, engine, apihttp.Config{AdminAPIKey: testAPIKey}, srvs)

	t.Run("HealthCheck", func(t *testing.T) { tests.TestHealthCheck(t, engine) })
	t.Run("Register", func(t *testing.T) { tests.TestRegister(t, engine) })
	t.Run("Login", func(t *testing.T) { tests.TestLogin(t, engine, testJWTSecret) })
	t.Run("UserAdmin", func(t *testing.T) { tests.TestUserAdmin(t, engine) })
	t.Run("Inventory", func(t *testing.T) { tests.TestInventory(t, engine, testAPIKey) })
	t.Run("AllocationLifecycle", func(t *testing.T) { tests.TestAllocationLifecycle(t, engine, testAPIKey) })
	t.Run("AllOrNothing", func(t *testing.T) { tests.TestAllOrNothing(t, engine, testAPIKey) })
	t.Run("ReleaseRetired", func(t *testing.T) { tests.TestReleaseRetired(t, engine, testAPIKey) })
	t.Run("ContendedAllocation", func(t *testing.T) { tests.TestContendedAllocation(t, engine, testAPIKey) })
	t.Run("ParallelSingles", func(t *testing.T) { tests.TestParallelSingles(t, engine, testAPIKey) })
	t.Run("AuditTrail", func(t *testing.T) { tests.TestAuditTrail(t, engine, testAPIKey) })
}
