package http

import (
	"context"
	"database/sql"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/campusride/ridechat-server/internal/auth"
	"github.com/campusride/ridechat-server/internal/config"
	"github.com/campusride/ridechat-server/internal/core"
	"github.com/campusride/ridechat-server/internal/store"
	"github.com/campusride/ridechat-server/internal/store/sqlite"
)

const testJWTSecret = "test-secret"

// createTestStore creates an in-memory SQLite store with schema and two
// seeded rides.
func createTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", func(db *sql.DB) error {
		if _, err := db.Exec(sqlite.Schema); err != nil {
			return err
		}
		seed := `
		INSERT INTO rides (id, driver_id, origin, destination) VALUES
			('ride-42', 'u-driver', 'campus', 'downtown'),
			('ride-7',  'u-other',  'campus', 'airport');
		INSERT INTO ride_passengers (ride_id, user_id) VALUES
			('ride-42', 'u-passenger');
		`
		_, err := db.Exec(seed)
		return err
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return st
}

func testJWTConfig() *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(testJWTSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}
}

// createTestVerifier creates an identity verifier for testing.
func createTestVerifier(t *testing.T) *auth.Verifier {
	t.Helper()
	return auth.NewVerifier(testJWTConfig(), time.Second)
}

// testToken mints a credential the test verifier accepts.
func testToken(t *testing.T, userID, name string) string {
	t.Helper()

	token, err := auth.GenerateToken(testJWTConfig(), userID, name)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return token
}

// startTestServer wires store, hub and router and returns the running
// test server plus the store for direct seeding.
func startTestServer(t *testing.T, mutate func(*config.Config)) (*httptest.Server, store.Store) {
	t.Helper()

	st := createTestStore(t)
	verifier := createTestVerifier(t)
	disabledLogger := zerolog.Nop()

	cfg := config.Default()
	cfg.JWTSecret = testJWTSecret
	cfg.AuthTimeout = 2 * time.Second
	cfg.StoreTimeout = 2 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	hub := core.NewHub(st, st, nil, core.HubConfig{
		RequireMembership: cfg.RequireRideMembership,
		StoreTimeout:      cfg.StoreTimeout,
		MaxMessageLen:     cfg.MaxMessageLength,
	}, &disabledLogger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	server := NewServer(hub, verifier, st, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return ts, st
}
