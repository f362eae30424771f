package http

import (
	"context"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat/internal/admin"
	"github.com/vovakirdan/linechat/internal/auth"
	"github.com/vovakirdan/linechat/internal/chat"
	"github.com/vovakirdan/linechat/internal/config"
	"github.com/vovakirdan/linechat/internal/core"
	"github.com/vovakirdan/linechat/internal/metrics"
	"github.com/vovakirdan/linechat/internal/store"
	"github.com/vovakirdan/linechat/internal/store/sqlite"
)

const (
	testSecret        = "testsecret"
	testAdminName     = "root"
	testAdminPassword = "rootpw"
)

// createTestStore creates an in-memory SQLite store with schema applied.
func createTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testJWTConfig() *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(testSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
}

// createTestAuthService creates an auth service with one admin account.
func createTestAuthService(t *testing.T, st store.Store) *auth.Service {
	t.Helper()

	svc := auth.NewService(st, testJWTConfig())
	if _, err := svc.EnsureUser(context.Background(), testAdminName, testAdminPassword, true); err != nil {
		t.Fatalf("failed to create admin: %v", err)
	}
	return svc
}

type testServer struct {
	*httptest.Server
	registry  *core.Registry
	auth      *auth.Service
	shutdowns atomic.Int32
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := zerolog.New(nil)
	st := createTestStore(t)
	authSvc := createTestAuthService(t, st)

	m := metrics.New()
	registry := core.NewRegistry()
	m.RegisterOnline(registry.Count)
	broadcaster := core.NewBroadcaster(registry, &logger, m)
	processor := admin.NewProcessor(registry, broadcaster, st, &logger, m)
	handler := chat.NewHandler(registry, broadcaster, processor, authSvc, chat.Options{}, &logger)
	handler.Metrics = m

	ts := &testServer{registry: registry, auth: authSvc}
	server := NewServer(Deps{
		Chat:       handler,
		Auth:       authSvc,
		Processor:  processor,
		Metrics:    m,
		OnShutdown: func() { ts.shutdowns.Add(1) },
	}, &config.Config{
		HTTPAddr:          ":0",
		ReadHeaderTimeout: time.Second,
	}, &logger)

	ts.Server = httptest.NewServer(server.Handler)
	t.Cleanup(func() {
		registry.Clear("")
		ts.Close()
	})
	return ts
}
