package serve

import (
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/phantom/cmd/util"
	"github.com/ValentinKolb/phantom/lib/recordstore/sqlstore"
	"github.com/ValentinKolb/phantom/rpc/common"
)

func remoteConfig(timeout time.Duration) serveConfig {
	return serveConfig{
		DB:      sqlstore.Config{Driver: "sqlite", DSN: ":memory:"},
		Backend: BackendRemote,
		Remote: common.ClientConfig{
			Timeout:   timeout,
			Transport: common.ClientTransportConfig{Endpoints: []string{"localhost:8081"}},
		},
	}
}

func TestValidate(t *testing.T) {
	noEndpoints := remoteConfig(util.DefaultCacheTimeout)
	noEndpoints.Remote.Transport.Endpoints = nil

	tests := []struct {
		name    string
		config  serveConfig
		wantErr string
	}{
		{name: "local", config: serveConfig{DB: sqlstore.Config{DSN: "phantom.db"}, Backend: BackendLocal}},
		{name: "none", config: serveConfig{DB: sqlstore.Config{DSN: "phantom.db"}, Backend: BackendNone}},
		{name: "remote with default timeout", config: remoteConfig(util.DefaultCacheTimeout)},
		{name: "remote without timeout", config: remoteConfig(0), wantErr: "cache-timeout"},
		{name: "remote with negative timeout", config: remoteConfig(-time.Second), wantErr: "cache-timeout"},
		{name: "remote without endpoints", config: noEndpoints, wantErr: "cache-endpoints"},
		{name: "unknown backend", config: serveConfig{DB: sqlstore.Config{DSN: "phantom.db"}, Backend: "redis"}, wantErr: "invalid cache backend"},
		{name: "empty dsn", config: serveConfig{Backend: BackendLocal}, wantErr: "db-dsn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRedact(t *testing.T) {
	tests := map[string]string{
		"postgres://user:secret@db/phantom":     "postgres://user:***@db/phantom",
		"host=db user=phantom password=hunter2": "host=db user=phantom password=***",
		"phantom.db":                            "phantom.db",
		"postgres://db/phantom?sslmode=disable": "postgres://db/phantom?sslmode=disable",
	}
	for in, want := range tests {
		if got := redact(in); got != want {
			t.Errorf("redact(%q) = %q, want %q", in, got, want)
		}
	}
}
