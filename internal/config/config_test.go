package config

import (
	"os"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// envMu serializes tests that mutate process environment variables;
// t.Parallel is never used in this file for that reason.
var envMu sync.Mutex

// withEnv sets vars for the duration of fn, restoring the previous
// values (or unsetting) afterward.
func withEnv(t *testing.T, vars map[string]string, fn func()) {
	envMu.Lock()
	defer envMu.Unlock()

	prev := make(map[string]string, len(vars))
	hadPrev := make(map[string]bool, len(vars))
	for k, v := range vars {
		if old, ok := os.LookupEnv(k); ok {
			prev[k] = old
			hadPrev[k] = true
		}
		require.NoError(t, os.Setenv(k, v))
	}
	defer func() {
		for k := range vars {
			if hadPrev[k] {
				_ = os.Setenv(k, prev[k])
			} else {
				_ = os.Unsetenv(k)
			}
		}
	}()

	fn()
}

func TestLoadValidConfig(t *testing.T) {
	withEnv(t, map[string]string{"GRPC_PORT": "50051", "RUST_LOG": "debug"}, func() {
		cfg, err := Load()
		require.NoError(t, err)
		assert.EqualValues(t, 50051, cfg.GRPCPort)
		assert.Equal(t, "debug", cfg.LogLevel)
	})
}

func TestLoadMissingPort(t *testing.T) {
	envMu.Lock()
	old, had := os.LookupEnv("GRPC_PORT")
	_ = os.Unsetenv("GRPC_PORT")
	envMu.Unlock()
	defer func() {
		if had {
			_ = os.Setenv("GRPC_PORT", old)
		}
	}()

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, "GRPC_PORT is required", err.Error())
}

func TestLoadInvalidPort(t *testing.T) {
	withEnv(t, map[string]string{"GRPC_PORT": "not-a-number"}, func() {
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "GRPC_PORT must be a valid port number (got 'not-a-number':")
	})
}

func TestLoadPortOutOfRange(t *testing.T) {
	withEnv(t, map[string]string{"GRPC_PORT": "0"}, func() {
		_, err := Load()
		require.Error(t, err)
		assert.Equal(t, "GRPC_PORT must be between 1 and 65535 (got 0)", err.Error())
	})
}

func TestLoadPortAboveRange(t *testing.T) {
	withEnv(t, map[string]string{"GRPC_PORT": "70000"}, func() {
		_, err := Load()
		require.Error(t, err)
		assert.Equal(t, "GRPC_PORT must be between 1 and 65535 (got 70000)", err.Error())
	})
}

func TestLoadRustLogDefault(t *testing.T) {
	envMu.Lock()
	old, had := os.LookupEnv("RUST_LOG")
	_ = os.Unsetenv("RUST_LOG")
	envMu.Unlock()
	defer func() {
		if had {
			_ = os.Setenv("RUST_LOG", old)
		}
	}()

	withEnv(t, map[string]string{"GRPC_PORT": "50051"}, func() {
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "info", cfg.LogLevel)
	})
}

func TestLoadPortEdgeCases(t *testing.T) {
	for _, port := range []string{"1", "65535", "8080"} {
		port := port
		t.Run(port, func(t *testing.T) {
			withEnv(t, map[string]string{"GRPC_PORT": port}, func() {
				cfg, err := Load()
				require.NoError(t, err)
				assert.Equal(t, port, strconv.FormatUint(uint64(cfg.GRPCPort), 10))
			})
		})
	}
}
