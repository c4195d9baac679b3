package protocol

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	params, err := cfg.Params()
	require.NoError(t, err)
	require.Equal(t, 256, params.Lambda())
	require.Equal(t, time.Minute, cfg.EpochDuration.Std())
}

func TestDurationJSON(t *testing.T) {
	type holder struct {
		D Duration `json:"d"`
	}

	serialized, err := json.Marshal(holder{D: Duration(90 * time.Second)})
	require.NoError(t, err)
	require.JSONEq(t, `{"d":"1m30s"}`, string(serialized))

	var parsed holder
	require.NoError(t, json.Unmarshal([]byte(`{"d":"45s"}`), &parsed))
	require.Equal(t, 45*time.Second, parsed.D.Std())

	require.Error(t, json.Unmarshal([]byte(`{"d":45}`), &parsed))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("ell: 8\nchunks: 4\nepsilon: 3\nepoch_duration: 30s\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Ell)
	require.Equal(t, 4, cfg.Chunks)
	require.Equal(t, 3, cfg.Epsilon)
	require.Equal(t, 30*time.Second, cfg.EpochDuration.Std())
}

func TestLoadConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("epsilon: 4\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 16, cfg.Ell)
	require.Equal(t, 16, cfg.Chunks)
	require.Equal(t, 4, cfg.Epsilon)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("epsilon: 99\n"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
