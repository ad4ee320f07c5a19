package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testViper(values map[string]string) *viper.Viper {
	v := newViper()
	for k, val := range values {
		v.Set(k, val)
	}
	return v
}

func TestDefaults(t *testing.T) {
	cfg, err := FromViper(testViper(map[string]string{"VERCEL": "", "DATA_DIR": ""}))
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, StoreFile, cfg.StoreDriver)
	assert.Equal(t, "./.data", cfg.DataDir)
	assert.Equal(t, 168*time.Hour, cfg.Retention)
	assert.Equal(t, time.Hour, cfg.SweepInterval)
}

func TestVercelUsesTmpDataDir(t *testing.T) {
	cfg, err := FromViper(testViper(map[string]string{"VERCEL": "1", "DATA_DIR": ""}))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/data", cfg.DataDir)
}

func TestPostgresRequiresDatabaseURL(t *testing.T) {
	_, err := FromViper(testViper(map[string]string{"STORE_DRIVER": "postgres", "DATABASE_URL": ""}))
	require.Error(t, err)

	cfg, err := FromViper(testViper(map[string]string{"STORE_DRIVER": "Postgres", "DATABASE_URL": "postgres://x"}))
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, cfg.StoreDriver)
}

func TestRejectsUnknownDriverAndBadDurations(t *testing.T) {
	_, err := FromViper(testViper(map[string]string{"STORE_DRIVER": "redis"}))
	require.Error(t, err)

	_, err = FromViper(testViper(map[string]string{"DUEL_RETENTION": "soon"}))
	require.Error(t, err)

	_, err = FromViper(testViper(map[string]string{"DUEL_SWEEP_INTERVAL": "0s"}))
	require.Error(t, err)
}
