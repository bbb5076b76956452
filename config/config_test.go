package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutEnvFile(t *testing.T) {
	config, err := load(viper.New(), filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 8280, config.ServerPort)
	assert.Equal(t, CacheBackendMemory, config.RequirementsCacheBackend)
	assert.Equal(t, 5*time.Minute, config.RequirementsCacheTTL)
	assert.Equal(t, 70.0, config.CompletionThreshold)
	assert.Equal(t, 3, config.DACMaxAttempts)
	assert.Equal(t, []string{"passport", "personalInfo", "travelInfo"}, config.Sections())
	assert.False(t, config.IsProduction())
}

func TestLoad_EnvFileAndEnvironmentOverride(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := "DATABASE_DB_PATH=/tmp/entries.db\nREQUIREMENTS_CACHE_TTL=90s\nCOMPLETION_THRESHOLD=80\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))

	t.Setenv("COMPLETION_THRESHOLD", "65")
	t.Setenv("REQUIRED_SECTIONS", " passport , travelInfo ,")

	config, err := load(viper.New(), envFile)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/entries.db", config.DatabaseDbPath)
	assert.Equal(t, 90*time.Second, config.RequirementsCacheTTL)
	assert.Equal(t, 65.0, config.CompletionThreshold)
	assert.Equal(t, []string{"passport", "travelInfo"}, config.Sections())
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		contains string
	}{
		{
			name:     "unknown cache backend",
			env:      map[string]string{"REQUIREMENTS_CACHE_BACKEND": "memcached"},
			contains: "unknown REQUIREMENTS_CACHE_BACKEND",
		},
		{
			name:     "valkey backend without address",
			env:      map[string]string{"REQUIREMENTS_CACHE_BACKEND": "valkey"},
			contains: "requires DATABASE_CACHE_ADDRESS",
		},
		{
			name:     "threshold out of range",
			env:      map[string]string{"COMPLETION_THRESHOLD": "120"},
			contains: "COMPLETION_THRESHOLD",
		},
		{
			name:     "no submission attempts",
			env:      map[string]string{"DAC_MAX_ATTEMPTS": "0"},
			contains: "DAC_MAX_ATTEMPTS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			_, err := load(viper.New(), filepath.Join(t.TempDir(), "missing.env"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}
