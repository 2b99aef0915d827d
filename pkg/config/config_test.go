package config

import (
	"runtime"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	for k, v := range env {
		t.Setenv(k, v)
	}
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return decode(v)
}

func TestDefaults(t *testing.T) {
	cfg, err := load(t, nil)
	require.NoError(t, err)

	assert.Equal(t, "8082", cfg.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 50000, cfg.SalaryCap)
	assert.Zero(t, cfg.RNGSeed)
	assert.Equal(t, runtime.NumCPU(), cfg.WorkerPoolSize)
	assert.Equal(t, 1000, cfg.MaxLineups)
	assert.Equal(t, 60*time.Second, cfg.GenerationTimeout)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 24*time.Hour, cfg.LineupTTL)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, 5.0, cfg.RateLimitRPS)
	assert.Equal(t, 10, cfg.RateLimitBurst)

	d, err := cfg.Defaults()
	require.NoError(t, err)
	assert.Equal(t, 0.3, d.MonteCarlo.Randomness)
	assert.Equal(t, 64, d.MonteCarlo.IterationsPerLineup)
	assert.Equal(t, 100, d.Genetic.PopulationSize)
	assert.Equal(t, 0.98, d.Annealing.CoolingRate)
	assert.Equal(t, 2000, d.Annealing.MaxProposals)
}

func TestEnvironmentOverrides(t *testing.T) {
	cfg, err := load(t, map[string]string{
		"ENV":                "production",
		"SALARY_CAP":         "60000",
		"RNG_SEED":           "42",
		"WORKER_POOL_SIZE":   "3",
		"SESSION_TTL":        "15m",
		"MC_RANDOMNESS":      "0.5",
		"GA_GENERATIONS":     "80",
		"SA_MAX_PROPOSALS":   "500",
		"CORS_ORIGINS":       "https://a.example,https://b.example",
		"GENERATION_TIMEOUT": "5s",
	})
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, uint64(42), cfg.RNGSeed)
	assert.Equal(t, 3, cfg.WorkerPoolSize)
	assert.Equal(t, 15*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 5*time.Second, cfg.GenerationTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CorsOrigins)

	d, err := cfg.Defaults()
	require.NoError(t, err)
	assert.Equal(t, 60000, d.SalaryCap)
	assert.Equal(t, 0.5, d.MonteCarlo.Randomness)
	assert.Equal(t, 0.5, d.Genetic.Seeding.Randomness)
	assert.Equal(t, 80, d.Genetic.Generations)
	assert.Equal(t, 500, d.Annealing.MaxProposals)
}

func TestInvalidSamplerSettings(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"randomness out of range", map[string]string{"MC_RANDOMNESS": "0.95"}},
		{"population too small", map[string]string{"GA_POPULATION_SIZE": "10"}},
		{"cooling rate of one", map[string]string{"SA_COOLING_RATE": "1"}},
		{"negative salary cap", map[string]string{"SALARY_CAP": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.env)
			assert.Error(t, err)
		})
	}
}
