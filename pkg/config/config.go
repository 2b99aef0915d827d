package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/stitts-dev/dfs-sim/showdown/internal/optimizer"
)

type Config struct {
	// Server
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	// Logging
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// CORS
	CorsOrigins []string `mapstructure:"CORS_ORIGINS"`

	// Redis
	RedisURL                string        `mapstructure:"REDIS_URL"`
	LineupTTL               time.Duration `mapstructure:"LINEUP_TTL"`
	CircuitBreakerThreshold uint32        `mapstructure:"CIRCUIT_BREAKER_THRESHOLD"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"CIRCUIT_BREAKER_TIMEOUT"`

	// Optimization
	SalaryCap         int           `mapstructure:"SALARY_CAP"`
	RNGSeed           uint64        `mapstructure:"RNG_SEED"`
	WorkerPoolSize    int           `mapstructure:"WORKER_POOL_SIZE"`
	MaxLineups        int           `mapstructure:"MAX_LINEUPS"`
	GenerationTimeout time.Duration `mapstructure:"GENERATION_TIMEOUT"`
	SessionTTL        time.Duration `mapstructure:"SESSION_TTL"`

	// Rate limiting on generation
	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	// Monte-Carlo
	MCRandomness          float64 `mapstructure:"MC_RANDOMNESS"`
	MCLeverageMultiplier  float64 `mapstructure:"MC_LEVERAGE_MULTIPLIER"`
	MCIterationsPerLineup int     `mapstructure:"MC_ITERATIONS_PER_LINEUP"`

	// Genetic
	GAPopulationSize int     `mapstructure:"GA_POPULATION_SIZE"`
	GAGenerations    int     `mapstructure:"GA_GENERATIONS"`
	GAMutationRate   float64 `mapstructure:"GA_MUTATION_RATE"`

	// Simulated annealing
	SAInitialTemperature float64 `mapstructure:"SA_INITIAL_TEMPERATURE"`
	SACoolingRate        float64 `mapstructure:"SA_COOLING_RATE"`
	SAMinTemperature     float64 `mapstructure:"SA_MIN_TEMPERATURE"`
	SAMaxProposals       int     `mapstructure:"SA_MAX_PROPOSALS"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")

	setDefaults(viper.GetViper())

	// Read from environment
	viper.AutomaticEnv()

	// Read config file if exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return decode(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8082")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000")

	v.SetDefault("REDIS_URL", "") // empty keeps saved lineups in memory
	v.SetDefault("LINEUP_TTL", "24h")
	v.SetDefault("CIRCUIT_BREAKER_THRESHOLD", 5)
	v.SetDefault("CIRCUIT_BREAKER_TIMEOUT", "30s")

	v.SetDefault("SALARY_CAP", optimizer.DefaultSalaryCap)
	v.SetDefault("RNG_SEED", 0)         // 0 seeds from the clock
	v.SetDefault("WORKER_POOL_SIZE", 0) // 0 uses every CPU
	v.SetDefault("MAX_LINEUPS", 1000)
	v.SetDefault("GENERATION_TIMEOUT", "60s")
	v.SetDefault("SESSION_TTL", "2h")

	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)

	mc := optimizer.DefaultMonteCarloConfig()
	v.SetDefault("MC_RANDOMNESS", mc.Randomness)
	v.SetDefault("MC_LEVERAGE_MULTIPLIER", mc.LeverageMultiplier)
	v.SetDefault("MC_ITERATIONS_PER_LINEUP", mc.IterationsPerLineup)

	ga := optimizer.DefaultGeneticConfig()
	v.SetDefault("GA_POPULATION_SIZE", ga.PopulationSize)
	v.SetDefault("GA_GENERATIONS", ga.Generations)
	v.SetDefault("GA_MUTATION_RATE", ga.MutationRate)

	sa := optimizer.DefaultAnnealingConfig()
	v.SetDefault("SA_INITIAL_TEMPERATURE", sa.InitialTemperature)
	v.SetDefault("SA_COOLING_RATE", sa.CoolingRate)
	v.SetDefault("SA_MIN_TEMPERATURE", sa.MinTemperature)
	v.SetDefault("SA_MAX_PROPOSALS", sa.MaxProposals)
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Parse CORS origins from comma-separated string
	if corsStr := v.GetString("CORS_ORIGINS"); corsStr != "" {
		config.CorsOrigins = strings.Split(corsStr, ",")
	}

	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = runtime.NumCPU()
	}
	if config.WorkerPoolSize < 1 {
		config.WorkerPoolSize = 1
	}

	if _, err := config.Defaults(); err != nil {
		return nil, fmt.Errorf("invalid optimizer settings: %w", err)
	}
	return &config, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Defaults maps the sampler settings onto optimizer defaults and validates
// them.
func (c *Config) Defaults() (optimizer.Defaults, error) {
	d := optimizer.DefaultDefaults()
	d.SalaryCap = c.SalaryCap

	d.MonteCarlo.Randomness = c.MCRandomness
	d.MonteCarlo.LeverageMultiplier = c.MCLeverageMultiplier
	d.MonteCarlo.IterationsPerLineup = c.MCIterationsPerLineup

	d.Genetic.PopulationSize = c.GAPopulationSize
	d.Genetic.Generations = c.GAGenerations
	d.Genetic.MutationRate = c.GAMutationRate
	d.Genetic.Seeding = d.MonteCarlo

	d.Annealing.InitialTemperature = c.SAInitialTemperature
	d.Annealing.CoolingRate = c.SACoolingRate
	d.Annealing.MinTemperature = c.SAMinTemperature
	d.Annealing.MaxProposals = c.SAMaxProposals
	d.Annealing.Seeding = d.MonteCarlo

	if d.SalaryCap <= 0 {
		return d, fmt.Errorf("SALARY_CAP must be positive, got %d", d.SalaryCap)
	}
	for _, cfg := range []optimizer.StrategyConfig{d.MonteCarlo, d.Genetic, d.Annealing} {
		if err := cfg.Validate(); err != nil {
			return d, err
		}
	}
	return d, nil
}
