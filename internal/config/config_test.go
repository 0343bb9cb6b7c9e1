package config

import (
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	validConfigPath       = "testdata/valid_config.yaml"
	expansionConfigPath   = "testdata/expansion_config.yaml"
	invalidConfigPath     = "testdata/invalid_config.yaml"
	nonexistentConfigPath = "testdata/nonexistent_config.yaml"
)

func TestLoadConfigSuccess(t *testing.T) {
	cfg, err := Load(validConfigPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "tradelab", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, "synthetic", cfg.DataSource.Type)
	assert.Equal(t, int64(42), cfg.DataSource.Synthetic.Seed)
	assert.Equal(t, 10000.0, cfg.Backtest.InitialBalance)
	assert.Equal(t, 0.001, cfg.Backtest.Execution.CommissionRate)
	assert.EqualValues(t, 10, cfg.Backtest.StrategyParams["fast_period"])
	require.Len(t, cfg.Scheduler.Jobs, 1)
	assert.Equal(t, "nightly-synth", cfg.Scheduler.Jobs[0].Name)
}

func TestLoadConfigFileNotFound(t *testing.T) {
	_, err := Load(nonexistentConfigPath)
	assert.Error(t, err)
}

func TestLoadConfigEnvironmentVariables(t *testing.T) {
	t.Setenv("TRADELAB_APP_NAME", "test-app")

	cfg, err := Load(validConfigPath)
	require.NoError(t, err)
	assert.Equal(t, "test-app", cfg.App.Name)
}

func TestLoadConfigEnvironmentVariableExpansion(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "expanded_secret_value")

	cfg, err := Load(expansionConfigPath)
	require.NoError(t, err)
	assert.Equal(t, "expanded_secret_value", cfg.Database.Password)
	assert.NoError(t, Validate(cfg))
}

func TestLoadWithDefaultsMissingFile(t *testing.T) {
	cfg, err := LoadWithDefaults(nonexistentConfigPath)
	require.NoError(t, err)

	assert.Equal(t, "synthetic", cfg.DataSource.Type)
	assert.Equal(t, 100, cfg.Cache.MaxEntries)
	assert.Equal(t, 200, cfg.Backtest.LookbackWindow)
	assert.Equal(t, 252.0, cfg.Backtest.AnnualizationFactor)
	assert.Equal(t, 1.0, cfg.Backtest.Execution.FillProbability)
	assert.Equal(t, 0.75, cfg.WalkForward.InSampleRatio)
	assert.NoError(t, Validate(cfg))
}

func TestLoadWithDefaultsFileOverrides(t *testing.T) {
	cfg, err := LoadWithDefaults(validConfigPath)
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.MonteCarlo.Iterations)
	assert.Equal(t, 4, cfg.MonteCarlo.Workers)
}

func TestValidateSuccess(t *testing.T) {
	cfg, err := Load(validConfigPath)
	require.NoError(t, err)
	assert.NoError(t, Validate(cfg))
}

func TestValidateInvalidFields(t *testing.T) {
	cfg, err := Load(invalidConfigPath)
	require.NoError(t, err)

	err = Validate(cfg)
	require.Error(t, err)
	msg := err.Error()
	assert.True(t, strings.Contains(msg, "Environment"))
	assert.True(t, strings.Contains(msg, "Type"))
	assert.True(t, strings.Contains(msg, "Resolution"))
}

func TestValidateCrossField(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "end before start",
			mutate:  func(c *Config) { c.Backtest.StartDate, c.Backtest.EndDate = "2024-01-02", "2024-01-01" },
			wantErr: "start_date must be before end_date",
		},
		{
			name:    "parquet without dir",
			mutate:  func(c *Config) { c.DataSource.Type = "parquet" },
			wantErr: "parquet data source requires",
		},
		{
			name:    "walk forward step larger than window",
			mutate:  func(c *Config) { c.WalkForward.StepSize = 500 },
			wantErr: "step_size cannot exceed window_size",
		},
		{
			name: "production postgres without ssl",
			mutate: func(c *Config) {
				c.App.Environment = "production"
				c.DataSource.Type = "postgres"
			},
			wantErr: "requires SSL mode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(validConfigPath)
			require.NoError(t, err)
			tt.mutate(cfg)

			err = Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBacktestWindowIsInclusive(t *testing.T) {
	b := BacktestConfig{StartDate: "2024-01-01", EndDate: "2024-01-31"}
	start, end, err := b.Window()
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.True(t, end.After(time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)))
	assert.True(t, end.Before(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
}

func TestEnvironmentHelpers(t *testing.T) {
	cfg := &Config{App: AppConfig{Environment: "staging"}}
	assert.True(t, cfg.IsStaging())
	assert.False(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
}

func TestGetDatabaseDSN(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{
		Host: "localhost", Port: 5432, Name: "tradelab", User: "u", Password: "p", SSLMode: "disable",
	}}
	assert.Equal(t, "postgres://u:p@localhost:5432/tradelab?sslmode=disable", cfg.GetDatabaseDSN())
}

func TestParseSecretData(t *testing.T) {
	out := &secretsmanager.GetSecretValueOutput{
		SecretString: aws.String(`{"database_password":"db","alpaca_api_key":"k","alpaca_api_secret":"s"}`),
	}
	secrets, err := parseSecretData(out)
	require.NoError(t, err)

	cfg := &Config{}
	cfg.DataSource.HTTP.APIKey = "keep"
	overlaySecretsOnConfig(cfg, secrets)

	assert.Equal(t, "db", cfg.Database.Password)
	assert.Equal(t, "k", cfg.DataSource.Alpaca.APIKey)
	assert.Equal(t, "s", cfg.DataSource.Alpaca.APISecret)
	assert.Equal(t, "keep", cfg.DataSource.HTTP.APIKey)

	_, err = parseSecretData(&secretsmanager.GetSecretValueOutput{})
	assert.ErrorIs(t, err, errNoSecretDataFound)
}
