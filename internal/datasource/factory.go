package datasource

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/tradelab/internal/config"
	"github.com/yourusername/tradelab/internal/database"
)

// SourceType represents the type of data source
type SourceType string

const (
	SyntheticSourceType SourceType = "synthetic"
	HTTPSourceType      SourceType = "http"
	AlpacaSourceType    SourceType = "alpaca"
	PostgresSourceType  SourceType = "postgres"
	SQLiteSourceType    SourceType = "sqlite"
	ParquetSourceType   SourceType = "parquet"
)

// Factory creates Source implementations based on configuration
type Factory struct {
	logger *logrus.Logger
	config *config.Config
	db     *database.DB
}

// NewFactory creates a new data source factory. db may be nil unless the
// postgres backend is requested.
func NewFactory(cfg *config.Config, db *database.DB, logger *logrus.Logger) *Factory {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Factory{
		logger: logger,
		config: cfg,
		db:     db,
	}
}

// Create builds the configured source wrapped with logging and metrics
func (f *Factory) Create(ctx context.Context) (Source, error) {
	return f.CreateType(ctx, SourceType(f.config.DataSource.Type))
}

// CreateType builds a specific source type from the factory's configuration
func (f *Factory) CreateType(ctx context.Context, sourceType SourceType) (Source, error) {
	src, err := f.create(ctx, sourceType)
	if err != nil {
		return nil, err
	}
	f.logger.WithField("source", src.Name()).Info("Created data source")
	return Instrument(src, f.logger), nil
}

func (f *Factory) create(ctx context.Context, sourceType SourceType) (Source, error) {
	dsCfg := f.config.DataSource

	switch sourceType {
	case SyntheticSourceType:
		return NewSyntheticSource(dsCfg.Synthetic), nil

	case HTTPSourceType:
		if dsCfg.HTTP.BaseURL == "" {
			return nil, fmt.Errorf("http data source requires a base URL")
		}
		return NewHTTPSource(NewRateLimitedHTTPClient(httpClientConfig(dsCfg.HTTP), f.logger), dsCfg.HTTP, f.logger), nil

	case AlpacaSourceType:
		if dsCfg.Alpaca.APIKey == "" || dsCfg.Alpaca.APISecret == "" {
			return nil, fmt.Errorf("alpaca data source requires API credentials")
		}
		return NewAlpacaSource(dsCfg.Alpaca), nil

	case PostgresSourceType:
		if f.db == nil {
			return nil, fmt.Errorf("postgres data source requires a database connection")
		}
		return NewPostgresSource(f.db), nil

	case SQLiteSourceType:
		if dsCfg.SQLite.Path == "" {
			return nil, fmt.Errorf("sqlite data source requires a path")
		}
		return NewSQLiteSource(ctx, dsCfg.SQLite.Path)

	case ParquetSourceType:
		if dsCfg.Parquet.Dir == "" {
			return nil, fmt.Errorf("parquet data source requires a directory")
		}
		return NewParquetSource(dsCfg.Parquet.Dir), nil

	default:
		return nil, fmt.Errorf("unknown data source type: %s", sourceType)
	}
}

// ListAvailableSources returns the source types this build supports
func (f *Factory) ListAvailableSources() []SourceType {
	return []SourceType{
		SyntheticSourceType,
		HTTPSourceType,
		AlpacaSourceType,
		PostgresSourceType,
		SQLiteSourceType,
		ParquetSourceType,
	}
}

func httpClientConfig(cfg config.HTTPSourceConfig) HTTPClientConfig {
	out := DefaultHTTPClientConfig()
	if cfg.TimeoutSeconds > 0 {
		out.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if cfg.MaxRetries > 0 {
		out.MaxRetries = cfg.MaxRetries
	}
	if cfg.RateLimit > 0 {
		out.RateLimit = cfg.RateLimit
	}
	return out
}
