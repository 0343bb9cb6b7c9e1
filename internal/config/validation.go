package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// CustomValidator wraps the validator with custom validation rules
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new validator with custom validation functions
func NewValidator() *CustomValidator {
	v := validator.New()

	// Registration only fails for empty tags or nil funcs
	_ = v.RegisterValidation("environment", validateEnvironment)
	_ = v.RegisterValidation("loglevel", validateLogLevel)
	_ = v.RegisterValidation("resolution", validateResolution)
	_ = v.RegisterValidation("datasource", validateDataSource)
	_ = v.RegisterValidation("method", validateMethod)
	_ = v.RegisterValidation("date", validateDate)

	return &CustomValidator{validator: v}
}

// Validate validates the entire configuration
func Validate(cfg *Config) error {
	cv := NewValidator()
	return cv.Validate(cfg)
}

// Validate validates the configuration using registered validation rules
func (cv *CustomValidator) Validate(cfg *Config) error {
	err := cv.validator.Struct(cfg)
	if err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			return formatValidationErrors(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}

	if err := validateCrossField(cfg); err != nil {
		return err
	}

	return nil
}

func validateEnvironment(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "development", "staging", "production":
		return true
	default:
		return false
	}
}

func validateLogLevel(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func validateResolution(fl validator.FieldLevel) bool {
	switch strings.ToLower(fl.Field().String()) {
	case "1m", "5m", "15m", "30m", "1h", "4h", "1d":
		return true
	default:
		return false
	}
}

func validateDataSource(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "synthetic", "http", "alpaca", "postgres", "sqlite", "parquet":
		return true
	default:
		return false
	}
}

func validateMethod(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "grid", "random":
		return true
	default:
		return false
	}
}

func validateDate(fl validator.FieldLevel) bool {
	_, err := time.Parse(DateLayout, fl.Field().String())
	return err == nil
}

// validateCrossField performs cross-field validations
func validateCrossField(cfg *Config) error {
	start, end, err := cfg.Backtest.Window()
	if err != nil {
		return err
	}
	if !start.Before(end) {
		return fmt.Errorf("backtest start_date must be before end_date")
	}

	switch cfg.DataSource.Type {
	case "postgres":
		if cfg.Database.Host == "" || cfg.Database.Name == "" {
			return fmt.Errorf("postgres data source requires database host and name")
		}
	case "http":
		if cfg.DataSource.HTTP.BaseURL == "" {
			return fmt.Errorf("http data source requires data_source.http.base_url")
		}
	case "alpaca":
		if cfg.DataSource.Alpaca.APIKey == "" || cfg.DataSource.Alpaca.APISecret == "" {
			return fmt.Errorf("alpaca data source requires api_key and api_secret")
		}
	case "sqlite":
		if cfg.DataSource.SQLite.Path == "" {
			return fmt.Errorf("sqlite data source requires data_source.sqlite.path")
		}
	case "parquet":
		if cfg.DataSource.Parquet.Dir == "" {
			return fmt.Errorf("parquet data source requires data_source.parquet.dir")
		}
	}

	if cfg.IsProduction() && cfg.DataSource.Type == "postgres" && cfg.Database.SSLMode == "disable" {
		return fmt.Errorf("production environment requires SSL mode to be 'require' or 'verify-full'")
	}

	wf := cfg.WalkForward
	if wf.WindowSize > 0 && wf.StepSize > wf.WindowSize {
		return fmt.Errorf("walk_forward step_size cannot exceed window_size")
	}

	if cfg.Secrets.Enabled && (cfg.Secrets.Region == "" || cfg.Secrets.SecretName == "") {
		return fmt.Errorf("secrets overlay requires region and secret_name")
	}

	return nil
}

// formatValidationErrors formats validation errors into a readable string
func formatValidationErrors(validationErrors validator.ValidationErrors) error {
	var errMsg string
	for _, fieldError := range validationErrors {
		field := fieldError.StructField()
		tag := fieldError.Tag()
		value := fieldError.Value()

		switch tag {
		case "required":
			errMsg += fmt.Sprintf("- Field '%s' is required\n", field)
		case "url":
			errMsg += fmt.Sprintf("- Field '%s' must be a valid URL, got '%v'\n", field, value)
		case "gt", "gte", "lt", "lte":
			errMsg += fmt.Sprintf("- Field '%s' validation failed: numeric constraint %s violated\n", field, tag)
		case "environment":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: development, staging, production\n", field)
		case "loglevel":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: debug, info, warn, error\n", field)
		case "resolution":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: 1m, 5m, 15m, 30m, 1h, 4h, 1d, got '%v'\n", field, value)
		case "datasource":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: synthetic, http, alpaca, postgres, sqlite, parquet\n", field)
		case "method":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: grid, random\n", field)
		case "date":
			errMsg += fmt.Sprintf("- Field '%s' must be a YYYY-MM-DD date, got '%v'\n", field, value)
		case "oneof":
			errMsg += fmt.Sprintf("- Field '%s' has invalid value '%v'\n", field, value)
		default:
			errMsg += fmt.Sprintf("- Field '%s' failed validation: %s\n", field, tag)
		}
	}
	return fmt.Errorf("configuration validation failed:\n%s", errMsg)
}
