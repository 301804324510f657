// Package container provides dependency injection and lifecycle management
// for the approval service following Clean Architecture principles.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Workflow WorkflowConfig
	Invoice  InvoiceConfig
	Lark     LarkConfig
	AMQP     AMQPConfig
	Metrics  MetricsConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file, ":memory:" for a throwaway database
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// WorkflowConfig holds approval engine settings.
type WorkflowConfig struct {
	// TemplatesFile is published at startup when set
	TemplatesFile string

	// RefreshFormData re-reads entity fields before routing each advance
	RefreshFormData bool
}

// InvoiceConfig holds milestone invoice settings.
type InvoiceConfig struct {
	TaxRate    float64
	CodePrefix string
}

// LarkConfig holds Lark API settings.
type LarkConfig struct {
	Enabled   bool
	AppID     string
	AppSecret string
}

// AMQPConfig holds RabbitMQ settings.
type AMQPConfig struct {
	Enabled  bool
	URL      string
	Exchange string
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:         "data/pm_approval.db",
			MaxOpenConns: 1,
			MaxIdleConns: 1,
			BusyTimeout:  5 * time.Second,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Workflow: WorkflowConfig{
			TemplatesFile: "configs/templates.yaml",
		},
		Invoice: InvoiceConfig{
			TaxRate:    0.13,
			CodePrefix: "INV",
		},
		AMQP: AMQPConfig{
			Exchange: "pm.approvals",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Invoice.TaxRate < 0 || c.Invoice.TaxRate >= 1 {
		return fmt.Errorf("invoice.tax_rate must be in [0, 1)")
	}
	if c.Lark.Enabled && (c.Lark.AppID == "" || c.Lark.AppSecret == "") {
		return fmt.Errorf("lark.app_id and lark.app_secret are required when lark is enabled")
	}
	if c.AMQP.Enabled && c.AMQP.URL == "" {
		return fmt.Errorf("amqp.url is required when amqp is enabled")
	}
	return nil
}
