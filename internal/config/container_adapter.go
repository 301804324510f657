package config

import (
	"github.com/garyjia/pm-approval/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
		Workflow: container.WorkflowConfig{
			TemplatesFile:   c.Workflow.TemplatesFile,
			RefreshFormData: c.Workflow.RefreshFormData,
		},
		Invoice: container.InvoiceConfig{
			TaxRate:    c.Invoice.TaxRate,
			CodePrefix: c.Invoice.CodePrefix,
		},
		Lark: container.LarkConfig{
			Enabled:   c.Lark.Enabled,
			AppID:     c.Lark.AppID,
			AppSecret: c.Lark.AppSecret,
		},
		AMQP: container.AMQPConfig{
			Enabled:  c.AMQP.Enabled,
			URL:      c.AMQP.URL,
			Exchange: c.AMQP.Exchange,
		},
		Metrics: container.MetricsConfig{
			Enabled: c.Metrics.Enabled,
			Path:    c.Metrics.Path,
		},
	}
}
