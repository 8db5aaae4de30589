// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Scoring models
	SaveModel(ctx context.Context, tenantID string, model *ScoringModel) error
	GetModel(ctx context.Context, tenantID string, modelID string) (*ScoringModel, error)
	ListModels(ctx context.Context, tenantID string) ([]*ScoringModel, error)
	DeleteModel(ctx context.Context, tenantID string, modelID string) error

	// Credit products
	SaveProduct(ctx context.Context, tenantID string, product *CreditProduct) error
	GetProduct(ctx context.Context, tenantID string, productID string) (*CreditProduct, error)
	ListProducts(ctx context.Context, tenantID string) ([]*CreditProduct, error)
	DeleteProduct(ctx context.Context, tenantID string, productID string) error

	// Simulations
	SaveSimulation(ctx context.Context, tenantID string, sim *Simulation) error
	GetSimulation(ctx context.Context, tenantID string, simID string) (*Simulation, error)
	ListSimulations(ctx context.Context, tenantID string, filter SimulationFilter) ([]*Simulation, error)
	ListSimulationScores(ctx context.Context, tenantID string, productID string) ([]float64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `mapstructure:"driver"`

	// SQLite specific
	SQLitePath string `mapstructure:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `mapstructure:"postgresHost"`
	PostgresPort     int    `mapstructure:"postgresPort"`
	PostgresUser     string `mapstructure:"postgresUser"`
	PostgresPassword string `mapstructure:"postgresPassword"`
	PostgresDB       string `mapstructure:"postgresDb"`
	PostgresSSLMode  string `mapstructure:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}
