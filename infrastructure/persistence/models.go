// Package persistence provides database storage for the service registry
// read model.
package persistence

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kpath-ai/kpath/internal/database"
)

// JSONMap is a custom type for JSON serialization of map columns.
type JSONMap map[string]any

// Scan implements sql.Scanner for reading JSON columns.
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", value)
	}

	return json.Unmarshal(data, m)
}

// Value implements driver.Valuer for writing JSON columns.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// JSONValue is a custom type for columns holding an arbitrary JSON shape
// (object or array), such as tool example calls.
type JSONValue struct {
	V any
}

// Scan implements sql.Scanner.
func (j *JSONValue) Scan(value any) error {
	if value == nil {
		j.V = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONValue", value)
	}

	return json.Unmarshal(data, &j.V)
}

// Value implements driver.Valuer.
func (j JSONValue) Value() (driver.Value, error) {
	if j.V == nil {
		return nil, nil
	}
	return json.Marshal(j.V)
}

// StringList is a custom type for JSON serialization of []string columns.
type StringList []string

// Scan implements sql.Scanner.
func (s *StringList) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into StringList", value)
	}

	return json.Unmarshal(data, s)
}

// Value implements driver.Valuer.
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

// ServiceModel is the GORM model for registered services.
type ServiceModel struct {
	ID                    int64      `gorm:"column:id;primaryKey;autoIncrement"`
	Name                  string     `gorm:"column:name;uniqueIndex;not null"`
	Description           string     `gorm:"column:description"`
	Status                string     `gorm:"column:status;index;default:active"`
	ToolType              string     `gorm:"column:tool_type"`
	Visibility            string     `gorm:"column:visibility"`
	Endpoint              string     `gorm:"column:endpoint"`
	Version               string     `gorm:"column:version"`
	InteractionModes      StringList `gorm:"column:interaction_modes;type:json"`
	AuthType              string     `gorm:"column:auth_type"`
	AuthConfig            JSONMap    `gorm:"column:auth_config;type:json"`
	AgentProtocol         string     `gorm:"column:agent_protocol"`
	ToolRecommendations   JSONMap    `gorm:"column:tool_recommendations;type:json"`
	AgentCapabilities     JSONMap    `gorm:"column:agent_capabilities;type:json"`
	CommunicationPatterns JSONMap    `gorm:"column:communication_patterns;type:json"`
	OrchestrationMetadata JSONMap    `gorm:"column:orchestration_metadata;type:json"`
	IntegrationDetails    JSONMap    `gorm:"column:integration_details;type:json"`
	CreatedAt             time.Time  `gorm:"column:created_at"`
	UpdatedAt             time.Time  `gorm:"column:updated_at"`

	Capabilities []CapabilityModel `gorm:"foreignKey:ServiceID;constraint:OnDelete:CASCADE"`
	Domains      []DomainModel     `gorm:"foreignKey:ServiceID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for ServiceModel.
func (ServiceModel) TableName() string { return "services" }

// CapabilityModel is the GORM model for service capabilities.
type CapabilityModel struct {
	ID           int64   `gorm:"column:id;primaryKey;autoIncrement"`
	ServiceID    int64   `gorm:"column:service_id;index;not null"`
	Name         string  `gorm:"column:name;not null"`
	Description  string  `gorm:"column:description"`
	InputSchema  JSONMap `gorm:"column:input_schema;type:json"`
	OutputSchema JSONMap `gorm:"column:output_schema;type:json"`
}

// TableName returns the table name for CapabilityModel.
func (CapabilityModel) TableName() string { return "service_capabilities" }

// DomainModel is the GORM model for service business-domain tags.
type DomainModel struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ServiceID int64  `gorm:"column:service_id;uniqueIndex:idx_service_domain;not null"`
	Domain    string `gorm:"column:domain;uniqueIndex:idx_service_domain;not null"`
}

// TableName returns the table name for DomainModel.
func (DomainModel) TableName() string { return "service_domains" }

// ToolModel is the GORM model for service tools.
type ToolModel struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ServiceID    int64     `gorm:"column:service_id;uniqueIndex:idx_service_tool;not null"`
	Name         string    `gorm:"column:name;uniqueIndex:idx_service_tool;not null"`
	Description  string    `gorm:"column:description"`
	InputSchema  JSONMap   `gorm:"column:input_schema;type:json"`
	OutputSchema JSONMap   `gorm:"column:output_schema;type:json"`
	ExampleCalls JSONValue `gorm:"column:example_calls;type:json"`
	Version      string    `gorm:"column:version"`
	Active       bool      `gorm:"column:active;index;default:true"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

// TableName returns the table name for ToolModel.
func (ToolModel) TableName() string { return "tools" }

// AutoMigrate runs GORM auto migration for all registry models.
func AutoMigrate(ctx context.Context, db database.Database) error {
	return db.Session(ctx).AutoMigrate(
		&ServiceModel{},
		&CapabilityModel{},
		&DomainModel{},
		&ToolModel{},
	)
}
