package persistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/kpath-ai/kpath/domain/registry"
	"github.com/kpath-ai/kpath/internal/database"
)

// RegistryStore implements registry.Reader using GORM, plus the write
// operations the seed loader and upsert path need.
type RegistryStore struct {
	db database.Database
}

// NewRegistryStore creates a RegistryStore.
func NewRegistryStore(db database.Database) RegistryStore {
	return RegistryStore{db: db}
}

// ActiveServices returns each active service with capabilities and domains
// pre-joined, ordered by id.
func (s RegistryStore) ActiveServices(ctx context.Context) ([]registry.Service, error) {
	var models []ServiceModel
	result := s.db.Session(ctx).
		Preload("Capabilities").
		Preload("Domains").
		Where("status = ?", string(registry.StatusActive)).
		Order("id").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("find active services: %w", result.Error)
	}

	services := make([]registry.Service, len(models))
	for i, m := range models {
		services[i] = serviceMapper{}.ToDomain(m)
	}
	return services, nil
}

// ActiveTools returns each active tool of each active service, ordered by id.
func (s RegistryStore) ActiveTools(ctx context.Context) ([]registry.Tool, error) {
	names, err := s.activeServiceNames(ctx)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return []registry.Tool{}, nil
	}

	ids := make([]int64, 0, len(names))
	for id := range names {
		ids = append(ids, id)
	}

	var models []ToolModel
	result := s.db.Session(ctx).
		Where("service_id IN ? AND active = ?", ids, true).
		Order("id").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("find active tools: %w", result.Error)
	}

	tools := make([]registry.Tool, len(models))
	for i, m := range models {
		tools[i] = toolMapper{}.ToDomain(m, names[m.ServiceID])
	}
	return tools, nil
}

// Service returns one active service by id.
func (s RegistryStore) Service(ctx context.Context, id int64) (registry.Service, error) {
	var model ServiceModel
	result := s.db.Session(ctx).
		Preload("Capabilities").
		Preload("Domains").
		Where("id = ? AND status = ?", id, string(registry.StatusActive)).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return registry.Service{}, registry.ErrNotFound
		}
		return registry.Service{}, fmt.Errorf("find service %d: %w", id, result.Error)
	}
	return serviceMapper{}.ToDomain(model), nil
}

// Tool returns one active tool of an active service by id.
func (s RegistryStore) Tool(ctx context.Context, id int64) (registry.Tool, error) {
	var model ToolModel
	result := s.db.Session(ctx).
		Where("id = ? AND active = ?", id, true).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return registry.Tool{}, registry.ErrNotFound
		}
		return registry.Tool{}, fmt.Errorf("find tool %d: %w", id, result.Error)
	}

	var parent ServiceModel
	result = s.db.Session(ctx).
		Select("id", "name", "status").
		Where("id = ?", model.ServiceID).
		First(&parent)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return registry.Tool{}, registry.ErrNotFound
		}
		return registry.Tool{}, fmt.Errorf("find tool %d parent: %w", id, result.Error)
	}
	if parent.Status != string(registry.StatusActive) {
		return registry.Tool{}, registry.ErrNotFound
	}

	return toolMapper{}.ToDomain(model, parent.Name), nil
}

// SaveService creates or updates a service together with its capabilities
// and domains. Returns the saved service with its assigned id.
func (s RegistryStore) SaveService(ctx context.Context, svc registry.Service) (registry.Service, error) {
	model := serviceMapper{}.ToModel(svc)

	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		if model.ID == 0 {
			return tx.Create(&model).Error
		}

		caps := model.Capabilities
		domains := model.Domains
		model.Capabilities = nil
		model.Domains = nil

		if err := tx.Save(&model).Error; err != nil {
			return err
		}
		if err := tx.Where("service_id = ?", model.ID).Delete(&CapabilityModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("service_id = ?", model.ID).Delete(&DomainModel{}).Error; err != nil {
			return err
		}
		for i := range caps {
			caps[i].ID = 0
			caps[i].ServiceID = model.ID
		}
		for i := range domains {
			domains[i].ID = 0
			domains[i].ServiceID = model.ID
		}
		if len(caps) > 0 {
			if err := tx.Create(&caps).Error; err != nil {
				return err
			}
		}
		if len(domains) > 0 {
			if err := tx.Create(&domains).Error; err != nil {
				return err
			}
		}
		model.Capabilities = caps
		model.Domains = domains
		return nil
	})
	if err != nil {
		return registry.Service{}, fmt.Errorf("save service: %w", err)
	}
	return serviceMapper{}.ToDomain(model), nil
}

// SaveTool creates or updates a tool. Returns the saved tool with its
// assigned id and parent name resolved.
func (s RegistryStore) SaveTool(ctx context.Context, tool registry.Tool) (registry.Tool, error) {
	model := toolMapper{}.ToModel(tool)

	var result *gorm.DB
	if model.ID == 0 {
		result = s.db.Session(ctx).Create(&model)
	} else {
		result = s.db.Session(ctx).Save(&model)
	}
	if result.Error != nil {
		return registry.Tool{}, fmt.Errorf("save tool: %w", result.Error)
	}

	serviceName := tool.ServiceName()
	if serviceName == "" {
		var parent ServiceModel
		lookup := s.db.Session(ctx).
			Select("id", "name").
			Where("id = ?", model.ServiceID).
			First(&parent)
		if lookup.Error != nil {
			return registry.Tool{}, fmt.Errorf("save tool: resolve parent: %w", lookup.Error)
		}
		serviceName = parent.Name
	}

	return toolMapper{}.ToDomain(model, serviceName), nil
}

// DeleteService removes a service and everything hanging off it.
func (s RegistryStore) DeleteService(ctx context.Context, id int64) error {
	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.Where("service_id = ?", id).Delete(&ToolModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("service_id = ?", id).Delete(&CapabilityModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("service_id = ?", id).Delete(&DomainModel{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&ServiceModel{}).Error
	})
	if err != nil {
		return fmt.Errorf("delete service %d: %w", id, err)
	}
	return nil
}

// DeleteTool removes a single tool.
func (s RegistryStore) DeleteTool(ctx context.Context, id int64) error {
	result := s.db.Session(ctx).Where("id = ?", id).Delete(&ToolModel{})
	if result.Error != nil {
		return fmt.Errorf("delete tool %d: %w", id, result.Error)
	}
	return nil
}

// ToolsOfService returns every active tool of one service, ordered by id.
func (s RegistryStore) ToolsOfService(ctx context.Context, serviceID int64) ([]registry.Tool, error) {
	var parent ServiceModel
	result := s.db.Session(ctx).
		Select("id", "name").
		Where("id = ?", serviceID).
		First(&parent)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, registry.ErrNotFound
		}
		return nil, fmt.Errorf("find service %d: %w", serviceID, result.Error)
	}

	var models []ToolModel
	result = s.db.Session(ctx).
		Where("service_id = ? AND active = ?", serviceID, true).
		Order("id").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("find tools of service %d: %w", serviceID, result.Error)
	}

	tools := make([]registry.Tool, len(models))
	for i, m := range models {
		tools[i] = toolMapper{}.ToDomain(m, parent.Name)
	}
	return tools, nil
}

// activeServiceNames returns id -> name for every active service.
func (s RegistryStore) activeServiceNames(ctx context.Context) (map[int64]string, error) {
	var rows []struct {
		ID   int64  `gorm:"column:id"`
		Name string `gorm:"column:name"`
	}
	result := s.db.Session(ctx).
		Model(&ServiceModel{}).
		Select("id", "name").
		Where("status = ?", string(registry.StatusActive)).
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("find active service names: %w", result.Error)
	}

	names := make(map[int64]string, len(rows))
	for _, r := range rows {
		names[r.ID] = r.Name
	}
	return names, nil
}

var _ registry.Reader = RegistryStore{}
