package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/kpath-ai/kpath/domain/registry"
)

// seedFile is the YAML document shape accepted by LoadSeed.
type seedFile struct {
	Services []seedService `yaml:"services"`
}

type seedService struct {
	Name                  string           `yaml:"name"`
	Description           string           `yaml:"description"`
	Status                string           `yaml:"status"`
	ToolType              string           `yaml:"tool_type"`
	Visibility            string           `yaml:"visibility"`
	Endpoint              string           `yaml:"endpoint"`
	Version               string           `yaml:"version"`
	InteractionModes      []string         `yaml:"interaction_modes"`
	AuthType              string           `yaml:"auth_type"`
	AuthConfig            map[string]any   `yaml:"auth_config"`
	AgentProtocol         string           `yaml:"agent_protocol"`
	ToolRecommendations   map[string]any   `yaml:"tool_recommendations"`
	AgentCapabilities     map[string]any   `yaml:"agent_capabilities"`
	CommunicationPatterns map[string]any   `yaml:"communication_patterns"`
	OrchestrationMetadata map[string]any   `yaml:"orchestration_metadata"`
	IntegrationDetails    map[string]any   `yaml:"integration_details"`
	Domains               []string         `yaml:"domains"`
	Capabilities          []seedCapability `yaml:"capabilities"`
	Tools                 []seedTool       `yaml:"tools"`
}

type seedCapability struct {
	Name         string         `yaml:"name"`
	Description  string         `yaml:"description"`
	InputSchema  map[string]any `yaml:"input_schema"`
	OutputSchema map[string]any `yaml:"output_schema"`
}

type seedTool struct {
	Name         string         `yaml:"name"`
	Description  string         `yaml:"description"`
	InputSchema  map[string]any `yaml:"input_schema"`
	OutputSchema map[string]any `yaml:"output_schema"`
	ExampleCalls any            `yaml:"example_calls"`
	Version      string         `yaml:"version"`
	Active       *bool          `yaml:"active"`
}

// LoadSeed reads a YAML seed file and upserts its services and tools into
// the registry. Existing records are matched by service name (and tool name
// within the service), so re-running with the same file is idempotent.
func (s RegistryStore) LoadSeed(ctx context.Context, path string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}

	for _, ss := range seed.Services {
		if ss.Name == "" {
			return errors.New("seed service missing name")
		}

		svc, err := s.seedService(ctx, ss)
		if err != nil {
			return fmt.Errorf("seed service %q: %w", ss.Name, err)
		}

		for _, st := range ss.Tools {
			if st.Name == "" {
				return fmt.Errorf("seed service %q: tool missing name", ss.Name)
			}
			if err := s.seedTool(ctx, svc, st); err != nil {
				return fmt.Errorf("seed tool %q of %q: %w", st.Name, ss.Name, err)
			}
		}
	}

	logger.Info("registry seed loaded", "path", path, "services", len(seed.Services))
	return nil
}

func (s RegistryStore) seedService(ctx context.Context, ss seedService) (registry.Service, error) {
	status := registry.StatusActive
	if ss.Status != "" {
		status = registry.Status(ss.Status)
	}

	caps := make([]registry.Capability, len(ss.Capabilities))
	for i, c := range ss.Capabilities {
		caps[i] = registry.NewCapability(0, c.Name, c.Description).
			WithSchemas(c.InputSchema, c.OutputSchema)
	}

	var existingID int64
	var existing ServiceModel
	result := s.db.Session(ctx).
		Select("id").
		Where("name = ?", ss.Name).
		First(&existing)
	switch {
	case result.Error == nil:
		existingID = existing.ID
	case errors.Is(result.Error, gorm.ErrRecordNotFound):
	default:
		return registry.Service{}, result.Error
	}

	svc := registry.NewService(existingID, ss.Name,
		registry.WithDescription(ss.Description),
		registry.WithStatus(status),
		registry.WithToolType(ss.ToolType),
		registry.WithVisibility(ss.Visibility),
		registry.WithEndpoint(ss.Endpoint),
		registry.WithVersion(ss.Version),
		registry.WithInteractionModes(ss.InteractionModes...),
		registry.WithAuth(ss.AuthType, ss.AuthConfig),
		registry.WithAgentProtocol(ss.AgentProtocol),
		registry.WithToolRecommendations(ss.ToolRecommendations),
		registry.WithAgentCapabilities(ss.AgentCapabilities),
		registry.WithCommunicationPatterns(ss.CommunicationPatterns),
		registry.WithOrchestrationMetadata(ss.OrchestrationMetadata),
		registry.WithIntegrationDetails(ss.IntegrationDetails),
		registry.WithCapabilities(caps...),
		registry.WithDomains(ss.Domains...),
	)
	return s.SaveService(ctx, svc)
}

func (s RegistryStore) seedTool(ctx context.Context, svc registry.Service, st seedTool) error {
	var existingID int64
	var existing ToolModel
	result := s.db.Session(ctx).
		Select("id").
		Where("service_id = ? AND name = ?", svc.ID(), st.Name).
		First(&existing)
	switch {
	case result.Error == nil:
		existingID = existing.ID
	case errors.Is(result.Error, gorm.ErrRecordNotFound):
	default:
		return result.Error
	}

	active := true
	if st.Active != nil {
		active = *st.Active
	}

	tool := registry.NewTool(existingID, svc.ID(), svc.Name(), st.Name,
		registry.WithToolDescription(st.Description),
		registry.WithInputSchema(st.InputSchema),
		registry.WithOutputSchema(st.OutputSchema),
		registry.WithExamples(registry.ExamplesFrom(normalizeYAML(st.ExampleCalls))),
		registry.WithToolVersion(st.Version),
		registry.WithActive(active),
	)
	_, err := s.SaveTool(ctx, tool)
	return err
}

// normalizeYAML converts yaml.v3's map[string]any/[]any trees as-is and
// coerces map[any]any keys (from older-style documents) to strings.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeYAML(val)
		}
		return out
	default:
		return v
	}
}
