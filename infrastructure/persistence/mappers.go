package persistence

import (
	"github.com/kpath-ai/kpath/domain/registry"
)

// serviceMapper maps between registry.Service and ServiceModel.
type serviceMapper struct{}

func (serviceMapper) ToDomain(entity ServiceModel) registry.Service {
	caps := make([]registry.Capability, len(entity.Capabilities))
	for i, c := range entity.Capabilities {
		caps[i] = registry.NewCapability(c.ID, c.Name, c.Description).
			WithSchemas(c.InputSchema, c.OutputSchema)
	}

	domains := make([]string, len(entity.Domains))
	for i, d := range entity.Domains {
		domains[i] = d.Domain
	}

	return registry.NewService(entity.ID, entity.Name,
		registry.WithDescription(entity.Description),
		registry.WithStatus(registry.Status(entity.Status)),
		registry.WithToolType(entity.ToolType),
		registry.WithVisibility(entity.Visibility),
		registry.WithEndpoint(entity.Endpoint),
		registry.WithVersion(entity.Version),
		registry.WithInteractionModes(entity.InteractionModes...),
		registry.WithAuth(entity.AuthType, entity.AuthConfig),
		registry.WithAgentProtocol(entity.AgentProtocol),
		registry.WithToolRecommendations(entity.ToolRecommendations),
		registry.WithAgentCapabilities(entity.AgentCapabilities),
		registry.WithCommunicationPatterns(entity.CommunicationPatterns),
		registry.WithOrchestrationMetadata(entity.OrchestrationMetadata),
		registry.WithIntegrationDetails(entity.IntegrationDetails),
		registry.WithCapabilities(caps...),
		registry.WithDomains(domains...),
	)
}

func (serviceMapper) ToModel(domain registry.Service) ServiceModel {
	caps := make([]CapabilityModel, len(domain.Capabilities()))
	for i, c := range domain.Capabilities() {
		caps[i] = CapabilityModel{
			ID:           c.ID(),
			ServiceID:    domain.ID(),
			Name:         c.Name(),
			Description:  c.Description(),
			InputSchema:  c.InputSchema(),
			OutputSchema: c.OutputSchema(),
		}
	}

	domains := make([]DomainModel, len(domain.Domains()))
	for i, d := range domain.Domains() {
		domains[i] = DomainModel{ServiceID: domain.ID(), Domain: d}
	}

	return ServiceModel{
		ID:                    domain.ID(),
		Name:                  domain.Name(),
		Description:           domain.Description(),
		Status:                string(domain.Status()),
		ToolType:              domain.ToolType(),
		Visibility:            domain.Visibility(),
		Endpoint:              domain.Endpoint(),
		Version:               domain.Version(),
		InteractionModes:      domain.InteractionModes(),
		AuthType:              domain.AuthType(),
		AuthConfig:            domain.AuthConfig(),
		AgentProtocol:         domain.AgentProtocol(),
		ToolRecommendations:   domain.ToolRecommendations(),
		AgentCapabilities:     domain.AgentCapabilities(),
		CommunicationPatterns: domain.CommunicationPatterns(),
		OrchestrationMetadata: domain.OrchestrationMetadata(),
		IntegrationDetails:    domain.IntegrationDetails(),
		Capabilities:          caps,
		Domains:               domains,
	}
}

// toolMapper maps between registry.Tool and ToolModel. The parent service
// name lives on the services table, so ToDomain takes it alongside the row.
type toolMapper struct{}

func (toolMapper) ToDomain(entity ToolModel, serviceName string) registry.Tool {
	return registry.NewTool(entity.ID, entity.ServiceID, serviceName, entity.Name,
		registry.WithToolDescription(entity.Description),
		registry.WithInputSchema(entity.InputSchema),
		registry.WithOutputSchema(entity.OutputSchema),
		registry.WithExamples(registry.ExamplesFrom(entity.ExampleCalls.V)),
		registry.WithToolVersion(entity.Version),
		registry.WithActive(entity.Active),
	)
}

func (toolMapper) ToModel(domain registry.Tool) ToolModel {
	return ToolModel{
		ID:           domain.ID(),
		ServiceID:    domain.ServiceID(),
		Name:         domain.Name(),
		Description:  domain.Description(),
		InputSchema:  domain.InputSchema(),
		OutputSchema: domain.OutputSchema(),
		ExampleCalls: JSONValue{V: domain.Examples().Value()},
		Version:      domain.Version(),
		Active:       domain.IsActive(),
	}
}
