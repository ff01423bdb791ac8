// Package registry provides read-only domain types projected from the
// external service registry. The registry itself (CRUD, auth, users) is an
// external collaborator; this package models only what discovery consumes.
package registry

// Status represents the lifecycle status of a registered service.
type Status string

// Status values.
const (
	StatusActive     Status = "active"
	StatusInactive   Status = "inactive"
	StatusDeprecated Status = "deprecated"
)

// Capability is a tagged function of a service, used for filtering.
type Capability struct {
	id           int64
	name         string
	description  string
	inputSchema  map[string]any
	outputSchema map[string]any
}

// NewCapability creates a Capability.
func NewCapability(id int64, name, description string) Capability {
	return Capability{id: id, name: name, description: description}
}

// WithSchemas returns a copy of the capability with JSON schemas attached.
func (c Capability) WithSchemas(input, output map[string]any) Capability {
	c.inputSchema = input
	c.outputSchema = output
	return c
}

// ID returns the capability id.
func (c Capability) ID() int64 { return c.id }

// Name returns the capability name.
func (c Capability) Name() string { return c.name }

// Description returns the capability description.
func (c Capability) Description() string { return c.description }

// InputSchema returns the optional input JSON schema.
func (c Capability) InputSchema() map[string]any { return c.inputSchema }

// OutputSchema returns the optional output JSON schema.
func (c Capability) OutputSchema() map[string]any { return c.outputSchema }

// Service is a read projection of a registered service with its capabilities
// and domains pre-joined. Only services with StatusActive are indexed.
type Service struct {
	id                    int64
	name                  string
	description           string
	status                Status
	toolType              string
	visibility            string
	endpoint              string
	version               string
	interactionModes      []string
	authType              string
	authConfig            map[string]any
	agentProtocol         string
	toolRecommendations   map[string]any
	agentCapabilities     map[string]any
	communicationPatterns map[string]any
	orchestrationMetadata map[string]any
	integrationDetails    map[string]any
	capabilities          []Capability
	domains               []string
}

// ServiceOption is a functional option for Service.
type ServiceOption func(*Service)

// WithDescription sets the service description.
func WithDescription(d string) ServiceOption {
	return func(s *Service) { s.description = d }
}

// WithStatus sets the lifecycle status.
func WithStatus(st Status) ServiceOption {
	return func(s *Service) { s.status = st }
}

// WithToolType sets the tool type.
func WithToolType(t string) ServiceOption {
	return func(s *Service) { s.toolType = t }
}

// WithVisibility sets the visibility.
func WithVisibility(v string) ServiceOption {
	return func(s *Service) { s.visibility = v }
}

// WithEndpoint sets the invocation endpoint.
func WithEndpoint(e string) ServiceOption {
	return func(s *Service) { s.endpoint = e }
}

// WithVersion sets the service version.
func WithVersion(v string) ServiceOption {
	return func(s *Service) { s.version = v }
}

// WithInteractionModes sets the interaction mode set.
func WithInteractionModes(modes ...string) ServiceOption {
	return func(s *Service) {
		s.interactionModes = append([]string{}, modes...)
	}
}

// WithAuth sets the auth type and configuration blob.
func WithAuth(authType string, authConfig map[string]any) ServiceOption {
	return func(s *Service) {
		s.authType = authType
		s.authConfig = authConfig
	}
}

// WithAgentProtocol sets the agent protocol.
func WithAgentProtocol(p string) ServiceOption {
	return func(s *Service) { s.agentProtocol = p }
}

// WithToolRecommendations sets the tool recommendation blob.
func WithToolRecommendations(m map[string]any) ServiceOption {
	return func(s *Service) { s.toolRecommendations = m }
}

// WithAgentCapabilities sets the agent capability blob.
func WithAgentCapabilities(m map[string]any) ServiceOption {
	return func(s *Service) { s.agentCapabilities = m }
}

// WithCommunicationPatterns sets the communication pattern blob.
func WithCommunicationPatterns(m map[string]any) ServiceOption {
	return func(s *Service) { s.communicationPatterns = m }
}

// WithOrchestrationMetadata sets the orchestration metadata blob.
func WithOrchestrationMetadata(m map[string]any) ServiceOption {
	return func(s *Service) { s.orchestrationMetadata = m }
}

// WithIntegrationDetails sets the integration detail blob.
func WithIntegrationDetails(m map[string]any) ServiceOption {
	return func(s *Service) { s.integrationDetails = m }
}

// WithCapabilities sets the capability list.
func WithCapabilities(caps ...Capability) ServiceOption {
	return func(s *Service) {
		s.capabilities = append([]Capability{}, caps...)
	}
}

// WithDomains sets the business domain tags.
func WithDomains(domains ...string) ServiceOption {
	return func(s *Service) {
		s.domains = append([]string{}, domains...)
	}
}

// NewService creates a Service. Status defaults to active.
func NewService(id int64, name string, opts ...ServiceOption) Service {
	s := Service{
		id:     id,
		name:   name,
		status: StatusActive,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// ID returns the stable service id.
func (s Service) ID() int64 { return s.id }

// Name returns the unique service name.
func (s Service) Name() string { return s.name }

// Description returns the service description.
func (s Service) Description() string { return s.description }

// Status returns the lifecycle status.
func (s Service) Status() Status { return s.status }

// IsActive reports whether the service is indexable.
func (s Service) IsActive() bool { return s.status == StatusActive }

// ToolType returns the tool type.
func (s Service) ToolType() string { return s.toolType }

// Visibility returns the visibility.
func (s Service) Visibility() string { return s.visibility }

// Endpoint returns the invocation endpoint.
func (s Service) Endpoint() string { return s.endpoint }

// Version returns the service version.
func (s Service) Version() string { return s.version }

// InteractionModes returns the interaction mode set.
func (s Service) InteractionModes() []string {
	return append([]string{}, s.interactionModes...)
}

// AuthType returns the auth type.
func (s Service) AuthType() string { return s.authType }

// AuthConfig returns the auth configuration blob.
func (s Service) AuthConfig() map[string]any { return s.authConfig }

// AgentProtocol returns the agent protocol.
func (s Service) AgentProtocol() string { return s.agentProtocol }

// ToolRecommendations returns the tool recommendation blob.
func (s Service) ToolRecommendations() map[string]any { return s.toolRecommendations }

// AgentCapabilities returns the agent capability blob.
func (s Service) AgentCapabilities() map[string]any { return s.agentCapabilities }

// CommunicationPatterns returns the communication pattern blob.
func (s Service) CommunicationPatterns() map[string]any { return s.communicationPatterns }

// OrchestrationMetadata returns the orchestration metadata blob.
func (s Service) OrchestrationMetadata() map[string]any { return s.orchestrationMetadata }

// IntegrationDetails returns the integration detail blob.
func (s Service) IntegrationDetails() map[string]any { return s.integrationDetails }

// Capabilities returns the capability list.
func (s Service) Capabilities() []Capability {
	return append([]Capability{}, s.capabilities...)
}

// Domains returns the business domain tags.
func (s Service) Domains() []string {
	return append([]string{}, s.domains...)
}
