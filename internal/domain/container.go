// Package domain contains pure business types without external dependencies.
// These types are used throughout the application and have no tags or framework dependencies.
package domain

// RestartPolicy defines when the supervisor restarts a managed service.
type RestartPolicy string

const (
	RestartNever     RestartPolicy = "no"
	RestartOnFailure RestartPolicy = "on-failure"
	RestartAlways    RestartPolicy = "always"
)

// PortBinding publishes a container port on the host.
// An empty HostIP binds all interfaces.
type PortBinding struct {
	HostIP        string
	HostPort      string
	ContainerPort string
	Protocol      string // "tcp" or "udp"
}

// VolumeMount bind-mounts a host path into the container.
type VolumeMount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// ServiceDefinition is the desired state of one managed service.
// Definitions are regenerated on every run, never diffed.
type ServiceDefinition struct {
	Name        string
	Description string
	Image       string
	Restart     RestartPolicy
	Network     string
	Ports       []PortBinding
	Volumes     []VolumeMount
	Env         map[string]string
	DependsOn   []string // services that must be started first
	StopTimeout int      // seconds
}

// UnitName returns the supervisor unit name for the service.
func (d ServiceDefinition) UnitName() string {
	return UnitPrefix + d.Name + ".service"
}
