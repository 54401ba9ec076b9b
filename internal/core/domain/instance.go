package domain

import (
	"fmt"
	"sort"
)

// InstanceState is the lifecycle state of the cage container.
type InstanceState string

const (
	StateAbsent   InstanceState = "absent"
	StateStarting InstanceState = "starting"
	StateRunning  InstanceState = "running"
	StateStopped  InstanceState = "stopped"
)

// PortBinding maps a host port to a container port (tcp).
type PortBinding struct {
	HostIP        string `json:"host_ip"`
	HostPort      int    `json:"host_port"`
	ContainerPort int    `json:"container_port"`
}

// Ingress and management bindings of every cage instance.
var DefaultPorts = []PortBinding{
	{HostIP: "0.0.0.0", HostPort: 443, ContainerPort: 3031},
	{HostPort: 3032, ContainerPort: 3032},
}

// Image is a built cage image.
type Image struct {
	ID  string `json:"id"`
	Tag string `json:"tag"`
}

// Instance is the handle for the single running cage container.
// It is passed through the scenario pipeline; whoever holds it owns the
// container until Kill is called.
type Instance struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Image  string            `json:"image"`
	Env    Environment       `json:"env"`
	Ports  []PortBinding     `json:"ports"`
	State  InstanceState     `json:"state"`
	Labels map[string]string `json:"labels,omitempty"`
}

// LaunchSpec describes how to start an instance.
type LaunchSpec struct {
	Image  string
	Env    Environment
	Ports  []PortBinding
	Labels map[string]string
}

// Environment is the runtime configuration handed to the cage.
type Environment map[string]string

// Recognised cage flags.
const (
	EnvDataPlaneHealthChecks = "DATA_PLANE_HEALTH_CHECKS"
	EnvAPIKeyAuth            = "EV_API_KEY_AUTH"
)

var booleanFlags = map[string]bool{
	EnvDataPlaneHealthChecks: true,
	EnvAPIKeyAuth:            true,
}

// Validate rejects boolean flags that are not "true" or "false".
func (e Environment) Validate() error {
	for k, v := range e {
		if booleanFlags[k] && v != "true" && v != "false" {
			return fmt.Errorf("%s must be true or false, got %q", k, v)
		}
	}
	return nil
}

// List renders the environment as sorted KEY=value pairs.
func (e Environment) List() []string {
	out := make([]string, 0, len(e))
	for k, v := range e {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
