package registry

// Service is a bridge component with a start/stop lifecycle managed by the service registry.
type Service interface {
	Start() error
	Stop() error
}
