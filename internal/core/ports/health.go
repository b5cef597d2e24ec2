package ports

import "context"

//go:generate mockgen -source=health.go -destination=mocks/mock_health.go -package=mocks

// HealthChecker checks external dependency health.
type HealthChecker interface {
	// Ping verifies connectivity. Returns nil if healthy.
	Ping(ctx context.Context) error
	// Name returns the dependency name (e.g., "postgresql", "redis").
	Name() string
}

// CheckFunc adapts a plain function to HealthChecker.
type CheckFunc struct {
	Dependency string
	Fn         func(ctx context.Context) error
}

// Ping runs Fn.
func (c CheckFunc) Ping(ctx context.Context) error { return c.Fn(ctx) }

// Name returns Dependency.
func (c CheckFunc) Name() string { return c.Dependency }
