// Package health tracks the status of the components the API depends on.
package health

import (
	"context"
	"sync"
	"time"

	"character-nexus/backend/pkg/logger"
)

// Status represents the health status of a component
type Status string

const (
	// StatusUp indicates a component is working correctly
	StatusUp Status = "up"
	// StatusDown indicates a component is not working
	StatusDown Status = "down"
	// StatusDegraded indicates a component is working but with reduced functionality
	StatusDegraded Status = "degraded"
)

const checkTimeout = 3 * time.Second

// Component represents a system component that can be health-checked
type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Critical    bool      `json:"critical"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"lastChecked"`
}

// Check represents a health check function
type Check func(ctx context.Context) (Status, string, error)

type registration struct {
	check    Check
	critical bool
}

// Checker manages health checks for the system
type Checker struct {
	checks      map[string]registration
	components  map[string]*Component
	checkPeriod time.Duration
	mutex       sync.RWMutex
	log         *logger.Logger
	now         func() time.Time
}

// NewChecker creates a new health checker
func NewChecker(log *logger.Logger, checkPeriod time.Duration) *Checker {
	if log == nil {
		log = logger.GetGlobal()
	}
	return &Checker{
		checks:      make(map[string]registration),
		components:  make(map[string]*Component),
		checkPeriod: checkPeriod,
		log:         log.WithComponent("health"),
		now:         time.Now,
	}
}

// RegisterCheck registers a new health check. A critical component that is
// down makes the whole system unhealthy.
func (c *Checker) RegisterCheck(name string, critical bool, check Check) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.checks[name] = registration{check: check, critical: critical}
	c.components[name] = &Component{
		Name:        name,
		Status:      StatusDown,
		Critical:    critical,
		Description: "Not checked yet",
	}
}

// RegisterPingCheck registers a check that is up exactly when ping succeeds.
func (c *Checker) RegisterPingCheck(name string, critical bool, ping func(ctx context.Context) error) {
	c.RegisterCheck(name, critical, func(ctx context.Context) (Status, string, error) {
		if err := ping(ctx); err != nil {
			return StatusDown, name + " is unreachable", err
		}
		return StatusUp, name + " is reachable", nil
	})
}

// RunChecks executes all registered health checks
func (c *Checker) RunChecks(ctx context.Context) {
	c.mutex.RLock()
	checks := make(map[string]registration, len(c.checks))
	for name, reg := range c.checks {
		checks[name] = reg
	}
	c.mutex.RUnlock()

	for name, reg := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		status, description, err := reg.check(checkCtx)
		cancel()

		c.mutex.Lock()
		component := c.components[name]
		component.Status = status
		component.Description = description
		component.LastChecked = c.now()
		component.Error = ""
		if err != nil {
			component.Error = err.Error()
		}
		c.mutex.Unlock()

		if err != nil {
			c.log.Error("Health check failed",
				"component", name,
				"status", string(status),
				"error", err.Error(),
			)
		} else {
			c.log.Debug("Health check completed",
				"component", name,
				"status", string(status),
			)
		}
	}
}

// Start runs the checks now and then periodically until ctx is done.
func (c *Checker) Start(ctx context.Context) {
	go func() {
		c.RunChecks(ctx)
		if c.checkPeriod <= 0 {
			return
		}

		ticker := time.NewTicker(c.checkPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.RunChecks(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// GetStatus returns the current health status
func (c *Checker) GetStatus() map[string]Component {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	result := make(map[string]Component, len(c.components))
	for k, v := range c.components {
		result[k] = *v
	}
	return result
}

// IsSystemHealthy returns true if all critical components are up
func (c *Checker) IsSystemHealthy() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	for _, component := range c.components {
		if component.Critical && component.Status == StatusDown {
			return false
		}
	}
	return true
}
