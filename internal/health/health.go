// Package health aggregates readiness of the backing services.
package health

import (
	"net/http"

	"bizflow/internal/app/apiresp"
	"bizflow/internal/logger"

	"go.uber.org/zap"
)

type (
	// Healther reports whether a component can serve requests. IsHealthy
	// must return quickly.
	Healther interface {
		IsHealthy() bool
	}

	Component struct {
		Name     string
		Healther Healther
		// Optional components report "disabled" when Healther is nil and
		// never fail the check.
		Optional bool
	}

	Checker struct {
		logger     *logger.Logger
		components []Component
	}

	Report struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
)

const (
	StatusOK       = "ok"
	StatusDown     = "down"
	StatusDisabled = "disabled"
)

func NewChecker(log *logger.Logger, components ...Component) *Checker {
	if log == nil {
		log = logger.Nop()
	}
	return &Checker{logger: log, components: components}
}

// Check probes every component; one unhealthy required component marks the
// whole report down.
func (c *Checker) Check() Report {
	rep := Report{Status: StatusOK, Components: make(map[string]string, len(c.components))}
	for _, comp := range c.components {
		switch {
		case comp.Healther == nil && comp.Optional:
			rep.Components[comp.Name] = StatusDisabled
		case comp.Healther != nil && comp.Healther.IsHealthy():
			rep.Components[comp.Name] = StatusOK
		default:
			rep.Components[comp.Name] = StatusDown
			rep.Status = StatusDown
			c.logger.Error("health check failed", zap.String("component", comp.Name))
		}
	}
	return rep
}

func (c *Checker) Handler(w http.ResponseWriter, r *http.Request) {
	rep := c.Check()
	status := http.StatusOK
	if rep.Status != StatusOK {
		status = http.StatusServiceUnavailable
	}
	apiresp.WriteData(w, r, status, rep)
}
