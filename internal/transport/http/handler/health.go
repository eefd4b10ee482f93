package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Dependency is one backend the health check pings. A nil Ping reports the
// dependency as disabled without failing the check.
type Dependency struct {
	Name string
	Ping func(ctx context.Context) error
}

type HealthHandler struct {
	appName      string
	env          string
	startedAt    time.Time
	dependencies []Dependency
}

type dependencyStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func NewHealthHandler(appName, env string, startedAt time.Time, dependencies ...Dependency) *HealthHandler {
	return &HealthHandler{appName: appName, env: env, startedAt: startedAt, dependencies: dependencies}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	allOK := true
	statuses := make(gin.H, len(h.dependencies))
	for _, d := range h.dependencies {
		status := dependencyStatus{OK: true}
		switch {
		case d.Ping == nil:
			status.Message = "disabled"
		default:
			if err := d.Ping(ctx); err != nil {
				status = dependencyStatus{OK: false, Message: err.Error()}
				allOK = false
			}
		}
		statuses[d.Name] = status
	}

	statusCode := http.StatusOK
	if !allOK {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, gin.H{
		"app":          h.appName,
		"env":          h.env,
		"uptime_sec":   int(time.Since(h.startedAt).Seconds()),
		"dependencies": statuses,
	})
}
