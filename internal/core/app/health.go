package app

import (
	"context"
	"fmt"
	"time"
)

type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
}

type HealthService struct {
	app *App
}

func NewHealthService(app *App) *HealthService {
	return &HealthService{app: app}
}

func (s *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:     "up",
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]string),
	}
	if err := ctx.Err(); err != nil {
		status.Status = "down"
		status.Components["context"] = err.Error()
		return status
	}

	// Dependency index
	s.app.depsMu.Lock()
	deps := s.app.deps
	s.app.depsMu.Unlock()
	if deps == nil {
		status.Status = "starting"
		status.Components["index"] = "not built"
	} else {
		status.Components["index"] = fmt.Sprintf("ok (%d archives, %d classes)", deps.index.Archives(), deps.index.Len())
	}

	// Last run
	if last := s.app.LastReport(); last != nil {
		status.Components["last_run"] = fmt.Sprintf("ok (%d mapped, %d unmapped classes)", len(last.Result.Mapped), len(last.Result.Unmapped))
	} else {
		status.Components["last_run"] = "none"
	}

	// Run store
	if s.app.store != nil {
		status.Components["run_store"] = "ok"
	} else if s.app.Config.DB.Enabled {
		status.Status = "degraded"
		status.Components["run_store"] = "missing but enabled in config"
	}

	return status
}
