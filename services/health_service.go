package services

import (
	"context"
	"time"
)

const healthPingTimeout = 1500 * time.Millisecond

// Pinger is satisfied by a thin wrapper over mongo.Client.Ping.
type Pinger func(ctx context.Context) error

type HealthStatus struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Error    string `json:"error,omitempty"`
}

type HealthService struct {
	ping Pinger
}

func NewHealthService(ping Pinger) *HealthService {
	return &HealthService{ping: ping}
}

// Check reports degraded when the database does not answer in time.
func (s *HealthService) Check(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, healthPingTimeout)
	defer cancel()

	if err := s.ping(ctx); err != nil {
		return HealthStatus{Status: "degraded", Database: "unreachable", Error: err.Error()}
	}
	return HealthStatus{Status: "ok", Database: "connected"}
}
