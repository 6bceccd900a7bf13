package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// DispatchRequest is one email handed to the delivery engine.
type DispatchRequest struct {
	Email      string
	Subject    string
	HTMLBody   string
	TextBody   string
	Language   string
	CampaignID string
	SampleSend bool
}

// Dispatcher delivers a single email. The real delivery engine lives outside
// this service; the simulated implementation below stands in for it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *DispatchRequest) error
}

// SimulatedDispatcher mimics the delivery engine: random latency and a
// configurable success rate.
type SimulatedDispatcher struct {
	successRate float64 // 0.0 to 1.0 (e.g., 0.95 = 95% success)
	rand        *rand.Rand
}

// NewSimulatedDispatcher creates a new simulated dispatcher
// successRate: probability of successful delivery (0.0 to 1.0)
func NewSimulatedDispatcher(successRate float64) *SimulatedDispatcher {
	if successRate < 0.0 {
		successRate = 0.0
	}
	if successRate > 1.0 {
		successRate = 1.0
	}

	return &SimulatedDispatcher{
		successRate: successRate,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Dispatch simulates sending one email. It honors ctx, so a per-recipient
// timeout surfaces as a failed dispatch rather than a hung batch.
func (d *SimulatedDispatcher) Dispatch(ctx context.Context, req *DispatchRequest) error {
	// Simulate network latency (50-200ms)
	latency := time.Duration(50+d.rand.Intn(150)) * time.Millisecond

	timer := time.NewTimer(latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("failed to send email to %s: %w", req.Email, ctx.Err())
	case <-timer.C:
	}

	if d.rand.Float64() >= d.successRate {
		failures := []string{
			"network timeout",
			"mailbox unavailable",
			"rate limit exceeded",
			"service temporarily unavailable",
			"message rejected by provider",
		}
		reason := failures[d.rand.Intn(len(failures))]
		return fmt.Errorf("failed to send email to %s: %s", req.Email, reason)
	}

	return nil
}
