package service

import (
	"context"
	"testing"
)

func TestSimulatedDispatcherSuccessRate(t *testing.T) {
	req := &DispatchRequest{Email: "u1@example.com", Subject: "Hi", CampaignID: "camp-1"}

	always := NewSimulatedDispatcher(1.0)
	for i := 0; i < 3; i++ {
		if err := always.Dispatch(context.Background(), req); err != nil {
			t.Errorf("Expected success at rate 1.0, got: %v", err)
		}
	}

	never := NewSimulatedDispatcher(0.0)
	for i := 0; i < 3; i++ {
		if err := never.Dispatch(context.Background(), req); err == nil {
			t.Error("Expected failure at rate 0.0")
		}
	}
}

func TestSimulatedDispatcherClampsRate(t *testing.T) {
	d := NewSimulatedDispatcher(2.5)
	if err := d.Dispatch(context.Background(), &DispatchRequest{Email: "u1@example.com"}); err != nil {
		t.Errorf("Rate above 1.0 should clamp to always-succeed, got: %v", err)
	}
}

func TestSimulatedDispatcherHonorsContext(t *testing.T) {
	d := NewSimulatedDispatcher(1.0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := d.Dispatch(ctx, &DispatchRequest{Email: "u1@example.com"}); err == nil {
		t.Error("Expected error for cancelled context")
	}
}
