package config

import (
	"testing"
	"time"
)

func setRequiredPasswords(t *testing.T) {
	t.Helper()
	t.Setenv("ADMIN_DB_PASSWORD", "admin-secret")
	t.Setenv("CORE_DB_PASSWORD", "core-secret")
	t.Setenv("WORKFLOW_DB_PASSWORD", "workflow-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredPasswords(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %s", cfg.Server.Port)
	}
	if cfg.AdminDB.DBName != "storyadmin" || cfg.CoreDB.DBName != "storycore" || cfg.WorkflowDB.DBName != "storyworkflow" {
		t.Error("Unexpected default database names")
	}
	if cfg.Batch.Size != 500 {
		t.Errorf("Batch size = %d", cfg.Batch.Size)
	}
	if cfg.Dispatch.Timeout != 10*time.Second {
		t.Errorf("Dispatch timeout = %v", cfg.Dispatch.Timeout)
	}
	if !cfg.IsDevelopment() {
		t.Error("Expected development mode by default")
	}
}

func TestLoadRequiresAllThreePasswords(t *testing.T) {
	setRequiredPasswords(t)
	t.Setenv("WORKFLOW_DB_PASSWORD", "")

	if _, err := Load(); err == nil {
		t.Error("Expected error when a database password is missing")
	}
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db.internal", Port: "5433", User: "app", Password: "pw", DBName: "storyadmin"}
	want := "host=db.internal port=5433 user=app password=pw dbname=storyadmin sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}

func TestRabbitMQURL(t *testing.T) {
	setRequiredPasswords(t)
	t.Setenv("RABBITMQ_HOST", "mq.internal")
	t.Setenv("RABBITMQ_DEFAULT_USER", "svc")
	t.Setenv("RABBITMQ_DEFAULT_PASS", "pw")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := cfg.GetRabbitMQURL(); got != "amqp://svc:pw@mq.internal:5672/" {
		t.Errorf("URL = %q", got)
	}
}

func TestSampleAddressesList(t *testing.T) {
	setRequiredPasswords(t)
	t.Setenv("SAMPLE_ADDRESSES", "qa1@storyteam.dev, qa2@storyteam.dev,,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Batch.SampleAddresses) != 2 {
		t.Fatalf("SampleAddresses = %v", cfg.Batch.SampleAddresses)
	}
	if cfg.Batch.SampleAddresses[1] != "qa2@storyteam.dev" {
		t.Errorf("SampleAddresses[1] = %q", cfg.Batch.SampleAddresses[1])
	}
}
