package core

import (
	"context"
	"testing"
)

func TestCfgxConfigProviderAppliesDefaults(t *testing.T) {
	provider := NewCfgxConfigProvider(staticRawConfigLoader{Values: map[string]any{
		"environment_id": "env-42",
		"client_id":      "client-42",
	}})

	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.EnvironmentID != "env-42" {
		t.Fatalf("environment_id = %q", cfg.EnvironmentID)
	}
	if cfg.Region != string(RegionNA) {
		t.Fatalf("region default not applied, got %q", cfg.Region)
	}
	if cfg.Logging.APILevel != "INFO" {
		t.Fatalf("api log level default not applied, got %q", cfg.Logging.APILevel)
	}
}

func TestGoOptionsResolverLayering(t *testing.T) {
	defaults := DefaultConfig()

	loaded := Config{
		FriendlyName:  "prod tenant",
		Region:        "EU",
		EnvironmentID: "env-1",
		ClientID:      "client-1",
	}
	runtime := Config{
		Region:          "CA",
		AttributePrefix: "acme_",
	}

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolved.Region != "CA" {
		t.Fatalf("runtime region should win, got %q", resolved.Region)
	}
	if resolved.EnvironmentID != "env-1" {
		t.Fatalf("loaded environment_id should survive, got %q", resolved.EnvironmentID)
	}
	if resolved.FriendlyName != "prod tenant" {
		t.Fatalf("friendly name = %q", resolved.FriendlyName)
	}
	if resolved.AttributePrefix != "acme_" {
		t.Fatalf("attribute prefix = %q", resolved.AttributePrefix)
	}
	if resolved.Logging.APILevel != "INFO" {
		t.Fatalf("defaults should fill unset logging level, got %q", resolved.Logging.APILevel)
	}
}

func TestGoOptionsResolverAdditionalAttributes(t *testing.T) {
	loaded := Config{
		Region:          "NA",
		AdditionalAttrs: map[string]string{"costCenter": "Cost center code."},
	}

	resolved, err := GoOptionsResolver{}.Resolve(DefaultConfig(), loaded, Config{})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolved.AdditionalAttrs["costCenter"] != "Cost center code." {
		t.Fatalf("additional attributes lost in merge: %v", resolved.AdditionalAttrs)
	}
}
