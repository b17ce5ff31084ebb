package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "netmirage.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsForOmittedFields(t *testing.T) {
	path := writeTempConfig(t, `
edgeNodes:
  - ip: 198.51.100.1
    intf: eth0
    vsubnet: 10.1.0.0/25
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.NSPrefix != "nm-" {
		t.Fatalf("expected default nsPrefix, got %q", cfg.NSPrefix)
	}
	if cfg.WeightKey != "latency" {
		t.Fatalf("expected default weightKey, got %q", cfg.WeightKey)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
nsPrefix: custom-
weightKey: jitter
edgeNodes: []
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.NSPrefix != "custom-" {
		t.Fatalf("expected overridden nsPrefix, got %q", cfg.NSPrefix)
	}
	if cfg.WeightKey != "jitter" {
		t.Fatalf("expected overridden weightKey, got %q", cfg.WeightKey)
	}
}

func TestToSetupParamsParsesAddressesAndMarksSpecified(t *testing.T) {
	cfg := Defaults()
	cfg.EdgeNodes = []EdgeNode{
		{IP: "198.51.100.1", Intf: "eth0", VSubnet: "10.1.0.0/25"},
		{IP: "198.51.100.2"},
	}
	params, gmlParams, err := cfg.ToSetupParams()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(params.EdgeNodes) != 2 {
		t.Fatalf("expected 2 edge nodes, got %d", len(params.EdgeNodes))
	}
	if !params.EdgeNodes[0].IntfSpecified || !params.EdgeNodes[0].VSubnetSpecified {
		t.Fatalf("expected first edge node's intf/vsubnet to be marked specified: %+v", params.EdgeNodes[0])
	}
	if params.EdgeNodes[1].IntfSpecified || params.EdgeNodes[1].VSubnetSpecified {
		t.Fatalf("expected second edge node's intf/vsubnet to be unspecified: %+v", params.EdgeNodes[1])
	}
	if gmlParams.WeightKey != "latency" {
		t.Fatalf("expected default weightKey to carry through, got %q", gmlParams.WeightKey)
	}
	if gmlParams.ClientType != nil {
		t.Fatalf("expected nil clientType by default, got %q", *gmlParams.ClientType)
	}
}

func TestToSetupParamsRejectsMalformedAddress(t *testing.T) {
	cfg := Defaults()
	cfg.EdgeNodes = []EdgeNode{{IP: "not-an-ip"}}
	if _, _, err := cfg.ToSetupParams(); err == nil {
		t.Fatal("expected an error for a malformed edge node IP")
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
