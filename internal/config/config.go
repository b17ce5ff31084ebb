// Package config loads NetMirage's YAML configuration file into the plain
// parameter records internal/setup operates on, and supplies the defaults
// that apply when the file is silent on a field.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/walexzzy/netmirage/internal/addr"
	"github.com/walexzzy/netmirage/internal/macaddr"
	"github.com/walexzzy/netmirage/internal/setup"
)

// EdgeNode is one edge node's on-disk configuration. Intf, Mac, and VSubnet
// are optional; an omitted or empty value counts as unspecified, and
// ToSetupParams marks each non-empty one as specified on the setup.EdgeNode
// it builds.
type EdgeNode struct {
	IP      string `yaml:"ip"`
	Intf    string `yaml:"intf,omitempty"`
	Mac     string `yaml:"mac,omitempty"`
	VSubnet string `yaml:"vsubnet,omitempty"`
}

// EdgeNodeDefaults supplies fallback values shared by edge nodes that omit
// their own.
type EdgeNodeDefaults struct {
	Intf          string `yaml:"intf,omitempty"`
	GlobalVSubnet string `yaml:"globalVSubnet,omitempty"`
}

// Config is the top-level YAML document shape.
type Config struct {
	NSPrefix   string `yaml:"nsPrefix"`
	OVSDir     string `yaml:"ovsDir"`
	OVSSchema  string `yaml:"ovsSchema"`
	SoftMemCap uint64 `yaml:"softMemCap"`
	SrcFile    string `yaml:"srcFile,omitempty"`

	TwoPass    bool   `yaml:"twoPass"`
	ClientType string `yaml:"clientType,omitempty"`
	WeightKey  string `yaml:"weightKey"`

	EdgeNodes        []EdgeNode       `yaml:"edgeNodes"`
	EdgeNodeDefaults EdgeNodeDefaults `yaml:"edgeNodeDefaults"`
}

// Defaults returns the configuration Load starts from; any field the YAML
// file sets overrides it (precedence: defaults < file). No command-line flag
// overrides a configuration field.
func Defaults() Config {
	return Config{
		NSPrefix:   "nm-",
		OVSDir:     "/etc/openvswitch",
		OVSSchema:  "/usr/share/openvswitch/vswitch.ovsschema",
		SoftMemCap: 512 * 1024 * 1024,
		WeightKey:  "latency",
	}
}

// Load reads and parses a YAML configuration file, starting from Defaults
// so any field the file omits keeps its default value.
func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// ToSetupParams converts the YAML-shaped configuration into the typed
// records internal/setup consumes, parsing every address and CIDR field.
func (c Config) ToSetupParams() (setup.SetupParams, setup.SetupGraphMLParams, error) {
	params := setup.SetupParams{
		NSPrefix:   c.NSPrefix,
		OVSDir:     c.OVSDir,
		OVSSchema:  c.OVSSchema,
		SoftMemCap: c.SoftMemCap,
	}

	if c.EdgeNodeDefaults.Intf != "" {
		params.EdgeNodeDefaults.Intf = c.EdgeNodeDefaults.Intf
		params.EdgeNodeDefaults.IntfSpecified = true
	}
	if c.EdgeNodeDefaults.GlobalVSubnet != "" {
		sn, err := addr.ParseSubnet(c.EdgeNodeDefaults.GlobalVSubnet)
		if err != nil {
			return setup.SetupParams{}, setup.SetupGraphMLParams{}, fmt.Errorf("config: edgeNodeDefaults.globalVSubnet: %w", err)
		}
		params.EdgeNodeDefaults.GlobalVSubnet = sn
	}

	params.EdgeNodes = make([]setup.EdgeNode, len(c.EdgeNodes))
	for i, e := range c.EdgeNodes {
		ip, err := addr.ParseAddr(e.IP)
		if err != nil {
			return setup.SetupParams{}, setup.SetupGraphMLParams{}, fmt.Errorf("config: edgeNodes[%d].ip: %w", i, err)
		}
		edge := setup.EdgeNode{IP: ip}
		if e.Intf != "" {
			edge.Intf = e.Intf
			edge.IntfSpecified = true
		}
		if e.Mac != "" {
			mac, err := macaddr.Parse(e.Mac)
			if err != nil {
				return setup.SetupParams{}, setup.SetupGraphMLParams{}, fmt.Errorf("config: edgeNodes[%d].mac: %w", i, err)
			}
			edge.MAC = mac
			edge.MACSpecified = true
		}
		if e.VSubnet != "" {
			sn, err := addr.ParseSubnet(e.VSubnet)
			if err != nil {
				return setup.SetupParams{}, setup.SetupGraphMLParams{}, fmt.Errorf("config: edgeNodes[%d].vsubnet: %w", i, err)
			}
			edge.VSubnet = sn
			edge.VSubnetSpecified = true
		}
		params.EdgeNodes[i] = edge
	}

	gmlParams := setup.SetupGraphMLParams{
		TwoPass:   c.TwoPass,
		WeightKey: c.WeightKey,
	}
	if c.ClientType != "" {
		ct := c.ClientType
		gmlParams.ClientType = &ct
	}

	return params, gmlParams, nil
}
