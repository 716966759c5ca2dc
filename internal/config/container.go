package config

import "github.com/nao1215/harvester/internal/content"

// ContainerConfig holds per-archive configuration for a single
// container. This allows customizing assembly behavior per archive
// when one config file drives many harvests.
type ContainerConfig struct {
	// PriorInventory is a URL inventory file from an earlier crawl of
	// the same site (URL list, or sitemap for .xml files), used for
	// deletion reconciliation.
	PriorInventory string `yaml:"priorInventory,omitempty"` //nolint:tagliatelle // established config key

	// Outputs lists output paths for this container's record set.
	// The file extension selects the format.
	Outputs []string `yaml:"outputs,omitempty"`

	// KeywordLimit overrides the global keyword limit for this
	// container. If zero, the global limit is used.
	KeywordLimit int `yaml:"keywordLimit,omitempty"` //nolint:tagliatelle // established config key

	// KeepHTML overrides payload retention for this container.
	KeepHTML bool `yaml:"keepHtml,omitempty"` //nolint:tagliatelle // established config key
}

// File represents the structure of the .harvester configuration file.
type File struct {
	// Rules are the tag extraction rules applied to HTML payloads.
	// When empty, the built-in defaults are used.
	Rules content.Rules `yaml:"rules,omitempty"`

	// Containers maps container base names to their per-archive
	// configurations. Keys are the archive file name without
	// directories (e.g., "news-site.wacz").
	Containers map[string]ContainerConfig `yaml:"containers,omitempty"`

	// Defaults contains default container configuration applied to
	// all containers unless overridden per container.
	Defaults ContainerConfig `yaml:"defaults,omitempty"`
}

// GetContainerConfig returns the configuration for a container base
// name. It merges the container-specific configuration with defaults.
func (cf *File) GetContainerConfig(baseName string) ContainerConfig {
	// Start with defaults
	result := cf.Defaults

	// Override with container-specific configuration if present
	if cc, ok := cf.Containers[baseName]; ok {
		if cc.PriorInventory != "" {
			result.PriorInventory = cc.PriorInventory
		}
		if len(cc.Outputs) > 0 {
			result.Outputs = cc.Outputs
		}
		if cc.KeywordLimit != 0 {
			result.KeywordLimit = cc.KeywordLimit
		}
		if cc.KeepHTML {
			result.KeepHTML = true
		}
	}

	return result
}

// ExtractionRules returns the configured tag extraction rules, falling
// back to the built-in defaults when the file defines none.
func (cf *File) ExtractionRules() content.Rules {
	if cf == nil || len(cf.Rules) == 0 {
		return content.DefaultRules()
	}
	return cf.Rules
}
