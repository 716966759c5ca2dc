// Package config provides configuration structures and utilities for
// harvester. It defines the main options for container ingestion,
// record assembly, output selection, and external crawler runs.
package config
