// Package configs provides embedded configuration templates for kestrel.
//
// How Configuration Templates Work:
//
// Templates are embedded at build time using Go's //go:embed directive.
// This ensures they are available in ALL distributions:
//   - Source builds (go install)
//   - Binary releases
//
// The templates are used by:
//   - cmd/kestrel/cmd/init.go → writes .kestrel.yaml in the project root
//
// Configuration Hierarchy (see internal/config/config.go Load()):
//  1. Hardcoded defaults (internal/config/config.go New())
//  2. User config (~/.config/kestrel/config.yaml)
//  3. Project config (.kestrel.yaml)
//  4. Environment variables (KESTREL_*)
//
// To modify templates, edit the .yaml files in this directory and rebuild.
package configs

import _ "embed"

// UserConfigTemplate is the template for user/machine-level configuration.
// Contains machine-specific settings: embedder provider/host, worker counts.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the template for project-level configuration,
// written by `kestrel init` into .kestrel.yaml. Contains the project's
// collections and search tuning, meant to be checked into version control.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
