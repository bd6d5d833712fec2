// Package configs provides embedded configuration templates.
//
// Templates are embedded at build time with //go:embed so they ship with
// every distribution of the binary, source builds included. They are the
// starting point 'memcore config init' writes out; the loader itself never
// reads them (defaults live in internal/config).
//
// Configuration hierarchy (see internal/config Load):
//  1. Hardcoded defaults
//  2. User config (~/.config/memcore/config.yaml)
//  3. Project config (.memcore.yaml)
//  4. Environment variables (MEMCORE_*)
package configs

import _ "embed"

// UserConfigTemplate is the machine-level template written by
// 'memcore config init' to ~/.config/memcore/config.yaml. It holds settings
// that apply to every project on this machine, like the Ollama host and the
// data directory.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the project-level template for .memcore.yaml in
// a project root. It holds settings worth version-controlling with the
// project, like extraction scopes and the spool directory.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
