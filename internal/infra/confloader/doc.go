// Package confloader loads layered configuration with koanf.
//
// Sources, highest priority first:
//
//  1. Command-line flags (LoadMap)
//  2. Environment variables (SNAPBRIDGE_SECTION_KEY)
//  3. A YAML configuration file
//  4. Whatever the target struct already holds
//
// Watcher reports writes to the configuration file so callers can apply
// the settings that are safe to change at runtime.
package confloader
