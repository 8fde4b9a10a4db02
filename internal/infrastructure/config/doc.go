// Package config loads and validates BioCard Core configuration.
//
// Configuration comes from three layers, later layers overriding earlier:
//
//  1. Hardcoded defaults
//  2. A YAML file (configs/config.yaml by default)
//  3. Environment variables (BIOCARD_SECTION_KEY)
//
// Secrets (JWT signing key, client-token key) ship with development-only
// defaults so the service runs out of the box; Config.InsecureDefaults
// reports which are in use so startup can warn loudly. Production
// deployments must set BIOCARD_JWT_SECRET and BIOCARD_CLIENT_SECRET.
package config
