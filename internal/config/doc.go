// Package config handles configuration loading for session-core.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${SESSION_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	backend:
//	  timeout: "30s"
//	agent:
//	  timeout: "2m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Record store client:
//
//	backend:
//	  base_url: "http://localhost:8080"
//	  token: "${SESSION_TOKEN}"
//	  timeout: "30s"
//
// Agent processor:
//
//	agent:
//	  url: "http://localhost:9090/generate"
//	  timeout: "2m"
//
// Server settings (session-backend):
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Database:
//
//	database:
//	  path: "/var/lib/session-core/sessions.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${SESSION_JWT_SECRET}"
//	  token_ttl: "24h"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration from a path:
//
//	cfg, err := config.Load("/etc/session-core/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
