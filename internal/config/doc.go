// Package config loads auditlog-gateway configuration from YAML or TOML.
//
// Values of the form ${VAR} are replaced from the environment before parsing,
// so secrets such as the write key stay out of the file:
//
//	auth:
//	  auth_key: "${BACKEND_AUTH_KEY}"
//	  jwt_secret: "${AUDITLOG_JWT_SECRET}"
//
// Missing addresses, dedupe bounds, notify levels and logging settings are
// filled with defaults before Validate runs.
package config
