package config

import (
	"os"
	"strings"
)

func envFlag(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// AllowNegativeStock lets outgoing stock ledger entries drive a warehouse balance below zero.
//
// Set via env:
// - ALLOW_NEGATIVE_STOCK=true
func AllowNegativeStock() bool {
	return envFlag("ALLOW_NEGATIVE_STOCK")
}

// MfgDebugLogEnabled raises the logger to info and logs every state transition.
//
// Set via env:
// - MFG_DEBUG_LOG=true
func MfgDebugLogEnabled() bool {
	return envFlag("MFG_DEBUG_LOG")
}

// PublishEventsEnabled starts the outbox dispatcher that pushes manufacturing events to Pub/Sub.
// Events are always written to the outbox table; this only controls delivery.
//
// Set via env:
// - MFG_PUBLISH_EVENTS=true
func PublishEventsEnabled() bool {
	return envFlag("MFG_PUBLISH_EVENTS")
}
