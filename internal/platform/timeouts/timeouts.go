// Package timeouts defines shared timeout constants used across the service.
// Centralizing these values prevents drift between platform boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// PlatformCall caps the time allowed for a single chat platform REST call.
const PlatformCall = 5 * time.Second

// GatewayHandshake caps the wait for the gateway hello/identify exchange.
const GatewayHandshake = 10 * time.Second

// GatewayReconnect is the pause between gateway reconnect attempts.
const GatewayReconnect = 5 * time.Second

// Shutdown limits how long servers wait for in-flight work during graceful
// shutdown.
const Shutdown = 5 * time.Second
