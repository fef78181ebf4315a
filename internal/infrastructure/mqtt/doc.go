// Package mqtt connects gatehouse to an MQTT broker.
//
// The broker carries outbound notifications only: reset-link deliveries for
// the mail relay and the retained service status. gatehouse never
// subscribes, so there is no inbound message path to secure.
//
// Topics hang off a configurable prefix (default "gatehouse"):
//
//	{prefix}/system/status        retained online/offline status, also the LWT
//	{prefix}/notify/reset-link    password-reset deliveries
//
// Reset-link payloads contain live secrets. Production brokers must use TLS
// and restrict the notify topic to the relay's credentials.
package mqtt
