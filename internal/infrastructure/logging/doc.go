// Package logging provides the structured logger shared by every gatehouse
// component. It wraps log/slog, stamps each record with the service name and
// build version, and masks attributes whose keys name credential material.
package logging
