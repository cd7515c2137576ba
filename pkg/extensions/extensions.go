// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the hooks an embedding program can supply to the
// focus service.
//
// The open source build uses no-op defaults for every hook. A host
// application that already tracks productivity signals, or that wants its
// own notification channel or audit trail, injects implementations through
// ServiceOptions.
//
// # Extension Categories
//
//   - audit.go: Lifecycle audit trail (AuditLogger)
//   - hooks.go: External state source and event hook (StateSource, EventHook)
//
// # Usage
//
//	opts := extensions.DefaultOptions().
//	    WithAudit(extensions.NewSlogAuditLogger(logger)).
//	    WithEventHook(myPushService)
//	svc, err := focus.New(cfg, opts)
//
// # Thread Safety
//
// All interface implementations must be safe for concurrent use.
package extensions

// ServiceOptions groups all extension points for service configuration.
//
// All fields are optional. A nil StateSource means the service serves
// self-reported states from its own store; a nil EventHook adds no extra
// channel; a nil AuditLogger is replaced by NopAuditLogger.
type ServiceOptions struct {
	// StateSource replaces the built-in productivity state store.
	StateSource StateSource

	// EventHook receives every event in addition to the built-in sinks.
	EventHook EventHook

	// AuditLogger records lifecycle transitions.
	// Default: NopAuditLogger (discards all events)
	AuditLogger AuditLogger
}

// DefaultOptions returns ServiceOptions with no-op defaults.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuditLogger: &NopAuditLogger{},
	}
}

// WithStateSource returns a copy of opts with the given StateSource.
func (opts ServiceOptions) WithStateSource(src StateSource) ServiceOptions {
	opts.StateSource = src
	return opts
}

// WithEventHook returns a copy of opts with the given EventHook.
func (opts ServiceOptions) WithEventHook(hook EventHook) ServiceOptions {
	opts.EventHook = hook
	return opts
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}

// Audit returns the configured AuditLogger, or a NopAuditLogger.
func (opts ServiceOptions) Audit() AuditLogger {
	if opts.AuditLogger == nil {
		return &NopAuditLogger{}
	}
	return opts.AuditLogger
}
