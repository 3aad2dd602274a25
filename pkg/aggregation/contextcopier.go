// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregation

import (
	"strings"
	"sync/atomic"
)

// PropertyContext is the minimal shape a host telemetry context must
// expose for ContextCopier to operate on it: an internal tag set (copied
// wholesale) and a public string property map (copied key-by-key, target
// wins on conflict).
type PropertyContext interface {
	// CopyTagsTo transfers this context's internal tags into dst. The host
	// telemetry API may not expose tags as a plain map, so this is left to
	// the implementation rather than modeled as data here.
	CopyTagsTo(dst PropertyContext)
	// Properties returns the source's public key/value properties.
	Properties() map[string]string
	// SetProperty sets a single public property if not already present.
	// Implementations must treat this as a no-op when key already exists.
	SetProperty(key, value string) (set bool)
}

// ContextBridge binds ContextCopier to whatever private/reflection-based
// facility the host telemetry API requires for tag transfer. Exactly one
// bridge is active per process (spec §5 "process-wide state").
type ContextBridge interface {
	Copy(src, dst PropertyContext) error
}

// defaultBridge copies tags via the PropertyContext interface itself; it
// needs no private API access and is always available, so it also serves
// as the fallback when no host-specific bridge has been installed.
type defaultBridge struct{}

func (defaultBridge) Copy(src, dst PropertyContext) error {
	src.CopyTagsTo(dst)
	return nil
}

var activeBridge atomic.Pointer[ContextBridge]

// InstallContextBridge registers the process-wide ContextBridge used by
// Copy. Copy loads the active bridge on every call, so each call replaces
// the bridge for every later Copy. Intended to be called once during host pipeline startup, from code
// that knows how to reach the host telemetry API's private tag facility.
func InstallContextBridge(b ContextBridge) {
	activeBridge.Store(&b)
}

func bridge() ContextBridge {
	if p := activeBridge.Load(); p != nil {
		return *p
	}
	// Lazily install the default under compare-exchange so concurrent
	// first callers agree on a single bridge instance without a lock.
	var b ContextBridge = defaultBridge{}
	if activeBridge.CompareAndSwap(nil, &b) {
		return b
	}
	return *activeBridge.Load()
}

// Copy transfers src's internal tags and public properties into dst:
// tags wholesale via the active ContextBridge, then properties key by key,
// skipping any destination key already present and any source key that is
// empty or all whitespace (spec P6).
func Copy(src, dst PropertyContext) error {
	if src == nil || dst == nil {
		return ErrNullArgument
	}
	if err := bridge().Copy(src, dst); err != nil {
		return ErrInternalIntegrity
	}
	for k, v := range src.Properties() {
		if strings.TrimSpace(k) == "" {
			continue
		}
		dst.SetProperty(k, v)
	}
	return nil
}
