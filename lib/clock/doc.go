// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Every store stamps rows with creation times; taking a Clock instead
// of calling time.Now directly keeps those timestamps deterministic
// under test. Production code injects Real(); tests inject Fake() with
// a fixed epoch and advance it explicitly:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	store, _ := principal.OpenStore(principal.StoreConfig{Clock: c, ...})
//	c.Advance(5 * time.Second)
package clock
