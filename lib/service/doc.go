// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service implements the Unix-socket CBOR protocol the Depot
// daemon speaks.
//
// Each connection carries exactly one request-response cycle: the
// client writes one CBOR map, the server routes it by its "action"
// field to a registered handler, writes one CBOR response, and the
// connection closes. CBOR is self-delimiting, so no framing protocol
// is needed.
//
// Requests carry the acting user in the "user" field. The daemon
// trusts it as-is: the socket's filesystem permissions decide who may
// connect, and authenticating callers is the job of whatever front
// end (REST gateway, CLI wrapper) sits in front of the socket.
package service
