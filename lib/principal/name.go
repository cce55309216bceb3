// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package principal

import "fmt"

const (
	// Public is the reserved group every user is a member of.
	Public = "public"

	// Everything is the reserved group holding access_all_objects.
	Everything = "everything"

	// MaxNameLength is the maximum length in bytes for a user or
	// group name.
	MaxNameLength = 32
)

// allowedChars is the set of characters permitted in user and group
// names. Checked via a lookup table for O(1) per-character validation.
var allowedChars [256]bool

func init() {
	for c := 'a'; c <= 'z'; c++ {
		allowedChars[c] = true
	}
	for c := '0'; c <= '9'; c++ {
		allowedChars[c] = true
	}
	allowedChars['.'] = true
	allowedChars['_'] = true
	allowedChars['-'] = true
}

// ValidateName checks that a user or group name is acceptable. Users
// and groups share one namespace (every user owns a same-named private
// group), so one rule set covers both.
//
// Rules enforced:
//   - Non-empty
//   - Only lowercase a-z, 0-9, ., _, -
//   - Does not start with "." (hidden-file lookalikes in exports
//     and log paths)
//   - Maximum 32 bytes
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name is empty")
	}

	if len(name) > MaxNameLength {
		return fmt.Errorf("name is %d characters, maximum is %d", len(name), MaxNameLength)
	}

	for i := 0; i < len(name); i++ {
		if !allowedChars[name[i]] {
			return fmt.Errorf("invalid character %q at position %d (allowed: a-z, 0-9, ., _, -)", name[i], i)
		}
	}

	if name[0] == '.' {
		return fmt.Errorf("name must not start with %q", ".")
	}

	return nil
}
