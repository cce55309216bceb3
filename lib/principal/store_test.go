// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package principal_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/depot/lib/capability"
	"github.com/bureau-foundation/depot/lib/clock"
	"github.com/bureau-foundation/depot/lib/principal"
)

func openTestStore(t *testing.T) *principal.Store {
	t.Helper()
	store, err := principal.OpenStore(principal.StoreConfig{
		Path:  filepath.Join(t.TempDir(), "principals.db"),
		Clock: clock.Fake(time.Unix(1700000000, 0)),
	})
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return store
}

func TestReservedGroupsExist(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	public, err := store.Group(ctx, principal.Public)
	if err != nil {
		t.Fatalf("Group(public): %v", err)
	}
	if public.Capabilities != 0 {
		t.Errorf("public capabilities = %v, want none", public.Capabilities)
	}

	everything, err := store.Group(ctx, principal.Everything)
	if err != nil {
		t.Fatalf("Group(everything): %v", err)
	}
	if !everything.Capabilities.Has(capability.AccessAllObjects) {
		t.Error("everything group lacks access_all_objects")
	}
}

func TestCreateUserCreatesPrivateGroupAndMemberships(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.CreateUser(ctx, "mallory"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	private, err := store.Group(ctx, "mallory")
	if err != nil {
		t.Fatalf("private group missing: %v", err)
	}
	if !private.Private {
		t.Error("user's own group is not marked private")
	}

	snapshot, err := store.Resolve(ctx, "mallory")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !snapshot.Member("mallory") {
		t.Error("user is not a member of their private group")
	}
	if !snapshot.Member(principal.Public) {
		t.Error("user is not a member of public")
	}
	if snapshot.Member(principal.Everything) {
		t.Error("user is a member of everything without being added")
	}
}

func TestNameNamespaceIsShared(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.CreateUser(ctx, "shared-name"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := store.CreateGroup(ctx, "shared-name", 0); !errors.Is(err, principal.ErrExists) {
		t.Errorf("CreateGroup over user name: err = %v, want ErrExists", err)
	}

	if _, err := store.CreateGroup(ctx, "analysts", 0); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if _, err := store.CreateUser(ctx, "analysts"); !errors.Is(err, principal.ErrExists) {
		t.Errorf("CreateUser over group name: err = %v, want ErrExists", err)
	}

	if _, err := store.CreateGroup(ctx, principal.Public, 0); !errors.Is(err, principal.ErrExists) {
		t.Errorf("CreateGroup(public): err = %v, want ErrExists", err)
	}
}

func TestValidateNameRules(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"alice", true},
		{"team-42.analysts_eu", true},
		{"", false},
		{"Alice", false},
		{"with space", false},
		{".hidden", false},
		{"way-too-long-name-for-a-group-or-user", false},
		{"slash/name", false},
	}
	for _, tc := range cases {
		err := principal.ValidateName(tc.name)
		if tc.valid && err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", tc.name, err)
		}
		if !tc.valid && err == nil {
			t.Errorf("ValidateName(%q) = nil, want error", tc.name)
		}
	}
}

func TestCapabilityUnionAcrossGroups(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	taggers := capability.Set(0).With(capability.AddingTags)
	if _, err := store.CreateGroup(ctx, "taggers", taggers); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if _, err := store.CreateGroup(ctx, "idle", 0); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	for _, user := range []string{"alice", "bob"} {
		if _, err := store.CreateUser(ctx, user); err != nil {
			t.Fatalf("CreateUser(%s): %v", user, err)
		}
		if err := store.AddMember(ctx, "idle", user); err != nil {
			t.Fatalf("AddMember(idle, %s): %v", user, err)
		}
	}
	if err := store.AddMember(ctx, "taggers", "alice"); err != nil {
		t.Fatalf("AddMember(taggers, alice): %v", err)
	}

	// Alice is in {taggers: adding_tags, idle: none} and can tag.
	aliceCaps, err := store.CapabilitiesOf(ctx, "alice")
	if err != nil {
		t.Fatalf("CapabilitiesOf(alice): %v", err)
	}
	if !aliceCaps.Has(capability.AddingTags) {
		t.Error("alice lacks adding_tags despite taggers membership")
	}

	// Bob is only in idle and cannot.
	bobCaps, err := store.CapabilitiesOf(ctx, "bob")
	if err != nil {
		t.Fatalf("CapabilitiesOf(bob): %v", err)
	}
	if bobCaps.Has(capability.AddingTags) {
		t.Error("bob has adding_tags without any granting group")
	}
}

func TestPrivateGroupMembershipImmutable(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, user := range []string{"carol", "dave"} {
		if _, err := store.CreateUser(ctx, user); err != nil {
			t.Fatalf("CreateUser(%s): %v", user, err)
		}
	}

	if err := store.AddMember(ctx, "carol", "dave"); !errors.Is(err, principal.ErrPrivateGroup) {
		t.Errorf("AddMember into private group: err = %v, want ErrPrivateGroup", err)
	}
	if err := store.RemoveMember(ctx, "carol", "carol"); !errors.Is(err, principal.ErrPrivateGroup) {
		t.Errorf("RemoveMember from private group: err = %v, want ErrPrivateGroup", err)
	}
	if err := store.RemoveMember(ctx, principal.Public, "carol"); !errors.Is(err, principal.ErrPrivateGroup) {
		t.Errorf("RemoveMember from public: err = %v, want ErrPrivateGroup", err)
	}
}

func TestSetCapabilitiesTakesEffect(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.CreateGroup(ctx, "ops", 0); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if _, err := store.CreateUser(ctx, "erin"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := store.AddMember(ctx, "ops", "erin"); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	caps, err := store.CapabilitiesOf(ctx, "erin")
	if err != nil {
		t.Fatalf("CapabilitiesOf: %v", err)
	}
	if caps.Has(capability.RemovingObjects) {
		t.Fatal("erin has removing_objects before the toggle")
	}

	toggled := capability.Set(0).With(capability.RemovingObjects)
	if err := store.SetCapabilities(ctx, "ops", toggled); err != nil {
		t.Fatalf("SetCapabilities: %v", err)
	}

	caps, err = store.CapabilitiesOf(ctx, "erin")
	if err != nil {
		t.Fatalf("CapabilitiesOf: %v", err)
	}
	if !caps.Has(capability.RemovingObjects) {
		t.Error("capability toggle not visible to the next decision")
	}

	if err := store.SetCapabilities(ctx, "no-such-group", toggled); !errors.Is(err, principal.ErrNotFound) {
		t.Errorf("SetCapabilities on unknown group: err = %v, want ErrNotFound", err)
	}
}

func TestGroupsWithCapability(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	mirror := capability.Set(0).With(capability.AccessAllObjects)
	if _, err := store.CreateGroup(ctx, "mirror", mirror); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	names, err := store.GroupsWithCapability(ctx, capability.AccessAllObjects)
	if err != nil {
		t.Fatalf("GroupsWithCapability: %v", err)
	}
	want := map[string]bool{principal.Everything: true, "mirror": true}
	if len(names) != len(want) {
		t.Fatalf("GroupsWithCapability = %v, want %v", names, want)
	}
	for _, name := range names {
		if !want[name] {
			t.Errorf("unexpected group %q with access_all_objects", name)
		}
	}
}

func TestMembers(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.CreateGroup(ctx, "readers", 0); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	for _, user := range []string{"zoe", "abe"} {
		if _, err := store.CreateUser(ctx, user); err != nil {
			t.Fatalf("CreateUser(%s): %v", user, err)
		}
		if err := store.AddMember(ctx, "readers", user); err != nil {
			t.Fatalf("AddMember(%s): %v", user, err)
		}
	}

	members, err := store.Members(ctx, "readers")
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 2 || members[0] != "abe" || members[1] != "zoe" {
		t.Errorf("Members = %v, want [abe zoe]", members)
	}

	if _, err := store.Members(ctx, "ghost"); !errors.Is(err, principal.ErrNotFound) {
		t.Errorf("Members of unknown group: err = %v, want ErrNotFound", err)
	}

	if err := store.AddMember(ctx, "readers", "nobody"); !errors.Is(err, principal.ErrNotFound) {
		t.Errorf("AddMember of unknown user: err = %v, want ErrNotFound", err)
	}
}
