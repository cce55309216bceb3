// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package attribute_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/depot/lib/attribute"
	"github.com/bureau-foundation/depot/lib/clock"
	"github.com/bureau-foundation/depot/lib/objectid"
)

func openTestStore(t *testing.T) *attribute.Store {
	t.Helper()
	store, err := attribute.OpenStore(attribute.StoreConfig{
		Path:  filepath.Join(t.TempDir(), "attributes.db"),
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

func testObject(label string) objectid.ID {
	return objectid.Compute(objectid.KindFile, []byte(label))
}

func TestDeclareKeyNormalizesAndMerges(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	def, err := store.DeclareKey(ctx, attribute.KeyDefinition{
		Name:  "  Family ",
		Label: "Malware family",
	})
	if err != nil {
		t.Fatalf("DeclareKey: %v", err)
	}
	if def.Name != "family" {
		t.Errorf("declared name = %q, want normalized %q", def.Name, "family")
	}

	// Re-declaration merges the definition under the same name.
	def, err = store.DeclareKey(ctx, attribute.KeyDefinition{
		Name:        "family",
		Label:       "Family",
		Description: "Family assigned by the config extractor",
		URLTemplate: "https://intel.example.com/family/$value",
	})
	if err != nil {
		t.Fatalf("re-DeclareKey: %v", err)
	}
	if def.Description == "" || def.URLTemplate == "" {
		t.Errorf("merge dropped fields: %+v", def)
	}

	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("re-declaration created a second key: %v", keys)
	}
}

func TestKeyNameValidation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, bad := range []string{"", "has space", "Ümlaut", "dot.ted", "way-too-long-key-name-for-any-use-at-all"} {
		if _, err := store.DeclareKey(ctx, attribute.KeyDefinition{Name: bad}); err == nil {
			t.Errorf("DeclareKey(%q) succeeded, want error", bad)
		}
	}
}

func TestKeyImmutability(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.DeclareKey(ctx, attribute.KeyDefinition{Name: "family"}); err != nil {
		t.Fatalf("DeclareKey: %v", err)
	}
	if err := store.SetACL(ctx, "family", "analysts", true, true); err != nil {
		t.Fatalf("SetACL: %v", err)
	}
	object := testObject("sample")
	if err := store.Add(ctx, object, "family", "redline", "alice"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := store.DeleteKey(ctx, "family"); !errors.Is(err, attribute.ErrImmutableKey) {
		t.Errorf("DeleteKey: err = %v, want ErrImmutableKey", err)
	}
	if err := store.RenameKey(ctx, "family", "clan"); !errors.Is(err, attribute.ErrImmutableKey) {
		t.Errorf("RenameKey: err = %v, want ErrImmutableKey", err)
	}

	// Values and ACL rows are untouched by the failed attempts.
	hits, err := store.Search(ctx, "family", "redline", true, false)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("value lost after immutability rejections: %v", hits)
	}
	acls, err := store.ACLs(ctx, "family")
	if err != nil {
		t.Fatalf("ACLs: %v", err)
	}
	if len(acls) != 1 {
		t.Errorf("ACL rows lost after immutability rejections: %v", acls)
	}
}

func TestACLGating(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.DeclareKey(ctx, attribute.KeyDefinition{Name: "c2"}); err != nil {
		t.Fatalf("DeclareKey: %v", err)
	}
	if err := store.SetACL(ctx, "c2", "analysts", true, false); err != nil {
		t.Fatalf("SetACL: %v", err)
	}

	canRead, err := store.CanRead(ctx, "c2", []string{"analysts", "public"})
	if err != nil {
		t.Fatalf("CanRead: %v", err)
	}
	if !canRead {
		t.Error("analysts cannot read despite can_read row")
	}

	canSet, err := store.CanSet(ctx, "c2", []string{"analysts"})
	if err != nil {
		t.Fatalf("CanSet: %v", err)
	}
	if canSet {
		t.Error("analysts can set without a can_set row")
	}

	canRead, err = store.CanRead(ctx, "c2", []string{"public"})
	if err != nil {
		t.Fatalf("CanRead: %v", err)
	}
	if canRead {
		t.Error("public can read without an ACL row")
	}

	// Rows are replaceable and removable at any time.
	if err := store.SetACL(ctx, "c2", "analysts", false, true); err != nil {
		t.Fatalf("SetACL replace: %v", err)
	}
	canRead, _ = store.CanRead(ctx, "c2", []string{"analysts"})
	canSet, _ = store.CanSet(ctx, "c2", []string{"analysts"})
	if canRead || !canSet {
		t.Errorf("replaced row not in effect: can_read=%v can_set=%v", canRead, canSet)
	}
	if err := store.RemoveACL(ctx, "c2", "analysts"); err != nil {
		t.Fatalf("RemoveACL: %v", err)
	}
	canSet, _ = store.CanSet(ctx, "c2", []string{"analysts"})
	if canSet {
		t.Error("removed ACL row still grants can_set")
	}

	if _, err := store.CanRead(ctx, "missing", []string{"analysts"}); !errors.Is(err, attribute.ErrNotFound) {
		t.Errorf("CanRead on undeclared key: err = %v, want ErrNotFound", err)
	}
}

func TestMultiValueAndRemoval(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.DeclareKey(ctx, attribute.KeyDefinition{Name: "tag-source"}); err != nil {
		t.Fatalf("DeclareKey: %v", err)
	}
	object := testObject("sample")

	for _, value := range []string{"feed-a", "feed-b", "feed-a"} {
		if err := store.Add(ctx, object, "tag-source", value, "alice"); err != nil {
			t.Fatalf("Add(%s): %v", value, err)
		}
	}

	attributes, err := store.ForObject(ctx, object, nil, true)
	if err != nil {
		t.Fatalf("ForObject: %v", err)
	}
	if len(attributes) != 2 {
		t.Fatalf("duplicate triple stored: %v", attributes)
	}

	if err := store.Remove(ctx, object, "tag-source", "feed-a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	attributes, err = store.ForObject(ctx, object, nil, true)
	if err != nil {
		t.Fatalf("ForObject: %v", err)
	}
	if len(attributes) != 1 || attributes[0].Value != "feed-b" {
		t.Errorf("after removal: %v", attributes)
	}

	if err := store.Add(ctx, object, "undeclared", "x", "alice"); !errors.Is(err, attribute.ErrNotFound) {
		t.Errorf("Add under undeclared key: err = %v, want ErrNotFound", err)
	}
}

func TestRemoveKeyValues(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"tag-source", "family"} {
		if _, err := store.DeclareKey(ctx, attribute.KeyDefinition{Name: name}); err != nil {
			t.Fatalf("DeclareKey(%s): %v", name, err)
		}
	}
	object := testObject("sample")
	for _, value := range []string{"feed-a", "feed-b"} {
		if err := store.Add(ctx, object, "tag-source", value, "alice"); err != nil {
			t.Fatalf("Add(%s): %v", value, err)
		}
	}
	if err := store.Add(ctx, object, "family", "emotet", "alice"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := store.RemoveKeyValues(ctx, object, "tag-source"); err != nil {
		t.Fatalf("RemoveKeyValues: %v", err)
	}
	attributes, err := store.ForObject(ctx, object, nil, true)
	if err != nil {
		t.Fatalf("ForObject: %v", err)
	}
	if len(attributes) != 1 || attributes[0].Key != "family" {
		t.Errorf("after key-scoped removal: %v", attributes)
	}

	// Absent key values are a no-op, not an error.
	if err := store.RemoveKeyValues(ctx, object, "tag-source"); err != nil {
		t.Errorf("second RemoveKeyValues: %v", err)
	}
}

func TestListingFiltersByACLAndHidden(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.DeclareKey(ctx, attribute.KeyDefinition{Name: "family"}); err != nil {
		t.Fatalf("DeclareKey: %v", err)
	}
	if _, err := store.DeclareKey(ctx, attribute.KeyDefinition{Name: "customer", Hidden: true}); err != nil {
		t.Fatalf("DeclareKey: %v", err)
	}
	if err := store.SetACL(ctx, "family", "analysts", true, false); err != nil {
		t.Fatalf("SetACL: %v", err)
	}
	if err := store.SetACL(ctx, "customer", "analysts", true, false); err != nil {
		t.Fatalf("SetACL: %v", err)
	}

	object := testObject("sample")
	if err := store.Add(ctx, object, "family", "emotet", "alice"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := store.Add(ctx, object, "customer", "acme-corp", "alice"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Ordinary reader: hidden key concealed even with a can_read row.
	attributes, err := store.ForObject(ctx, object, []string{"analysts"}, false)
	if err != nil {
		t.Fatalf("ForObject: %v", err)
	}
	if len(attributes) != 1 || attributes[0].Key != "family" {
		t.Errorf("listing for analysts = %v, want only family", attributes)
	}

	// No ACL rows at all: nothing visible.
	attributes, err = store.ForObject(ctx, object, []string{"public"}, false)
	if err != nil {
		t.Fatalf("ForObject: %v", err)
	}
	if len(attributes) != 0 {
		t.Errorf("listing for public = %v, want empty", attributes)
	}

	// reading_all_attributes sees everything.
	attributes, err = store.ForObject(ctx, object, nil, true)
	if err != nil {
		t.Fatalf("ForObject: %v", err)
	}
	if len(attributes) != 2 {
		t.Errorf("listing with reading_all = %v, want both keys", attributes)
	}
}

func TestHiddenKeySearchConcealment(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.DeclareKey(ctx, attribute.KeyDefinition{Name: "customer", Hidden: true}); err != nil {
		t.Fatalf("DeclareKey: %v", err)
	}
	object := testObject("sample")
	if err := store.Add(ctx, object, "customer", "acme-corp", "alice"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Wildcard search returns nothing for ordinary readers.
	hits, err := store.Search(ctx, "customer", "acme*", false, false)
	if err != nil {
		t.Fatalf("wildcard Search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("wildcard search leaked hidden values: %v", hits)
	}

	// Exact match confirms a value the caller already knows.
	hits, err = store.Search(ctx, "customer", "acme-corp", true, false)
	if err != nil {
		t.Fatalf("exact Search: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("exact search on hidden key = %v, want one hit", hits)
	}

	// reading_all_attributes may wildcard.
	hits, err = store.Search(ctx, "customer", "acme*", false, true)
	if err != nil {
		t.Fatalf("bypass Search: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("wildcard with reading_all = %v, want one hit", hits)
	}
}

func TestWildcardEscaping(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.DeclareKey(ctx, attribute.KeyDefinition{Name: "path"}); err != nil {
		t.Fatalf("DeclareKey: %v", err)
	}
	object := testObject("sample")
	if err := store.Add(ctx, object, "path", `C:\Users\100%_done`, "alice"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := store.Add(ctx, object, "path", `C:\Users\fully done`, "alice"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// "%" and "_" in the query are literals, not LIKE wildcards.
	hits, err := store.Search(ctx, "path", `*100%_done`, false, false)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Value != `C:\Users\100%_done` {
		t.Errorf("escaped wildcard search = %v", hits)
	}
}
