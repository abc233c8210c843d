package documents

import (
	"context"
	"errors"
	"testing"
)

func TestShouldSnapshot(t *testing.T) {
	document := &Document{Title: "Notes", Content: "Hello", IsRichText: true}

	cases := []struct {
		name     string
		request  UpdateRequest
		expected bool
	}{
		{name: "no-change", request: UpdateRequest{Content: stringPtr("Howdy")}, expected: false},
		{name: "explicit", request: UpdateRequest{CreateVersion: true}, expected: true},
		{name: "title-change", request: UpdateRequest{Title: stringPtr("Renamed")}, expected: true},
		{name: "same-title", request: UpdateRequest{Title: stringPtr("Notes")}, expected: false},
		{name: "content-length-change", request: UpdateRequest{Content: stringPtr("Hello world")}, expected: true},
		{name: "rich-text-flip", request: UpdateRequest{IsRichText: boolPtr(false)}, expected: true},
		{name: "rich-text-same", request: UpdateRequest{IsRichText: boolPtr(true)}, expected: false},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldSnapshot(document, tt.request); got != tt.expected {
				t.Fatalf("shouldSnapshot mismatch, want %v got %v", tt.expected, got)
			}
		})
	}
}

func TestVersionNumbersAreMonotonic(t *testing.T) {
	service := newTestService(t, nil)
	owner := mustUserID(t, "user-1")

	document := mustCreate(t, service, owner, "History")
	documentID := mustDocumentID(t, document.DocumentID)

	const snapshots = 4
	for i := 0; i < snapshots; i++ {
		if _, err := service.Update(context.Background(), owner, documentID, UpdateRequest{CreateVersion: true}); err != nil {
			t.Fatalf("unexpected update error: %v", err)
		}
	}

	history, err := service.ListVersions(context.Background(), owner, documentID)
	if err != nil {
		t.Fatalf("unexpected list versions error: %v", err)
	}
	if history.CurrentVersion != snapshots+1 {
		t.Fatalf("expected current version %d, got %d", snapshots+1, history.CurrentVersion)
	}
	if len(history.Versions) != snapshots {
		t.Fatalf("expected %d versions, got %d", snapshots, len(history.Versions))
	}
	seen := map[int64]bool{}
	for index, version := range history.Versions {
		if seen[version.VersionNumber] {
			t.Fatalf("duplicate version number %d", version.VersionNumber)
		}
		seen[version.VersionNumber] = true
		if version.VersionNumber >= history.CurrentVersion {
			t.Fatalf("version number %d not less than current version %d", version.VersionNumber, history.CurrentVersion)
		}
		expected := int64(snapshots - index)
		if version.VersionNumber != expected {
			t.Fatalf("expected newest-first ordering, want %d at index %d got %d", expected, index, version.VersionNumber)
		}
	}
}

func TestSnapshotSubstitutesPlaceholders(t *testing.T) {
	service := newTestService(t, nil)
	owner := mustUserID(t, "user-1")

	document := mustCreate(t, service, owner, "Empty Body")
	documentID := mustDocumentID(t, document.DocumentID)

	// Content is still empty; an explicit snapshot must persist the placeholder.
	if _, err := service.Update(context.Background(), owner, documentID, UpdateRequest{CreateVersion: true}); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}

	version, err := service.GetVersion(context.Background(), owner, documentID, 1)
	if err != nil {
		t.Fatalf("unexpected get version error: %v", err)
	}
	if version.Content != placeholderContent {
		t.Fatalf("expected placeholder content, got %q", version.Content)
	}
	if version.Title != "Empty Body" {
		t.Fatalf("expected original title, got %q", version.Title)
	}
	if version.CreatedBy != owner.String() {
		t.Fatalf("expected creator %s, got %s", owner, version.CreatedBy)
	}
}

func TestGetVersionNotFound(t *testing.T) {
	service := newTestService(t, nil)
	owner := mustUserID(t, "user-1")

	document := mustCreate(t, service, owner, "Sparse")
	documentID := mustDocumentID(t, document.DocumentID)

	_, err := service.GetVersion(context.Background(), owner, documentID, 7)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestRestoreSnapshotsBeforeOverwriting(t *testing.T) {
	service := newTestService(t, nil)
	owner := mustUserID(t, "user-1")

	document := mustCreate(t, service, owner, "Notes")
	documentID := mustDocumentID(t, document.DocumentID)

	if _, err := service.Update(context.Background(), owner, documentID, UpdateRequest{Content: stringPtr("Hello"), CreateVersion: true}); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}

	restored, err := service.RestoreVersion(context.Background(), owner, documentID, 1)
	if err != nil {
		t.Fatalf("unexpected restore error: %v", err)
	}
	if restored.Content != placeholderContent {
		t.Fatalf("expected version 1 content restored, got %q", restored.Content)
	}
	if restored.CurrentVersion != 3 {
		t.Fatalf("expected current version 3 after restore, got %d", restored.CurrentVersion)
	}

	// The pre-restore state must have been captured as version 2.
	preRestore, err := service.GetVersion(context.Background(), owner, documentID, 2)
	if err != nil {
		t.Fatalf("unexpected get version error: %v", err)
	}
	if preRestore.Content != "Hello" {
		t.Fatalf("expected pre-restore content captured, got %q", preRestore.Content)
	}
}

func TestRestoreTwiceRoundTripsContent(t *testing.T) {
	service := newTestService(t, nil)
	owner := mustUserID(t, "user-1")

	document := mustCreate(t, service, owner, "Round Trip")
	documentID := mustDocumentID(t, document.DocumentID)

	if _, err := service.Update(context.Background(), owner, documentID, UpdateRequest{Content: stringPtr("first body"), CreateVersion: true}); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if _, err := service.Update(context.Background(), owner, documentID, UpdateRequest{Content: stringPtr("second body")}); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}

	// Restore to version capturing "first body", then back to the version the
	// first restore created.
	afterFirst, err := service.RestoreVersion(context.Background(), owner, documentID, 2)
	if err != nil {
		t.Fatalf("unexpected restore error: %v", err)
	}
	if afterFirst.Content != "first body" {
		t.Fatalf("expected restored content, got %q", afterFirst.Content)
	}

	history, err := service.ListVersions(context.Background(), owner, documentID)
	if err != nil {
		t.Fatalf("unexpected list versions error: %v", err)
	}
	newest := history.Versions[0].VersionNumber

	afterSecond, err := service.RestoreVersion(context.Background(), owner, documentID, newest)
	if err != nil {
		t.Fatalf("unexpected restore error: %v", err)
	}
	if afterSecond.Content != "second body" {
		t.Fatalf("expected round-tripped content, got %q", afterSecond.Content)
	}
}

func TestRestoreRequiresEditPermission(t *testing.T) {
	directory := stubDirectory{byEmail: map[string]string{"viewer@example.com": "user-2"}}
	service := newTestService(t, directory)
	owner := mustUserID(t, "user-1")
	viewer := mustUserID(t, "user-2")

	document := mustCreate(t, service, owner, "Locked")
	documentID := mustDocumentID(t, document.DocumentID)
	if _, err := service.Update(context.Background(), owner, documentID, UpdateRequest{Content: stringPtr("body"), CreateVersion: true}); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if _, err := service.ShareWithUser(context.Background(), owner, documentID, "viewer@example.com", PermissionView); err != nil {
		t.Fatalf("unexpected share error: %v", err)
	}

	_, err := service.RestoreVersion(context.Background(), viewer, documentID, 1)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden error, got %v", err)
	}

	_, err = service.RestoreVersion(context.Background(), owner, documentID, 9)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}
