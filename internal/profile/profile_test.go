package profile_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperengineering/studysync/internal/profile"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"simple", "anna", false},
		{"hyphenated", "study-group", false},
		{"two segments", "home/anna", false},
		{"digits", "profile2", false},
		{"reserved default", "default", false},
		{"reserved system", "_system", false},
		{"empty", "", true},
		{"uppercase", "Anna", true},
		{"leading hyphen", "-anna", true},
		{"trailing hyphen", "anna-", true},
		{"consecutive hyphens", "an--na", true},
		{"three segments", "a/b/c", true},
		{"trailing slash", "anna/", true},
		{"underscore", "an_na", true},
		{"too long", strings.Repeat("a", 65), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := profile.ValidateID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, profile.ErrInvalidID) {
				t.Errorf("ValidateID(%q) error = %v, want ErrInvalidID", tt.id, err)
			}
		})
	}
}

func TestValidateForCreation(t *testing.T) {
	if err := profile.ValidateForCreation("default"); !errors.Is(err, profile.ErrReservedID) {
		t.Errorf("ValidateForCreation(default) = %v, want ErrReservedID", err)
	}
	if err := profile.ValidateForCreation("anna"); err != nil {
		t.Errorf("ValidateForCreation(anna) = %v, want nil", err)
	}
	if err := profile.ValidateForCreation("Bad"); !errors.Is(err, profile.ErrInvalidID) {
		t.Errorf("ValidateForCreation(Bad) = %v, want ErrInvalidID", err)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, id := range []string{"anna", "home/anna", "study-group/exam-prep"} {
		t.Run(id, func(t *testing.T) {
			encoded := profile.EncodePath(id)
			if strings.Contains(encoded, "/") {
				t.Errorf("EncodePath(%q) = %q still contains a slash", id, encoded)
			}
			if got := profile.DecodePath(encoded); got != id {
				t.Errorf("roundtrip failed: %q -> %q -> %q", id, encoded, got)
			}
		})
	}
}

func TestDBPath(t *testing.T) {
	got := profile.DBPath("home/anna")
	want := filepath.Join(profile.Root(), "home__anna", profile.DBFile)
	if got != want {
		t.Errorf("DBPath = %q, want %q", got, want)
	}
	if !strings.Contains(profile.Root(), filepath.Join(".studysync", "profiles")) {
		t.Errorf("Root() = %q, want it under .studysync/profiles", profile.Root())
	}
}

func TestList(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"zed", "home__anna", "empty"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	for _, dir := range []string{"zed", "home__anna"} {
		if err := os.WriteFile(filepath.Join(root, dir, profile.DBFile), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := profile.List(root)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 2 || got[0] != "home/anna" || got[1] != "zed" {
		t.Errorf("List = %v, want [home/anna zed]", got)
	}

	missing, err := profile.List(filepath.Join(root, "nope"))
	if err != nil || missing != nil {
		t.Errorf("List(missing) = %v, %v; want nil, nil", missing, err)
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		explicit string
		env      string
		want     string
		wantErr  bool
	}{
		{"explicit wins", "anna", "env-profile", "anna", false},
		{"env fallback", "", "env-profile", "env-profile", false},
		{"default", "", "", profile.DefaultID, false},
		{"invalid explicit", "Bad", "", "", true},
		{"invalid env", "", "Bad!", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(profile.EnvVar, tt.env)
			got, err := profile.Resolve(tt.explicit)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Resolve(%q) error = %v, wantErr %v", tt.explicit, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.explicit, got, tt.want)
			}
		})
	}
}
