package profile

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DBFile is the local database file name inside a profile directory.
const DBFile = "studysync.db"

// Root returns the directory holding every profile.
// Defaults to ~/.studysync/profiles, falling back to the working directory.
func Root() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		cwd, _ := os.Getwd()
		return filepath.Join(cwd, ".studysync", "profiles")
	}
	return filepath.Join(home, ".studysync", "profiles")
}

// EncodePath encodes a profile ID for filesystem use.
func EncodePath(id string) string {
	return strings.ReplaceAll(id, "/", "__")
}

// DecodePath reverses EncodePath.
func DecodePath(encoded string) string {
	return strings.ReplaceAll(encoded, "__", "/")
}

// DBPath returns the database path of profile id under Root().
// Example: DBPath("home/anna") -> ~/.studysync/profiles/home__anna/studysync.db
func DBPath(id string) string {
	return filepath.Join(Root(), EncodePath(id), DBFile)
}

// List returns the IDs of profiles under root that hold a database, sorted.
// A missing root yields no profiles.
func List(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(root, e.Name(), DBFile)); err != nil {
			continue
		}
		ids = append(ids, DecodePath(e.Name()))
	}
	sort.Strings(ids)
	return ids, nil
}
