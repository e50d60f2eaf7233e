package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestGet_UnsetKeyReturnsCallerDefault(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "config.json"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if got := s.Get("defaultPrinter", "fallback"); got != "fallback" {
		t.Fatalf("Get: got %v want fallback", got)
	}
}

func TestSetThenGet_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "config.json"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.Set("defaultPrinter", "Office-LaserJet"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := s.GetString("defaultPrinter", ""); got != "Office-LaserJet" {
		t.Fatalf("GetString: got %q want Office-LaserJet", got)
	}
}

func TestSetThenReopen_PersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	s1, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s1.Set("maxRetries", 7); err != nil {
		t.Fatalf("Set: %v", err)
	}

	s2, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := s2.GetInt("maxRetries", 3); got != 7 {
		t.Fatalf("GetInt after reopen: got %d want 7", got)
	}
}

func TestApiKey_EncryptedAtRestAndDecryptedOnReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	s1, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s1.Set("apiKey", "super-secret-token"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	raw, err := readRawJSON(path)
	if err != nil {
		t.Fatalf("reading raw config: %v", err)
	}
	if raw["apiKey"] == "super-secret-token" {
		t.Fatalf("apiKey was stored in plaintext on disk")
	}

	s2, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := s2.GetString("apiKey", ""); got != "super-secret-token" {
		t.Fatalf("GetString(apiKey) after reopen: got %q", got)
	}
}

func TestGetInt_DefaultsFromDefaultsTable(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "config.json"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := s.GetInt("apiPort", 0); got != 3001 {
		t.Fatalf("GetInt(apiPort): got %v want 3001", got)
	}
}

func readRawJSON(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
