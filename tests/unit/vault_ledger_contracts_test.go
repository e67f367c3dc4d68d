package unit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestVaultLedgerOpenAPIContractIncludesImplementedRoutes(t *testing.T) {
	root, err := findRepoRoot()
	if err != nil {
		t.Fatalf("resolve repo root: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "contracts", "api", "v1", "vault-ledger.openapi.json"))
	if err != nil {
		t.Fatalf("read vault-ledger openapi: %v", err)
	}

	var doc struct {
		Paths map[string]map[string]any `json:"paths"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode vault-ledger openapi: %v", err)
	}

	expected := map[string][]string{
		"/v1/vault/deposits":                 {"post"},
		"/v1/vault/withdrawals":              {"post"},
		"/v1/vault/policy":                   {"post"},
		"/v1/vault/administrator/propose":    {"post"},
		"/v1/vault/administrator/accept":     {"post"},
		"/v1/vault/balances/{user_id}":       {"get"},
		"/v1/vault/balances/{user_id}/query": {"post"},
		"/v1/vault/entries/{user_id}":        {"get"},
	}

	for path, methods := range expected {
		ops, ok := doc.Paths[path]
		if !ok {
			t.Fatalf("missing path in openapi contract: %s", path)
		}
		for _, method := range methods {
			if _, ok := ops[method]; !ok {
				t.Fatalf("missing operation in openapi contract: %s %s", method, path)
			}
		}
	}
}

func TestContractJSONArtifactsAreValid(t *testing.T) {
	root, err := findRepoRoot()
	if err != nil {
		t.Fatalf("resolve repo root: %v", err)
	}

	patterns := []string{
		"contracts/api/v1/*.json",
	}

	found := 0
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(root, pattern))
		if err != nil {
			t.Fatalf("invalid glob pattern %s: %v", pattern, err)
		}
		for _, path := range matches {
			found++
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("read %s: %v", path, err)
			}
			var payload any
			if err := json.Unmarshal(data, &payload); err != nil {
				t.Fatalf("invalid json contract file %s: %v", path, err)
			}
		}
	}

	if found == 0 {
		t.Fatalf("no contract json artifacts found")
	}
}

func findRepoRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	current := wd
	for {
		if _, err := os.Stat(filepath.Join(current, "go.mod")); err == nil {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("go.mod not found from %s", wd)
		}
		current = parent
	}
}
