package azurerm

import (
	"strings"
	"testing"
)

func TestNewStore_RequiresContainer(t *testing.T) {
	_, err := NewStore(map[string]string{})
	if err == nil || !strings.Contains(err.Error(), "container_name") {
		t.Fatalf("expected container_name error, got %v", err)
	}
}

func TestNewStore_RequiresAccount(t *testing.T) {
	t.Setenv("AZURE_STORAGE_ACCOUNT", "")

	_, err := NewStore(map[string]string{"container_name": "exports"})
	if err == nil || !strings.Contains(err.Error(), "storage_account_name") {
		t.Fatalf("expected storage_account_name error, got %v", err)
	}
}

func TestNewStore_SharedKey(t *testing.T) {
	// Azurite well-known development credentials.
	s, err := NewStore(map[string]string{
		"container_name":       "exports",
		"storage_account_name": "devstoreaccount1",
		"access_key":           "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==",
		"endpoint":             "http://127.0.0.1:10000/devstoreaccount1",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if s.Type() != "azurerm" {
		t.Errorf("expected type 'azurerm', got %q", s.Type())
	}
}
