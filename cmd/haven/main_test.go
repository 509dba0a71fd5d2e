package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/havensocial/haven/internal/auth"
)

func TestTokenCommandMintsVerifiableToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "haven.yaml")
	cfg := []byte("auth:\n  jwt_secret: test-secret\nstorage:\n  backend: memory\n")
	if err := os.WriteFile(path, cfg, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	out := &bytes.Buffer{}
	cmd := buildRootCmd()
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"token", "--user", "alice", "--config", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	token := strings.TrimSpace(out.String())
	userID, err := auth.NewJWTService("test-secret", time.Hour).Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if userID != "alice" {
		t.Fatalf("userID = %q, want alice", userID)
	}
}

func TestTokenCommandRequiresUser(t *testing.T) {
	cmd := buildRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"token"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("token without --user should fail")
	}
}

func TestServeRequiresSecret(t *testing.T) {
	if err := runServe(context.Background(), "", false); err == nil ||
		!strings.Contains(err.Error(), "jwt_secret") {
		t.Fatalf("runServe() error = %v, want jwt_secret requirement", err)
	}
}
