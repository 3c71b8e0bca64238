package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/TimurManjosov/activitygate/internal/auth"
)

func TestKeygen_PrintsMatchingKeyAndHash(t *testing.T) {
	var out bytes.Buffer
	keygenCmd.SetOut(&out)
	t.Cleanup(func() { keygenCmd.SetOut(nil) })

	if err := keygenCmd.RunE(keygenCmd, nil); err != nil {
		t.Fatalf("keygen failed: %v", err)
	}

	values := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			t.Fatalf("unexpected output line %q", line)
		}
		values[name] = strings.TrimSpace(value)
	}
	plain, hash := values["API key"], values["ADMIN_API_KEY"]
	if !strings.HasPrefix(plain, auth.KeyPrefix) {
		t.Errorf("Expected key with prefix %s, got %q", auth.KeyPrefix, plain)
	}
	if !auth.MatchKey(plain, hash) {
		t.Error("Expected printed key to match printed hash")
	}
	if _, ok := values["SIGNING_SECRET"]; ok {
		t.Error("Expected no signing secret without --signing-secret")
	}
}

func TestKeygen_SigningSecret(t *testing.T) {
	var out bytes.Buffer
	keygenCmd.SetOut(&out)
	withSigningSecret = true
	t.Cleanup(func() {
		keygenCmd.SetOut(nil)
		withSigningSecret = false
	})

	if err := keygenCmd.RunE(keygenCmd, nil); err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	if !strings.Contains(out.String(), "SIGNING_SECRET: ") {
		t.Errorf("Expected a signing secret line, got:\n%s", out.String())
	}
}
