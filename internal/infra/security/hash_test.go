package security

import (
	"encoding/base64"
	"strings"
	"testing"

	"golang.org/x/crypto/argon2"
)

func TestHashSecretAndVerifySuccess(t *testing.T) {
	secret := "correct horse battery staple"

	encoded, err := HashSecret(secret)
	if err != nil {
		t.Fatalf("HashSecret returned error: %v", err)
	}

	if encoded == "" {
		t.Fatal("HashSecret returned empty string")
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 5 {
		t.Fatalf("unexpected hash format: %q", encoded)
	}
	if parts[0] != argon2Variant {
		t.Fatalf("unexpected variant: %s", parts[0])
	}
	if parts[1] != argon2Version {
		t.Fatalf("unexpected version: %s", parts[1])
	}

	ok, err := VerifySecret(secret, encoded)
	if err != nil {
		t.Fatalf("VerifySecret returned error: %v", err)
	}

	if !ok {
		t.Fatal("VerifySecret returned false for the correct secret")
	}
}

func TestVerifySecretWrongSecret(t *testing.T) {
	secret := "correct horse battery staple"
	wrong := "Tr0ub4dor&3"

	encoded, err := HashSecret(secret)
	if err != nil {
		t.Fatalf("HashSecret returned error: %v", err)
	}

	ok, err := VerifySecret(wrong, encoded)
	if err != nil {
		t.Fatalf("VerifySecret returned error: %v", err)
	}

	if ok {
		t.Fatal("VerifySecret returned true for an incorrect secret")
	}
}

func TestVerifySecretInvalidFormat(t *testing.T) {
	if _, err := VerifySecret("secret", "invalid-format"); err == nil {
		t.Fatal("VerifySecret expected to return error for invalid format")
	}
}

func TestVerifySecretEmptyInputs(t *testing.T) {
	ok, err := VerifySecret("", "")
	if err != nil {
		t.Fatalf("VerifySecret returned error for empty inputs: %v", err)
	}

	if ok {
		t.Fatal("VerifySecret should return false for empty inputs")
	}
}

func TestVerifySecretLegacyFormat(t *testing.T) {
	secret := "correct horse battery staple"
	salt := make([]byte, 16)
	for i := range salt {
		salt[i] = byte(i)
	}

	legacyHash := argon2.IDKey([]byte(secret), salt, 1, 64*1024, 4, 32)

	encoded := base64.StdEncoding.EncodeToString(salt) + ":" + base64.StdEncoding.EncodeToString(legacyHash)

	ok, err := VerifySecret(secret, encoded)
	if err != nil {
		t.Fatalf("VerifySecret failed to parse legacy format: %v", err)
	}

	if !ok {
		t.Fatal("VerifySecret did not validate legacy hash")
	}
}

func TestConfigureArgon2OverridesDefaults(t *testing.T) {
	original := CurrentArgon2Config()
	newCfg := Argon2Config{
		Memory:      128 * 1024,
		Iterations:  4,
		Parallelism: 2,
		SaltLength:  24,
		KeyLength:   48,
	}

	if err := ConfigureArgon2(newCfg); err != nil {
		t.Fatalf("ConfigureArgon2 returned error: %v", err)
	}

	encoded, err := HashSecret("change-me")
	if err != nil {
		t.Fatalf("HashSecret returned error: %v", err)
	}

	parts := strings.Split(encoded, "$")
	if !strings.Contains(parts[2], "m=131072") || !strings.Contains(parts[2], "t=4") || !strings.Contains(parts[2], "p=2") {
		t.Fatalf("encoded hash does not reflect configured parameters: %s", parts[2])
	}

	if err := ConfigureArgon2(original); err != nil {
		t.Fatalf("failed to restore original config: %v", err)
	}
}
