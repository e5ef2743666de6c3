package service

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}

	hash, err := h.Hash("Password1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "Password1" {
		t.Fatalf("expected hash to differ from password")
	}
	if err := h.Compare(hash, "Password1"); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := h.Compare(hash, "Password2"); err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestBcryptHasher_DefaultCost(t *testing.T) {
	hash, err := BcryptHasher{}.Hash("Password1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		t.Fatalf("cost: %v", err)
	}
	if cost != 12 {
		t.Fatalf("expected default cost 12, got %d", cost)
	}
}

func TestBcryptHasher_LongPasswords(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}
	long := strings.Repeat("p", 80)

	hash, err := h.Hash(long)
	if err != nil {
		t.Fatalf("hash 80-byte password: %v", err)
	}
	if err := h.Compare(hash, long); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	// Comparten los primeros 72 bytes; no deben coincidir.
	if err := h.Compare(hash, strings.Repeat("p", 79)+"q"); err == nil {
		t.Fatalf("expected mismatch for different long password")
	}

	exact := strings.Repeat("x", 72)
	hash, err = h.Hash(exact)
	if err != nil {
		t.Fatalf("hash 72-byte password: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(exact)); err != nil {
		t.Fatalf("72-byte passwords are hashed as-is: %v", err)
	}
}
