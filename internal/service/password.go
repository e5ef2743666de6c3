package service

import (
	"crypto/sha256"
	"encoding/base64"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt rechaza entradas de mas de 72 bytes.
const bcryptMaxInput = 72

// PasswordHasher crea y compara hashes de contraseñas.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Compare devuelve error si la contraseña no corresponde al hash.
	Compare(hash, password string) error
}

// BcryptHasher usa bcrypt con el costo configurado. Las contraseñas largas se
// reducen con SHA-256 antes de hashear, asi ningun largo falla.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = 12
	}
	hash, err := bcrypt.GenerateFromPassword(bcryptInput(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (h BcryptHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(password))
}

func bcryptInput(password string) []byte {
	if len(password) <= bcryptMaxInput {
		return []byte(password)
	}
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}
