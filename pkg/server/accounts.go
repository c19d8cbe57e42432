package server

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hackmesh/termhack/pkg/boltstore"
)

// ErrNameTaken is returned when creating an account whose name exists.
var ErrNameTaken = errors.New("name taken")

// ValidateName rejects names that would confuse the login grammar or
// the save store.
func ValidateName(name string) error {
	if len(name) < 2 {
		return fmt.Errorf("That name is too short.")
	}
	if len(name) > 24 {
		return fmt.Errorf("That name is too long.")
	}
	for _, ch := range name {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '-', ch == '_':
		default:
			return fmt.Errorf("Names may only contain letters, digits, - and _.")
		}
	}
	return nil
}

// CreateAccount stores a new account with a bcrypt password hash.
func CreateAccount(store *boltstore.Store, name, password string) error {
	if store == nil {
		// Ephemeral mode: no store, nothing to create.
		return nil
	}
	existing, err := store.GetAccount(name)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrNameTaken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return store.SaveAccount(&boltstore.Account{
		Name:    name,
		Hash:    hash,
		Created: time.Now(),
	})
}

// CheckPassword verifies a login against the account store. With no
// store configured the server runs ephemeral and accepts any password.
func CheckPassword(store *boltstore.Store, name, password string) error {
	if store == nil {
		return nil
	}
	a, err := store.GetAccount(name)
	if err != nil {
		return err
	}
	if a == nil {
		return errors.New("no such account")
	}
	return bcrypt.CompareHashAndPassword(a.Hash, []byte(password))
}

// IsAdmin reports whether the named account carries the admin flag.
func IsAdmin(store *boltstore.Store, name string) bool {
	if store == nil {
		return false
	}
	a, err := store.GetAccount(name)
	return err == nil && a != nil && a.Admin
}
