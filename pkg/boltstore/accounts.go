package boltstore

import (
	"fmt"
	"strings"
	"time"

	bbolt "go.etcd.io/bbolt"
)

// Account is a stored player login. Hash is a bcrypt digest; the
// plaintext password never touches disk.
type Account struct {
	Name    string
	Hash    []byte
	Admin   bool
	Created time.Time
}

// normalizeName lowercases account names so logins are case-insensitive.
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SaveAccount writes an account record.
func (s *Store) SaveAccount(a *Account) error {
	key := normalizeName(a.Name)
	if key == "" {
		return fmt.Errorf("boltstore: empty account name")
	}
	data, err := encode(a)
	if err != nil {
		return fmt.Errorf("boltstore: encode account %s: %w", key, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAccounts).Put([]byte(key), data)
	})
}

// GetAccount loads an account, returning nil when it does not exist.
func (s *Store) GetAccount(name string) (*Account, error) {
	key := normalizeName(name)
	var a *Account
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketAccounts).Get([]byte(key))
		if data == nil {
			return nil
		}
		a = new(Account)
		return decode(data, a)
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: decode account %s: %w", key, err)
	}
	return a, nil
}

// AccountNames lists all stored account names.
func (s *Store) AccountNames() ([]string, error) {
	var names []string
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAccounts).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}
