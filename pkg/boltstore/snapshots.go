package boltstore

import (
	"fmt"

	bbolt "go.etcd.io/bbolt"

	"github.com/hackmesh/termhack/pkg/missions"
)

// SessionSave is the full persisted state of one player: the mission
// engine snapshot plus the session-layer state around it. The action
// queue is deliberately absent; in-flight tool runs do not survive a
// disconnect.
type SessionSave struct {
	Engine       missions.Snapshot
	Unlocked     []string
	Discovered   []string
	CrackedFiles map[string][]string // host id -> file names
	Inbox        []string            // email ids, delivery order
	ReadMail     []string
}

// SaveSession writes a player's session save.
func (s *Store) SaveSession(player string, save *SessionSave) error {
	key := normalizeName(player)
	if key == "" {
		return fmt.Errorf("boltstore: empty player name")
	}
	data, err := encode(save)
	if err != nil {
		return fmt.Errorf("boltstore: encode session %s: %w", key, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put([]byte(key), data)
	})
}

// LoadSession loads a player's session save, nil when none exists.
func (s *Store) LoadSession(player string) (*SessionSave, error) {
	key := normalizeName(player)
	var save *SessionSave
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSnapshots).Get([]byte(key))
		if data == nil {
			return nil
		}
		save = new(SessionSave)
		return decode(data, save)
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: decode session %s: %w", key, err)
	}
	return save, nil
}

// DeleteSession removes a player's session save.
func (s *Store) DeleteSession(player string) error {
	key := normalizeName(player)
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Delete([]byte(key))
	})
}
