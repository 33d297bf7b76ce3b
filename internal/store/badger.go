// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/courier/internal/models"
)

// Key prefixes for BadgerDB storage. Message and notification keys embed a
// zero-padded sequence so that key order equals insertion order.
const (
	userKeyPrefix    = "user:"
	memberKeyPrefix  = "member:"
	messageKeyPrefix = "msg:"
	notifKeyPrefix   = "notif:"
	notifIDKeyPrefix = "notif_id:"

	seqKey = "courier_seq"
)

// BadgerStore implements Store using BadgerDB for durable storage.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
}

// OpenBadger opens (or creates) a Badger-backed store at the given path.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return NewBadgerStore(db)
}

// NewBadgerStore wraps an already-open Badger database.
func NewBadgerStore(db *badger.DB) (*BadgerStore, error) {
	seq, err := db.GetSequence([]byte(seqKey), 128)
	if err != nil {
		return nil, fmt.Errorf("open sequence: %w", err)
	}
	return &BadgerStore{db: db, seq: seq}, nil
}

// Close releases the sequence lease and closes the database.
func (s *BadgerStore) Close() error {
	if err := s.seq.Release(); err != nil {
		return fmt.Errorf("release sequence: %w", err)
	}
	return s.db.Close()
}

// nextSeq returns the next insertion sequence number, starting at 1.
func (s *BadgerStore) nextSeq() (uint64, error) {
	n, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return n + 1, nil
}

// seqSuffix renders a sequence number so that lexicographic key order equals
// numeric order.
func seqSuffix(seq uint64) string {
	return fmt.Sprintf("%020d", seq)
}

// UpsertUser stores a user projection. Not part of the Store interface; the
// user entity is owned externally, this exists for wiring and tests.
func (s *BadgerStore) UpsertUser(ctx context.Context, u *models.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(userKeyPrefix+u.ID), data)
	})
}

// AddMember records a group membership.
func (s *BadgerStore) AddMember(ctx context.Context, groupID, userID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(memberKeyPrefix+groupID+":"+userID), []byte{1})
	})
}

// RemoveMember deletes a group membership.
func (s *BadgerStore) RemoveMember(ctx context.Context, groupID, userID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(memberKeyPrefix + groupID + ":" + userID))
	})
}

// IsMember implements MembershipStore.
func (s *BadgerStore) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(memberKeyPrefix + groupID + ":" + userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("membership lookup: %w", err)
	}
	return found, nil
}

// ListGroupMembers implements MembershipStore.
func (s *BadgerStore) ListGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	prefix := []byte(memberKeyPrefix + groupID + ":")
	var members []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			members = append(members, string(key[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// FindUser implements UserStore.
func (s *BadgerStore) FindUser(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(userKeyPrefix + userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &u)
		})
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

// InvalidatePushToken implements UserStore.
func (s *BadgerStore) InvalidatePushToken(ctx context.Context, userID string) error {
	u, err := s.FindUser(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	u.PushToken = ""
	return s.UpsertUser(ctx, u)
}

// InsertMessage implements MessageStore.
func (s *BadgerStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	seq, err := s.nextSeq()
	if err != nil {
		return err
	}
	msg.ID = uuid.New().String()
	msg.Seq = seq
	msg.CreatedAt = time.Now().UTC()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(messageKeyPrefix+seqSuffix(seq)), data)
	})
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// InsertNotification implements NotificationStore.
func (s *BadgerStore) InsertNotification(ctx context.Context, n *models.Notification) error {
	seq, err := s.nextSeq()
	if err != nil {
		return err
	}
	n.ID = uuid.New().String()
	n.Seq = seq
	n.CreatedAt = time.Now().UTC()
	n.IsRead = false
	n.ReadAt = nil

	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	recordKey := notifKeyPrefix + n.UserID + ":" + seqSuffix(seq)
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(recordKey), data); err != nil {
			return err
		}
		// ID index so read transitions can find the record.
		return txn.Set([]byte(notifIDKeyPrefix+n.ID), []byte(recordKey))
	})
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// MarkNotificationRead implements NotificationStore.
func (s *BadgerStore) MarkNotificationRead(ctx context.Context, id, userID string) (bool, error) {
	var changed bool

	err := s.db.Update(func(txn *badger.Txn) error {
		idxItem, err := txn.Get([]byte(notifIDKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotificationNotFound
		}
		if err != nil {
			return err
		}

		var recordKey []byte
		if err := idxItem.Value(func(val []byte) error {
			recordKey = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return err
		}

		item, err := txn.Get(recordKey)
		if err != nil {
			return err
		}
		var n models.Notification
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &n)
		}); err != nil {
			return err
		}

		if n.UserID != userID {
			// Indistinguishable from a missing record.
			return ErrNotificationNotFound
		}
		if n.IsRead {
			return nil
		}

		now := time.Now().UTC()
		n.IsRead = true
		n.ReadAt = &now

		data, err := json.Marshal(&n)
		if err != nil {
			return err
		}
		if err := txn.Set(recordKey, data); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			return false, ErrNotificationNotFound
		}
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	return changed, nil
}

// ListNotifications implements NotificationStore.
func (s *BadgerStore) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	prefix := []byte(notifKeyPrefix + userID + ":")
	var out []models.Notification

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks past the last key in the prefix range.
		seek := append(append([]byte(nil), prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			var n models.Notification
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &n)
			}); err != nil {
				return err
			}
			out = append(out, n)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}
