package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mwinata/crm-web-ui/internal/models"
	bolt "go.etcd.io/bbolt"
)

// BoltDB implements the handler Store interface using a BoltDB backend. Each entity kind
// lives in its own bucket keyed by record ID, and every chat session gets a dedicated
// bucket holding its message log in arrival order.
type BoltDB struct {
	db *bolt.DB
}

// NewBoltDB creates a new BoltDB instance with the specified file path. It initializes
// the entity buckets and returns an error if the database cannot be opened. The database
// file is created with 0600 permissions if it doesn't exist.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, kind := range []models.EntityKind{
			models.KindCompany, models.KindContact, models.KindOpportunity, models.KindTask,
		} {
			if _, err := tx.CreateBucketIfNotExists([]byte(kind)); err != nil {
				return err
			}
		}
		return nil
	})

	return BoltDB{db: db}, err
}

// Close releases the underlying database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}

func chatBucketName(sessionID string) []byte {
	return []byte(fmt.Sprintf("chat-%s", sessionID))
}

func (b BoltDB) list(kind models.EntityKind, each func(v []byte) error) error {
	return b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(kind))
		if bk == nil {
			return nil
		}
		return bk.ForEach(func(_, v []byte) error {
			return each(v)
		})
	})
}

func (b BoltDB) put(kind models.EntityKind, id string, record any) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(kind))
		if bk == nil {
			return fmt.Errorf("bucket %s does not exist", kind)
		}
		v, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		return bk.Put([]byte(id), v)
	})
}

// Companies retrieves all stored company records.
func (b BoltDB) Companies(context.Context) ([]models.Company, error) {
	var out []models.Company
	err := b.list(models.KindCompany, func(v []byte) error {
		var c models.Company
		if err := json.Unmarshal(v, &c); err != nil {
			return fmt.Errorf("failed to unmarshal company: %w", err)
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

// AddCompany stores a new company record under its ID.
func (b BoltDB) AddCompany(_ context.Context, c models.Company) error {
	return b.put(models.KindCompany, c.ID, c)
}

// Contacts retrieves all stored contact records.
func (b BoltDB) Contacts(context.Context) ([]models.Contact, error) {
	var out []models.Contact
	err := b.list(models.KindContact, func(v []byte) error {
		var c models.Contact
		if err := json.Unmarshal(v, &c); err != nil {
			return fmt.Errorf("failed to unmarshal contact: %w", err)
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

// AddContact stores a new contact record under its ID.
func (b BoltDB) AddContact(_ context.Context, c models.Contact) error {
	return b.put(models.KindContact, c.ID, c)
}

// Opportunities retrieves all stored opportunity records.
func (b BoltDB) Opportunities(context.Context) ([]models.Opportunity, error) {
	var out []models.Opportunity
	err := b.list(models.KindOpportunity, func(v []byte) error {
		var o models.Opportunity
		if err := json.Unmarshal(v, &o); err != nil {
			return fmt.Errorf("failed to unmarshal opportunity: %w", err)
		}
		out = append(out, o)
		return nil
	})
	return out, err
}

// AddOpportunity stores a new opportunity record under its ID.
func (b BoltDB) AddOpportunity(_ context.Context, o models.Opportunity) error {
	return b.put(models.KindOpportunity, o.ID, o)
}

// Tasks retrieves all stored task records.
func (b BoltDB) Tasks(context.Context) ([]models.Task, error) {
	var out []models.Task
	err := b.list(models.KindTask, func(v []byte) error {
		var t models.Task
		if err := json.Unmarshal(v, &t); err != nil {
			return fmt.Errorf("failed to unmarshal task: %w", err)
		}
		out = append(out, t)
		return nil
	})
	return out, err
}

// AddTask stores a new task record under its ID.
func (b BoltDB) AddTask(_ context.Context, t models.Task) error {
	return b.put(models.KindTask, t.ID, t)
}

// UpdateTask replaces a stored task. It returns ErrNotFound when the ID is unknown.
func (b BoltDB) UpdateTask(_ context.Context, t models.Task) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(models.KindTask))
		if bk == nil {
			return models.ErrNotFound
		}
		if bk.Get([]byte(t.ID)) == nil {
			return models.ErrNotFound
		}
		v, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal task: %w", err)
		}
		return bk.Put([]byte(t.ID), v)
	})
}

// Task retrieves a single task record by ID.
func (b BoltDB) Task(_ context.Context, id string) (models.Task, error) {
	var t models.Task
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(models.KindTask))
		if bk == nil {
			return models.ErrNotFound
		}
		v := bk.Get([]byte(id))
		if v == nil {
			return models.ErrNotFound
		}
		if err := json.Unmarshal(v, &t); err != nil {
			return fmt.Errorf("failed to unmarshal task: %w", err)
		}
		return nil
	})
	return t, err
}

// DeleteEntity removes one record from the given kind's bucket. It returns ErrNotFound
// when the ID names nothing, so handlers can answer 404 instead of reporting success.
func (b BoltDB) DeleteEntity(_ context.Context, kind models.EntityKind, id string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(kind))
		if bk == nil {
			return models.ErrNotFound
		}
		if bk.Get([]byte(id)) == nil {
			return models.ErrNotFound
		}
		return bk.Delete([]byte(id))
	})
}

// ChatMessages retrieves the message log for a session in arrival order. An unknown
// session yields an empty log.
func (b BoltDB) ChatMessages(_ context.Context, sessionID string) ([]models.ChatMessage, error) {
	var out []models.ChatMessage
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(chatBucketName(sessionID))
		if bk == nil {
			return nil
		}
		return bk.ForEach(func(_, v []byte) error {
			var m models.ChatMessage
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("failed to unmarshal chat message: %w", err)
			}
			out = append(out, m)
			return nil
		})
	})
	return out, err
}

// AddChatMessage appends a message to a session's log, creating the session bucket on
// first use. It generates a unique ID for the message by combining a sequence number with
// the message's original ID, and returns the new ID.
func (b BoltDB) AddChatMessage(_ context.Context, sessionID string, message models.ChatMessage) (string, error) {
	var newID string
	err := b.db.Update(func(tx *bolt.Tx) error {
		bk, err := tx.CreateBucketIfNotExists(chatBucketName(sessionID))
		if err != nil {
			return fmt.Errorf("failed to create chat bucket: %w", err)
		}

		seq, err := bk.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}
		// Zero-padded so lexical bucket order matches arrival order.
		newID = fmt.Sprintf("%08d-%s", seq, message.ID)
		message.ID = newID

		v, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("failed to marshal chat message: %w", err)
		}

		return bk.Put([]byte(newID), v)
	})

	return newID, err
}
