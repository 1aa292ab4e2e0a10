package badger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MasterVVK/neuro-expert/core"
	"github.com/MasterVVK/neuro-expert/storage"
	"github.com/dgraph-io/badger/v4"
)

// ChecklistStore implements storage.ChecklistStore on BadgerDB.
type ChecklistStore struct {
	backend *Backend
	logger  *slog.Logger
}

var _ storage.ChecklistStore = (*ChecklistStore)(nil)

// NewChecklistStore creates a checklist store on the given backend.
func NewChecklistStore(backend *Backend) (*ChecklistStore, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend required")
	}
	return &ChecklistStore{
		backend: backend,
		logger:  slog.Default().With("component", "checklist-store"),
	}, nil
}

// AddChecklist stores a checklist. A zero Id is replaced with a
// content-based ID derived from the checklist name.
func (s *ChecklistStore) AddChecklist(ctx context.Context, checklist *core.Checklist) (*core.Checklist, error) {
	if checklist.Id == 0 {
		checklist.Id = core.IDFromContent(checklist.Name)
	}
	if checklist.InsertedAt.IsZero() {
		checklist.InsertedAt = time.Now().UTC()
	}
	for i := range checklist.Parameters {
		if checklist.Parameters[i].Id == 0 {
			checklist.Parameters[i].Id = core.IDFromContent(
				checklist.Name + "|" + checklist.Parameters[i].Name)
		}
	}

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeChecklistKey(checklist.Id), storage.MarshalChecklist(checklist)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}

	return checklist, nil
}

// GetChecklist retrieves a checklist by ID.
func (s *ChecklistStore) GetChecklist(ctx context.Context, id core.ID) (*core.Checklist, error) {
	var checklist *core.Checklist

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeChecklistKey(id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return fmt.Errorf("%w: checklist %d", core.ErrNotFound, id)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var err error
			checklist, err = storage.UnmarshalChecklist(val)
			return err
		})
	}, false)
	if err != nil {
		return nil, err
	}

	return checklist, nil
}

// Checklists lists all stored checklists.
func (s *ChecklistStore) Checklists(ctx context.Context) ([]*core.Checklist, error) {
	var checklists []*core.Checklist

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(checklistPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				checklist, err := storage.UnmarshalChecklist(val)
				if err != nil {
					return err
				}
				checklists = append(checklists, checklist)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	return checklists, nil
}

// DeleteChecklist removes a checklist by ID.
func (s *ChecklistStore) DeleteChecklist(ctx context.Context, id core.ID) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		key := makeChecklistKey(id)
		if _, err := tx.Get(key); err != nil {
			if err == badger.ErrKeyNotFound {
				return fmt.Errorf("%w: checklist %d", core.ErrNotFound, id)
			}
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Close is a no-op; the shared backend is closed by its owner.
func (s *ChecklistStore) Close() error {
	return nil
}
