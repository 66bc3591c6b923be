package session

import (
	"context"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Attribute is a typed session value. The set of attributes is closed: only
// the variables below exist, so no two call sites can disagree on a key's
// type.
type Attribute[T any] struct {
	name string
}

var (
	// MasterKey is the user's unlocked master key.
	MasterKey = Attribute[[]byte]{name: "master_key"}

	// LastImportCheck is when the import queue was last drained for this
	// session.
	LastImportCheck = Attribute[time.Time]{name: "last_import_check"}
)

func (a Attribute[T]) Name() string { return a.name }

func (a Attribute[T]) Set(ctx context.Context, m *Manager, v T) error {
	raw, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", a.name, err)
	}
	return m.SetEncrypted(ctx, a.name, raw)
}

// Get reports ok=false when the attribute was never set.
func (a Attribute[T]) Get(m *Manager) (T, bool, error) {
	var v T
	raw, ok, err := m.GetEncrypted(a.name)
	if err != nil || !ok {
		return v, false, err
	}
	if err := cbor.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("decode %s: %w", a.name, err)
	}
	return v, true, nil
}
