package database

import (
	"fmt"

	"context"
	"github.com/dgraph-io/badger/v4"

	"oracle.mleku.dev/pkg/encoders/bigsize"
	"oracle.mleku.dev/pkg/oracle"
)

// Metadata is the single-row oracle identity record. The daemon refuses to
// serve a database whose pubkey differs from the configured signing key,
// because re-keying a store would break every outstanding announcement.
type Metadata struct {
	Pubkey []byte
	Name   string
}

func (m *Metadata) marshal(dst []byte) (b []byte) {
	b = bigsize.AppendBytes(dst, m.Pubkey)
	b = bigsize.AppendBytes(b, []byte(m.Name))
	return
}

func (m *Metadata) unmarshal(b []byte) (err error) {
	if m.Pubkey, b, err = bigsize.ReadBytes(b); err != nil {
		return
	}
	var name []byte
	if name, _, err = bigsize.ReadBytes(b); err != nil {
		return
	}
	m.Name = string(name)
	return
}

// GetMetadata returns the stored oracle metadata, or nil when the database
// is fresh.
func (d *D) GetMetadata(c context.Context) (m *Metadata, err error) {
	err = d.View(
		func(txn *badger.Txn) (err error) {
			item, err := txn.Get(keyMetadata)
			if err == badger.ErrKeyNotFound {
				return nil
			}
			if err != nil {
				return fmt.Errorf("%w: %s", oracle.ErrStorageFailure,
					err.Error())
			}
			var val []byte
			if val, err = item.ValueCopy(nil); err != nil {
				return fmt.Errorf("%w: %s", oracle.ErrStorageFailure,
					err.Error())
			}
			m = &Metadata{}
			if err = m.unmarshal(val); err != nil {
				m = nil
				err = fmt.Errorf("%w: %s", oracle.ErrInternal, err.Error())
			}
			return
		},
	)
	return
}

// UpsertMetadata writes the singleton metadata record.
func (d *D) UpsertMetadata(c context.Context, m *Metadata) (err error) {
	return d.Update(
		func(txn *badger.Txn) (err error) {
			if err = txn.Set(keyMetadata, m.marshal(nil)); err != nil {
				return fmt.Errorf("%w: %s", oracle.ErrStorageFailure,
					err.Error())
			}
			return
		},
	)
}
