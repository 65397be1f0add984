package core

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/coregx/strata/internal/util"
)

// nowFunc is replaced in tests.
var nowFunc = func() time.Time { return time.Now().UTC() }

// keyQuery returns a statement matching this record by primary key.
func (m *Model) keyQuery() (*Statement, error) {
	if m.db == nil {
		return nil, ErrNoConnection
	}
	key := m.GetKey()
	if util.IsNilKey(key) {
		return nil, logicf("%s record has no %s value", m.table, m.primaryKey)
	}
	return m.db.Table(m.table).Where(m.primaryKey, "=", key), nil
}

// Save inserts a new record or updates the dirty attributes of an existing one.
func (m *Model) Save(ctx context.Context) error {
	if m.db == nil {
		return ErrNoConnection
	}
	if m.exists {
		return m.performUpdate(ctx)
	}
	return m.performInsert(ctx)
}

func (m *Model) performInsert(ctx context.Context) error {
	if m.timestamps {
		now := nowFunc()
		if !m.HasAttribute("created_at") {
			m.SetAttribute("created_at", now)
		}
		m.SetAttribute("updated_at", now)
	}
	if m.uuidKeys && util.IsNilKey(m.GetKey()) {
		m.SetAttribute(m.primaryKey, uuid.NewString())
	}

	s := m.db.Table(m.table).WithContext(ctx)
	if !util.IsNilKey(m.GetKey()) {
		if _, err := s.Insert(m.Attributes()); err != nil {
			return err
		}
	} else {
		attrs := m.Attributes()
		delete(attrs, m.primaryKey)
		id, err := s.InsertGetID(attrs, m.primaryKey)
		if err != nil {
			return err
		}
		m.SetAttribute(m.primaryKey, id)
	}
	m.MarkExisting()
	return nil
}

func (m *Model) performUpdate(ctx context.Context) error {
	dirty := m.GetDirty()
	if len(dirty) == 0 {
		return nil
	}
	if m.timestamps {
		now := nowFunc()
		m.SetAttribute("updated_at", now)
		dirty["updated_at"] = now
	}
	s, err := m.keyQuery()
	if err != nil {
		return err
	}
	if _, err := s.WithContext(ctx).Update(dirty); err != nil {
		return err
	}
	m.syncOriginal()
	return nil
}

// Delete removes the record, or stamps its soft-delete column when enabled.
func (m *Model) Delete(ctx context.Context) error {
	if m.softDelete == "" {
		return m.ForceDelete(ctx)
	}
	s, err := m.keyQuery()
	if err != nil {
		return err
	}
	now := nowFunc()
	values := map[string]any{m.softDelete: now}
	if m.timestamps {
		values["updated_at"] = now
	}
	if _, err := s.WithContext(ctx).Update(values); err != nil {
		return err
	}
	m.ForceFill(values)
	m.syncOriginal()
	return nil
}

// ForceDelete removes the record even when soft deletes are enabled.
func (m *Model) ForceDelete(ctx context.Context) error {
	s, err := m.keyQuery()
	if err != nil {
		return err
	}
	if _, err := s.WithContext(ctx).Delete(); err != nil {
		return err
	}
	m.exists = false
	return nil
}

// Trashed reports whether the soft-delete column is set.
func (m *Model) Trashed() bool {
	return m.softDelete != "" && !util.IsNilKey(m.GetAttribute(m.softDelete))
}

// Restore clears the soft-delete column.
func (m *Model) Restore(ctx context.Context) error {
	if m.softDelete == "" {
		return logicf("%s does not use soft deletes", m.table)
	}
	s, err := m.keyQuery()
	if err != nil {
		return err
	}
	if _, err := s.WithContext(ctx).Update(map[string]any{m.softDelete: nil}); err != nil {
		return err
	}
	m.SetAttribute(m.softDelete, nil)
	m.syncOriginal()
	return nil
}

// Refresh reloads the attributes from the database and forgets loaded relations.
func (m *Model) Refresh(ctx context.Context) error {
	s, err := m.keyQuery()
	if err != nil {
		return err
	}
	row, err := s.WithContext(ctx).Limit(1).Build().Row()
	if err != nil {
		return err
	}
	if row == nil {
		return &NotFoundError{Table: m.table, ID: m.GetKey()}
	}
	m.attributes = make(map[string]any, len(row))
	for k, v := range row {
		m.attributes[k] = v
	}
	m.relations = make(map[string]any)
	m.MarkExisting()
	return nil
}

// Transaction runs fn in a transaction on the record's connection. While
// fn runs the record is bound to tx.Conn(), so its writes and the relations
// resolved from it execute inside the transaction. The previous connection
// is restored when fn returns.
func (m *Model) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	if m.db == nil {
		return ErrNoConnection
	}
	prev := m.db
	return prev.Transactional(ctx, func(tx *Tx) error {
		m.db = tx.Conn()
		defer func() { m.db = prev }()
		return fn(tx)
	})
}
