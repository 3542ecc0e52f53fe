package db

import (
	"context"
	"fmt"
)

// Register adds entity types to the manager's registry. Registering the same
// table twice keeps the first model.
func (m *Manager) Register(models ...Model) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, model := range models {
		table := model.TableName()
		if _, ok := m.models[table]; ok {
			continue
		}
		m.models[table] = model
		m.order = append(m.order, table)
	}
}

// IsRegistered reports whether a model with the given table was registered
func (m *Manager) IsRegistered(table string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.models[table]
	return ok
}

// Tables returns the registered tables in registration order
func (m *Manager) Tables() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]string(nil), m.order...)
}

// AutoMigrate creates or updates the schema of every registered model, in
// registration order, so referenced tables can be registered first.
func (m *Manager) AutoMigrate(ctx context.Context) error {
	m.mu.RLock()
	models := make([]any, 0, len(m.order))
	for _, table := range m.order {
		models = append(models, m.models[table])
	}
	m.mu.RUnlock()

	if len(models) == 0 {
		return nil
	}
	if err := m.db.WithContext(ctx).AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}
	return nil
}
