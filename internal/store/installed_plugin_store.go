package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// InstalledPlugin represents an installed plugin tracking entry
type InstalledPlugin struct {
	ID               int64
	PluginID         string
	Name             string
	RepositoryID     sql.NullString
	InstalledVersion string
	Active           bool
	Path             string
	InstalledAt      time.Time
	UpdatedAt        time.Time
}

const installedPluginColumns = `id, plugin_id, name, repository_id, installed_version, active, path, installed_at, updated_at`

func scanInstalledPlugin(row interface{ Scan(...any) error }) (*InstalledPlugin, error) {
	var inst InstalledPlugin
	err := row.Scan(
		&inst.ID,
		&inst.PluginID,
		&inst.Name,
		&inst.RepositoryID,
		&inst.InstalledVersion,
		&inst.Active,
		&inst.Path,
		&inst.InstalledAt,
		&inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// GetInstalledPlugin returns an installed plugin entry by plugin ID
func (s *Store) GetInstalledPlugin(ctx context.Context, pluginID string) (*InstalledPlugin, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+installedPluginColumns+` FROM installed_plugins WHERE plugin_id = ?`, pluginID)
	return scanInstalledPlugin(row)
}

// CreateOrUpdateInstalledPlugin creates or updates an installed plugin entry.
// The active flag of an existing entry is left untouched.
func (s *Store) CreateOrUpdateInstalledPlugin(ctx context.Context, inst *InstalledPlugin) error {
	existing, err := s.GetInstalledPlugin(ctx, inst.PluginID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	if existing != nil {
		_, err = s.db.ExecContext(ctx, `
			UPDATE installed_plugins
			SET name = ?, repository_id = ?, installed_version = ?, path = ?, updated_at = CURRENT_TIMESTAMP
			WHERE plugin_id = ?
		`, inst.Name, inst.RepositoryID, inst.InstalledVersion, inst.Path, inst.PluginID)
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO installed_plugins (plugin_id, name, repository_id, installed_version, active, path, installed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, inst.PluginID, inst.Name, inst.RepositoryID, inst.InstalledVersion, inst.Active, inst.Path)
	return err
}

// SetInstalledPluginActive flips the activation flag of an installed plugin.
// It returns sql.ErrNoRows if the plugin is not installed.
func (s *Store) SetInstalledPluginActive(ctx context.Context, pluginID string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE installed_plugins SET active = ?, updated_at = CURRENT_TIMESTAMP WHERE plugin_id = ?
	`, active, pluginID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteInstalledPlugin deletes an installed plugin entry
func (s *Store) DeleteInstalledPlugin(ctx context.Context, pluginID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM installed_plugins WHERE plugin_id = ?`, pluginID)
	return err
}

// GetAllInstalledPlugins returns all installed plugin entries
func (s *Store) GetAllInstalledPlugins(ctx context.Context) ([]*InstalledPlugin, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+installedPluginColumns+` FROM installed_plugins ORDER BY installed_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var installed []*InstalledPlugin
	for rows.Next() {
		inst, err := scanInstalledPlugin(rows)
		if err != nil {
			return nil, err
		}
		installed = append(installed, inst)
	}

	return installed, rows.Err()
}
