package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by DeleteContainer for names not in the catalog.
var ErrNotFound = errors.New("container not in catalog")

// Container is a persisted registry entry.
type Container struct {
	Name      string    `json:"name"`
	Dir       string    `json:"dir"`
	Ext       string    `json:"ext"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SaveContainer inserts or replaces a container. An existing entry keeps its
// position in ListContainers.
func (d *DB) SaveContainer(c *Container) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := d.db.Exec(`
		INSERT INTO containers (name, dir, ext, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			dir = excluded.dir,
			ext = excluded.ext,
			updated_at = excluded.updated_at
	`, c.Name, c.Dir, c.Ext,
		c.CreatedAt.Format(time.RFC3339), time.Now().Format(time.RFC3339))
	return err
}

// GetContainer retrieves a container by name. Returns nil, nil if absent.
func (d *DB) GetContainer(name string) (*Container, error) {
	row := d.db.QueryRow(`
		SELECT name, dir, ext, created_at, updated_at
		FROM containers WHERE name = ?
	`, name)
	c, err := scanContainer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// ListContainers returns all containers in registration order.
func (d *DB) ListContainers() ([]*Container, error) {
	rows, err := d.db.Query(`
		SELECT name, dir, ext, created_at, updated_at
		FROM containers ORDER BY rowid
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var containers []*Container
	for rows.Next() {
		c, err := scanContainer(rows)
		if err != nil {
			return nil, err
		}
		containers = append(containers, c)
	}
	return containers, rows.Err()
}

// DeleteContainer removes a container entry. Events are kept.
func (d *DB) DeleteContainer(name string) error {
	res, err := d.db.Exec(`DELETE FROM containers WHERE name = ?`, name)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

// DeleteAllContainers removes every container entry.
func (d *DB) DeleteAllContainers() error {
	_, err := d.db.Exec(`DELETE FROM containers`)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContainer(s scanner) (*Container, error) {
	var c Container
	var createdAt, updatedAt string
	if err := s.Scan(&c.Name, &c.Dir, &c.Ext, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &c, nil
}
