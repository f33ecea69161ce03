package catalog

import (
	"time"

	"github.com/google/uuid"

	"github.com/xfeldman/arcbox/internal/report"
)

// Event is a persisted container event.
type Event struct {
	ID string `json:"id"`
	report.Event
}

// RecordEvent appends e to the audit log.
func (d *DB) RecordEvent(e report.Event) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	_, err := d.db.Exec(`
		INSERT INTO events (id, container, op, member, size, at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), e.Container, e.Op, e.Member, e.Size, e.Time.UnixNano())
	return err
}

// Events returns the most recent events for a container file, oldest first.
// If limit <= 0, all events are returned.
func (d *DB) Events(container string, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.Query(`
		SELECT id, container, op, member, size, at FROM (
			SELECT id, container, op, member, size, at, rowid AS seq
			FROM events WHERE container = ?
			ORDER BY at DESC, seq DESC
			LIMIT ?
		) ORDER BY at, seq
	`, container, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var ev Event
		var at int64
		if err := rows.Scan(&ev.ID, &ev.Container, &ev.Op, &ev.Member, &ev.Size, &at); err != nil {
			return nil, err
		}
		ev.Time = time.Unix(0, at)
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// PruneEvents deletes events older than cutoff and returns how many went.
func (d *DB) PruneEvents(cutoff time.Time) (int64, error) {
	res, err := d.db.Exec(`DELETE FROM events WHERE at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Observer returns a report.Reporter that persists events into d and then
// passes them on to fallback. Warnings are not persisted; they and any
// failure to record an event go to fallback only.
func (d *DB) Observer(fallback report.Reporter) report.Reporter {
	if fallback == nil {
		fallback = report.Nop{}
	}
	return &observer{db: d, fallback: fallback}
}

type observer struct {
	db       *DB
	fallback report.Reporter
}

func (o *observer) Warn(msg string, keysAndValues ...any) {
	o.fallback.Warn(msg, keysAndValues...)
}

func (o *observer) Event(e report.Event) {
	if err := o.db.RecordEvent(e); err != nil {
		o.fallback.Warn("catalog: record event failed",
			"container", e.Container, "op", e.Op, "error", err)
		return
	}
	o.fallback.Event(e)
}
