package syncx

import (
	"context"
	"database/sql"
	"time"
)

// Event is one attempt-lifecycle audit record: attempt_started,
// attempt_submitted, suspicion_max_reached.
type Event struct {
	Seq       int64
	SiteID    string
	Type      string
	Key       string // natural key, e.g. attempt:<id>
	DataJSON  string
	CreatedAt int64
}

// EventLog is the append-only audit trail behind the quiz service's
// EventSink. Reads are for the admin surface only.
type EventLog struct {
	db     *sql.DB
	siteID string
}

func NewEventLog(db *sql.DB, siteID string) *EventLog {
	if siteID == "" {
		siteID = "local"
	}
	return &EventLog{db: db, siteID: siteID}
}

func (l *EventLog) Append(ctx context.Context, typ, key, dataJSON string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		l.siteID, typ, key, dataJSON, time.Now().Unix())
	return err
}

// ListByKey returns events for one natural key in append order.
func (l *EventLog) ListByKey(ctx context.Context, key string) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT seq, site_id, typ, key, data, created_at
		 FROM event_log WHERE key=$1 ORDER BY seq`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
