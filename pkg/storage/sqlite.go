package storage

import (
	"context"
	"database/sql"
	"time"

	"datapulse/pkg/runtime"
	"datapulse/pkg/runtime/constant"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	_ "modernc.org/sqlite"
)

var _ Catalog = (*SqliteStore)(nil)
var _ runtime.SampleSink = (*SqliteStore)(nil)

const TimestampLayout = "2006-01-02 15:04:05.000"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS devices (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    description TEXT
);`,
	`CREATE TABLE IF NOT EXISTS tags (
    id INTEGER PRIMARY KEY,
    device_id INTEGER NOT NULL,
    address INTEGER NOT NULL,
    kind TEXT NOT NULL,
    name TEXT NOT NULL,
    FOREIGN KEY (device_id) REFERENCES devices (id) ON DELETE CASCADE,
    UNIQUE (kind, address)
);`,
	`CREATE TABLE IF NOT EXISTS alarm_rules (
    id INTEGER PRIMARY KEY,
    tag_id INTEGER NOT NULL,
    operator TEXT NOT NULL,
    trigger_value TEXT NOT NULL,
    priority TEXT NOT NULL,
    message TEXT,
    active INTEGER NOT NULL,
    FOREIGN KEY (tag_id) REFERENCES tags (id) ON DELETE CASCADE
);`,
	`CREATE TABLE IF NOT EXISTS samples (
    id INTEGER PRIMARY KEY,
    timestamp TEXT NOT NULL,
    kind TEXT NOT NULL,
    address INTEGER NOT NULL,
    value TEXT NOT NULL
);`,
}

const selectTags = `SELECT d.name, t.name, t.kind, t.address FROM tags t JOIN devices d ON t.device_id = d.id`

const selectActiveRules = `SELECT r.id, r.operator, r.trigger_value, r.priority, COALESCE(r.message, ''),
       t.kind, t.address, d.name, t.name
FROM alarm_rules r
JOIN tags t ON r.tag_id = t.id
JOIN devices d ON t.device_id = d.id
WHERE r.active = 1
ORDER BY r.id`

const insertSample = `INSERT INTO samples (timestamp, kind, address, value) VALUES (?, ?, ?, ?)`

// SqliteStore holds devices, tags, alarm rules and logged samples.
type SqliteStore struct {
	db *sql.DB
}

func OpenSqlite(ctx context.Context, path string) (*SqliteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open database %s", path)
	}
	// one writer, sqlite serializes anyway
	db.SetMaxOpenConns(1)
	if _, err = db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enable foreign keys")
	}
	for _, stmt := range schema {
		if _, err = db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "create schema in %s", path)
		}
	}
	klog.V(2).InfoS("Opened database", "path", path)
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

// LoadTags returns every tag with a recognised kind. Rows with an unknown
// kind are logged and skipped.
func (s *SqliteStore) LoadTags(ctx context.Context) ([]runtime.Tag, error) {
	rows, err := s.db.QueryContext(ctx, selectTags)
	if err != nil {
		return nil, errors.Wrap(err, "query tags")
	}
	defer rows.Close()

	tags := make([]runtime.Tag, 0)
	for rows.Next() {
		var device, name, kind string
		var address int64
		if err = rows.Scan(&device, &name, &kind, &address); err != nil {
			return nil, errors.Wrap(err, "scan tag")
		}
		pk, err := constant.ParsePointKind(kind)
		if err != nil || address < 0 || address > constant.MaxAddress {
			klog.V(2).InfoS("Skipped invalid tag", "device", device, "tag", name, "kind", kind, "address", address)
			continue
		}
		tags = append(tags, runtime.Tag{
			PointAddress: runtime.PointAddress{Kind: pk, Address: uint16(address)},
			TagInfo:      runtime.TagInfo{DeviceName: device, TagName: name},
		})
	}
	return tags, errors.Wrap(rows.Err(), "iterate tags")
}

// ListActive returns the active rules with their tag resolved.
func (s *SqliteStore) ListActive(ctx context.Context) ([]runtime.AlarmRule, error) {
	rows, err := s.db.QueryContext(ctx, selectActiveRules)
	if err != nil {
		return nil, errors.Wrap(err, "query alarm rules")
	}
	defer rows.Close()

	rules := make([]runtime.AlarmRule, 0)
	for rows.Next() {
		var (
			id                             int64
			op, trigger, priority, message string
			kind, device, name             string
			address                        int64
		)
		if err = rows.Scan(&id, &op, &trigger, &priority, &message, &kind, &address, &device, &name); err != nil {
			return nil, errors.Wrap(err, "scan alarm rule")
		}
		rule, err := newAlarmRule(id, op, trigger, priority, message, kind, address, device, name)
		if err != nil {
			klog.V(2).InfoS("Skipped invalid alarm rule", "id", id, "error", err)
			continue
		}
		rules = append(rules, rule)
	}
	return rules, errors.Wrap(rows.Err(), "iterate alarm rules")
}

func newAlarmRule(id int64, op, trigger, priority, message, kind string, address int64, device, name string) (runtime.AlarmRule, error) {
	operator, err := constant.ParseOperator(op)
	if err != nil {
		return runtime.AlarmRule{}, err
	}
	p, err := constant.ParsePriority(priority)
	if err != nil {
		return runtime.AlarmRule{}, err
	}
	pk, err := constant.ParsePointKind(kind)
	if err != nil {
		return runtime.AlarmRule{}, err
	}
	if address < 0 || address > constant.MaxAddress {
		return runtime.AlarmRule{}, errors.Errorf("address %d out of range", address)
	}
	return runtime.AlarmRule{
		ID: id,
		Tag: runtime.Tag{
			PointAddress: runtime.PointAddress{Kind: pk, Address: uint16(address)},
			TagInfo:      runtime.TagInfo{DeviceName: device, TagName: name},
		},
		Operator:     operator,
		TriggerValue: trigger,
		Priority:     p,
		Message:      message,
		Active:       true,
	}, nil
}

// AppendBatch writes all samples in one transaction.
func (s *SqliteStore) AppendBatch(ctx context.Context, samples []runtime.LiveSample) error {
	if len(samples) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin sample batch")
	}
	stmt, err := tx.PrepareContext(ctx, insertSample)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "prepare sample insert")
	}
	defer stmt.Close()

	for _, sample := range samples {
		if _, err = stmt.ExecContext(ctx, sample.Timestamp.Format(TimestampLayout), sample.Kind.String(), sample.Address, sample.Value.String()); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "insert sample %s %d", sample.Kind, sample.Address)
		}
	}
	return errors.Wrap(tx.Commit(), "commit sample batch")
}

// Sample is one stored row.
type Sample struct {
	Timestamp time.Time
	Kind      string
	Address   uint16
	Value     string
}

// RecentSamples returns up to limit rows, newest first.
func (s *SqliteStore) RecentSamples(ctx context.Context, limit int) ([]Sample, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT timestamp, kind, address, value FROM samples ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query samples")
	}
	defer rows.Close()

	samples := make([]Sample, 0, limit)
	for rows.Next() {
		var ts string
		var sample Sample
		if err = rows.Scan(&ts, &sample.Kind, &sample.Address, &sample.Value); err != nil {
			return nil, errors.Wrap(err, "scan sample")
		}
		if sample.Timestamp, err = time.ParseInLocation(TimestampLayout, ts, time.Local); err != nil {
			return nil, errors.Wrapf(err, "parse sample timestamp %q", ts)
		}
		samples = append(samples, sample)
	}
	return samples, errors.Wrap(rows.Err(), "iterate samples")
}
