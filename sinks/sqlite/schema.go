package sqlite

// Schema creates the tables written by Writer. Nested records repeat the
// events they share with their ancestors, one row per record.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	parent_id   TEXT,
	depth       INTEGER NOT NULL,
	opened_at   INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL,
	has_failure INTEGER NOT NULL,
	event_count INTEGER NOT NULL,
	rendered    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_run ON records(run_id);
CREATE INDEX IF NOT EXISTS idx_records_failure ON records(has_failure);

CREATE TABLE IF NOT EXISTS events (
	record_id TEXT NOT NULL REFERENCES records(id),
	seq       INTEGER NOT NULL,
	time      INTEGER NOT NULL,
	worker    INTEGER NOT NULL,
	file      TEXT NOT NULL,
	line      INTEGER NOT NULL,
	class     TEXT,
	member    TEXT NOT NULL,
	message   TEXT NOT NULL,
	failure   TEXT,
	PRIMARY KEY (record_id, seq)
);
`

const insertRecord = `
INSERT OR REPLACE INTO records (
	id, run_id, parent_id, depth, opened_at, duration_ns, has_failure, event_count, rendered
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

const insertEvent = `
INSERT OR REPLACE INTO events (
	record_id, seq, time, worker, file, line, class, member, message, failure
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
