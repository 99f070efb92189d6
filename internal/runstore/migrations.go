package runstore

const schema = `
CREATE TABLE IF NOT EXISTS crawler_runs (
    id TEXT PRIMARY KEY,
    crawler_id TEXT NOT NULL,
    crawler_name TEXT NOT NULL,
    start_time TIMESTAMP NOT NULL,
    end_time TIMESTAMP,
    status TEXT NOT NULL,
    log_path TEXT NOT NULL,
    run_type TEXT NOT NULL DEFAULT 'manual',
    schedule_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_crawler_runs_start_time ON crawler_runs(start_time);
CREATE INDEX IF NOT EXISTS idx_crawler_runs_status ON crawler_runs(status);

CREATE TABLE IF NOT EXISTS scheduled_tasks (
    id TEXT PRIMARY KEY,
    crawler_id TEXT NOT NULL,
    crawler_name TEXT NOT NULL,
    schedule_type TEXT NOT NULL,
    time_value TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
`
