package store

// Schema v1 - batches, videos, assignments and written outputs
const schemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- One row per batch run
CREATE TABLE IF NOT EXISTS batches (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  output_root TEXT NOT NULL,
  sources_json TEXT,
  started_at DATETIME NOT NULL,
  finished_at DATETIME,
  status TEXT NOT NULL DEFAULT 'running',
  total INTEGER DEFAULT 0,
  processed INTEGER DEFAULT 0,
  failed INTEGER DEFAULT 0,
  skipped INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_batches_name ON batches(name);

-- Videos discovered for a batch
CREATE TABLE IF NOT EXISTS videos (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  batch_id TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
  file_key TEXT NOT NULL,
  src_path TEXT NOT NULL,
  rel_path TEXT,
  size_bytes INTEGER,
  mtime_unix INTEGER,
  status TEXT NOT NULL DEFAULT 'pending',
  error TEXT,
  attempts INTEGER DEFAULT 0,
  record_json TEXT,
  updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  UNIQUE (batch_id, file_key)
);

-- Mission assignment per video
CREATE TABLE IF NOT EXISTS assignments (
  video_id INTEGER PRIMARY KEY REFERENCES videos(id) ON DELETE CASCADE,
  mission TEXT NOT NULL,
  confidence REAL NOT NULL,
  bay TEXT,
  method TEXT NOT NULL,
  note TEXT
);

-- Files written for a batch; video_id is NULL for batch-level artifacts
CREATE TABLE IF NOT EXISTS outputs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  batch_id TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
  video_id INTEGER REFERENCES videos(id) ON DELETE SET NULL,
  kind TEXT NOT NULL,
  path TEXT NOT NULL,
  bytes INTEGER DEFAULT 0,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  UNIQUE (batch_id, path)
);
`

// Schema v2 - lookup indexes for resume and reporting
const schemaV2 = `
CREATE INDEX IF NOT EXISTS idx_videos_batch_status ON videos(batch_id, status);
CREATE INDEX IF NOT EXISTS idx_videos_src_path ON videos(src_path);
CREATE INDEX IF NOT EXISTS idx_assignments_mission ON assignments(mission);
CREATE INDEX IF NOT EXISTS idx_outputs_batch_kind ON outputs(batch_id, kind);
`
