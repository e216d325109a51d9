package catalog

// Schema contains the SQL statements to create the catalog database schema.
const Schema = `
-- Clusters table: one allocation counter per bucket, digits stored as "1/2/3"
CREATE TABLE IF NOT EXISTS clusters (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT UNIQUE NOT NULL,
    digits      TEXT NOT NULL,
    created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Documents table: records owning at most one stored attachment
CREATE TABLE IF NOT EXISTS documents (
    id                      INTEGER PRIMARY KEY AUTOINCREMENT,
    kind                    TEXT NOT NULL,
    name                    TEXT NOT NULL DEFAULT '',
    attributes              TEXT,
    attachment_size         INTEGER NOT NULL DEFAULT 0,
    attachment_path         TEXT NOT NULL DEFAULT '',
    attachment_content_type TEXT NOT NULL DEFAULT '',
    created_at              DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at              DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Indexes for performance
CREATE INDEX IF NOT EXISTS idx_clusters_name ON clusters(name);
CREATE INDEX IF NOT EXISTS idx_documents_kind ON documents(kind);
`
