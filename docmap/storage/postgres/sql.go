package postgres

import "github.com/nonibytes/docmap/docmap/storage"

const ddlBase = `
CREATE TABLE IF NOT EXISTS meta (
  key   TEXT PRIMARY KEY,
  value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS docs (
  id BIGSERIAL PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS fields (
  id     BIGSERIAL PRIMARY KEY,
  doc_id BIGINT   NOT NULL REFERENCES docs(id) ON DELETE CASCADE,
  ord    INTEGER  NOT NULL,
  name   TEXT     NOT NULL,
  kind   SMALLINT NOT NULL,
  str    TEXT,
  num_i  BIGINT,
  num_f  DOUBLE PRECISION,
  blob   BYTEA
);
CREATE INDEX IF NOT EXISTS idx_fields_doc   ON fields(doc_id, ord);
CREATE INDEX IF NOT EXISTS idx_fields_str   ON fields(name, str);
CREATE INDEX IF NOT EXISTS idx_fields_num_i ON fields(name, num_i);
CREATE INDEX IF NOT EXISTS idx_fields_num_f ON fields(name, num_f);
`

var SQLTemplates = storage.SQL{
	GetMeta:           "SELECT value FROM meta WHERE key = $1",
	SetMeta:           "INSERT INTO meta(key,value) VALUES($1,$2) ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value",
	InsertDoc:         "INSERT INTO docs DEFAULT VALUES RETURNING id",
	InsertField:       "INSERT INTO fields(doc_id, ord, name, kind, str, num_i, num_f, blob) VALUES($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id",
	DeleteFieldsByDoc: "DELETE FROM fields WHERE doc_id = $1",
	DeleteDoc:         "DELETE FROM docs WHERE id = $1",
	DeleteAllFields:   "DELETE FROM fields",
	DeleteAllDocs:     "DELETE FROM docs",
	CountDocs:         "SELECT COUNT(*) FROM docs",
	AllDocIDs:         "SELECT id FROM docs ORDER BY id",
}
