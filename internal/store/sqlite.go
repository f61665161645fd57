// Copyright 2025, the segstitch authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"

	_ "github.com/mattn/go-sqlite3"
)

const sqlDriver = "sqlite3"

const schema = `
CREATE TABLE IF NOT EXISTS objects (
	object_id   TEXT NOT NULL PRIMARY KEY,
	group_id    TEXT NOT NULL,
	ordinal     INTEGER NOT NULL,
	filename    TEXT NOT NULL,
	size_bytes  INTEGER NOT NULL,
	chunk_count INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_objects_group ON objects (group_id, ordinal);
CREATE TABLE IF NOT EXISTS chunks (
	object_id TEXT NOT NULL,
	idx       INTEGER NOT NULL,
	payload   BLOB NOT NULL,
	PRIMARY KEY (object_id, idx)
);
`

// SQLiteStore implements Store on top of a SQLite database.
// The database/sql pool is the process-wide store connection:
// open it once at startup and Close it at shutdown. Sessions borrow
// connections from the pool per query rather than owning one.
type SQLiteStore struct {
	db        *sql.DB
	chunkSize int
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and if needed creates) the store database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", dbPath)
	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create store schema: %w", err)
	}
	return &SQLiteStore{db: db, chunkSize: DefaultChunkSize}, nil
}

func (s *SQLiteStore) ObjectByID(ctx context.Context, objectID string) (ObjectMeta, error) {
	var m ObjectMeta
	row := s.db.QueryRowContext(ctx,
		`SELECT object_id, group_id, ordinal, filename, size_bytes, chunk_count
		 FROM objects WHERE object_id = ?`, objectID)
	err := row.Scan(&m.ObjectID, &m.GroupID, &m.Ordinal, &m.Filename, &m.SizeBytes, &m.ChunkCount)
	switch {
	case err == sql.ErrNoRows:
		return ObjectMeta{}, fmt.Errorf("object %s: %w", objectID, ErrNotFound)
	case err != nil:
		return ObjectMeta{}, fmt.Errorf("query object %s: %w", objectID, err)
	}
	return m, nil
}

func (s *SQLiteStore) ObjectsByGroup(ctx context.Context, groupID string) ([]ObjectMeta, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT object_id, group_id, ordinal, filename, size_bytes, chunk_count
		 FROM objects WHERE group_id = ? ORDER BY ordinal, object_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("query group %s: %w", groupID, err)
	}
	defer rows.Close()
	var metas []ObjectMeta
	for rows.Next() {
		var m ObjectMeta
		if err := rows.Scan(&m.ObjectID, &m.GroupID, &m.Ordinal, &m.Filename,
			&m.SizeBytes, &m.ChunkCount); err != nil {
			return nil, fmt.Errorf("scan group %s: %w", groupID, err)
		}
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

func (s *SQLiteStore) Groups(ctx context.Context) ([]GroupInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id, COUNT(*), SUM(size_bytes)
		 FROM objects GROUP BY group_id ORDER BY group_id`)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()
	var groups []GroupInfo
	for rows.Next() {
		var g GroupInfo
		if err := rows.Scan(&g.GroupID, &g.Segments, &g.SizeBytes); err != nil {
			return nil, fmt.Errorf("scan groups: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *SQLiteStore) Chunk(ctx context.Context, objectID string, idx int) ([]byte, error) {
	var payload []byte
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM chunks WHERE object_id = ? AND idx = ?`, objectID, idx)
	err := row.Scan(&payload)
	switch {
	case err == sql.ErrNoRows:
		return nil, fmt.Errorf("chunk %s/%d: %w", objectID, idx, ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("query chunk %s/%d: %w", objectID, idx, err)
	}
	return payload, nil
}

// WriteObject splits r into chunks and commits chunks and metadata in one
// transaction, so a partially written object is never visible.
func (s *SQLiteStore) WriteObject(ctx context.Context, groupID string, ordinal int,
	filename string, r io.Reader) (ObjectMeta, error) {
	objectID, err := newObjectID()
	if err != nil {
		return ObjectMeta{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ObjectMeta{}, fmt.Errorf("begin write: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck  // no-op after commit

	var (
		size   int64
		nChunk int
		buf    = make([]byte, s.chunkSize)
	)
	for {
		n, rdErr := io.ReadFull(r, buf)
		if n > 0 {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO chunks (object_id, idx, payload) VALUES (?, ?, ?)`,
				objectID, nChunk, buf[:n]); err != nil {
				return ObjectMeta{}, fmt.Errorf("write chunk %d: %w", nChunk, err)
			}
			size += int64(n)
			nChunk++
		}
		if rdErr == io.EOF || rdErr == io.ErrUnexpectedEOF {
			break
		}
		if rdErr != nil {
			return ObjectMeta{}, fmt.Errorf("read object data: %w", rdErr)
		}
	}
	m := ObjectMeta{
		ObjectID:   objectID,
		GroupID:    groupID,
		Ordinal:    ordinal,
		Filename:   filename,
		SizeBytes:  size,
		ChunkCount: nChunk,
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO objects (object_id, group_id, ordinal, filename, size_bytes, chunk_count)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ObjectID, m.GroupID, m.Ordinal, m.Filename, m.SizeBytes, m.ChunkCount); err != nil {
		return ObjectMeta{}, fmt.Errorf("write object metadata: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return ObjectMeta{}, fmt.Errorf("commit object: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) DeleteGroup(ctx context.Context, groupID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE object_id IN (SELECT object_id FROM objects WHERE group_id = ?)`,
		groupID); err != nil {
		return fmt.Errorf("delete chunks of group %s: %w", groupID, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM objects WHERE group_id = ?`, groupID)
	if err != nil {
		return fmt.Errorf("delete objects of group %s: %w", groupID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("group %s: %w", groupID, ErrNotFound)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func newObjectID() (string, error) {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate object id: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
