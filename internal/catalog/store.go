package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store is the sqlite-backed transactional catalog: tag_catalog and
// global_cache. It shares the *sql.DB handle with internal/storage so the
// artifact tables (chunks, embeddings, symbols) and the catalog tables live
// in one WAL-mode SQLite file; catalog writes commit in their own
// transactions, separate from the artifact writes.
type Store struct {
	db *sql.DB
}

// NewStore wraps an already-migrated *sql.DB for catalog operations.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// PathsForTag returns the set of paths tag currently tracks, used by
// retrieval components that need to restrict results to one tag's file set
// without duplicating the tag_catalog query logic.
func (s *Store) PathsForTag(ctx context.Context, tag Tag) (map[string]bool, error) {
	entries, err := s.entriesForTag(ctx, tag)
	if err != nil {
		return nil, err
	}
	paths := make(map[string]bool, len(entries))
	for path := range entries {
		paths[path] = true
	}
	return paths, nil
}

// KnownEntries exposes entriesForTag to callers outside the package that
// need each path's previously recorded cacheKey and lastUpdated mtime
// before a walk — the orchestrator's re-hash short-circuit is the only
// current caller.
func (s *Store) KnownEntries(ctx context.Context, tag Tag) (map[string]TagCatalogEntry, error) {
	return s.entriesForTag(ctx, tag)
}

// entriesForTag returns every tag_catalog row currently recorded for tag.
func (s *Store) entriesForTag(ctx context.Context, tag Tag) (map[string]TagCatalogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, cache_key, last_updated FROM tag_catalog WHERE dir = ? AND branch = ? AND artifact_id = ?`,
		tag.Dir, tag.Branch, string(tag.ArtifactKind))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogRead, err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]TagCatalogEntry)
	for rows.Next() {
		var path, cacheKey string
		var lastUpdated time.Time
		if err := rows.Scan(&path, &cacheKey, &lastUpdated); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCatalogRead, err)
		}
		out[path] = TagCatalogEntry{Tag: tag, Path: path, CacheKey: cacheKey, LastUpdated: lastUpdated}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogRead, err)
	}
	return out, nil
}

// PathForCacheKey resolves a cacheKey back to the path it is currently
// tagged under, for retrieval components (internal/lexical's Hit) that key
// their results by cacheKey rather than path. Returns ok=false if no
// tag_catalog row matches.
func (s *Store) PathForCacheKey(ctx context.Context, tag Tag, cacheKey string) (string, bool, error) {
	var path string
	err := s.db.QueryRowContext(ctx,
		`SELECT path FROM tag_catalog WHERE dir = ? AND branch = ? AND artifact_id = ? AND cache_key = ? LIMIT 1`,
		tag.Dir, tag.Branch, string(tag.ArtifactKind), cacheKey).Scan(&path)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrCatalogRead, err)
	}
	return path, true, nil
}

// globalHasAny reports whether cacheKey has any global_cache row at all for
// artifactKind, regardless of tag — used to distinguish compute from addTag.
func (s *Store) globalHasAny(ctx context.Context, cacheKey string, kind ArtifactKind) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM global_cache WHERE cache_key = ? AND artifact_id = ?`,
		cacheKey, string(kind)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCatalogRead, err)
	}
	return count > 0, nil
}

// tagCatalogReferenceCount counts how many tag_catalog rows still reference
// cacheKey for artifactKind once excludingPath (under excludingTag) is
// disregarded. global_cache rows are keyed by (cacheKey, tag) without a
// path column, so this is the only place that can tell whether the last
// path referencing a cacheKey under a given tag is going away — a rename
// that keeps the same content within one tag must not trip a del.
func (s *Store) tagCatalogReferenceCount(ctx context.Context, cacheKey string, kind ArtifactKind, excludingTag Tag, excludingPath string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tag_catalog
		 WHERE cache_key = ? AND artifact_id = ?
		   AND NOT (dir = ? AND branch = ? AND path = ?)`,
		cacheKey, string(kind), excludingTag.Dir, excludingTag.Branch, excludingPath).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCatalogRead, err)
	}
	return count, nil
}

// applyMarkComplete commits a markComplete batch atomically: it updates
// both the tag catalog and the global cache within one transaction.
// Idempotent: repeating the same items/kind is a no-op because every write
// is an upsert or a conditional delete.
func (s *Store) applyMarkComplete(ctx context.Context, tag Tag, items []Item, kind MutationKind) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCatalogWrite, err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()

	for _, item := range items {
		if err := applyOne(ctx, tx, tag, item, kind, now); err != nil {
			return fmt.Errorf("%w: %v", ErrCatalogWrite, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrCatalogWrite, err)
	}
	return nil
}

func applyOne(ctx context.Context, tx *sql.Tx, tag Tag, item Item, kind MutationKind, now time.Time) error {
	switch kind {
	case MutationCompute, MutationAddTag, MutationUpdateLastUpdated:
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tag_catalog (dir, branch, artifact_id, path, cache_key, last_updated)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(dir, branch, artifact_id, path, cache_key)
			DO UPDATE SET last_updated = excluded.last_updated`,
			tag.Dir, tag.Branch, string(tag.ArtifactKind), item.Path, item.CacheKey, now); err != nil {
			return err
		}
		if kind != MutationUpdateLastUpdated {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO global_cache (cache_key, dir, branch, artifact_id)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(cache_key, dir, branch, artifact_id) DO NOTHING`,
				item.CacheKey, tag.Dir, tag.Branch, string(tag.ArtifactKind)); err != nil {
				return err
			}
		}
		return nil

	case MutationRemoveTag, MutationDel:
		oldKey := item.OldCacheKey
		if oldKey == "" {
			oldKey = item.CacheKey
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM tag_catalog
			WHERE dir = ? AND branch = ? AND artifact_id = ? AND path = ? AND cache_key = ?`,
			tag.Dir, tag.Branch, string(tag.ArtifactKind), item.Path, oldKey); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM global_cache
			WHERE cache_key = ? AND dir = ? AND branch = ? AND artifact_id = ?`,
			oldKey, tag.Dir, tag.Branch, string(tag.ArtifactKind)); err != nil {
			return err
		}
		return nil

	default:
		return fmt.Errorf("catalog: unknown mutation kind %q", kind)
	}
}
