package catalog

import (
	"context"
	"fmt"

	"github.com/codectx-dev/codectx/internal/walker"
)

// Plan computes the four-way mutation set for tag by comparing the tag's
// existing catalog rows against currentFiles, the live walk result. It
// never touches the database — MarkComplete does that once the caller has
// actually produced the artifacts the plan calls for.
//
// The cases:
//   - a path present on disk but absent from the catalog is a compute
//     (first time this tag has seen this path) unless the path's current
//     content hash is already present anywhere else in global_cache for
//     this artifact kind, in which case it is an addTag (reuse).
//   - a path present in both but whose cacheKey changed is a compute for
//     the new key plus a removeTag/del for the old one, resolved the same
//     way addTag/del are (removeTag if the old key survives under another
//     tag, del otherwise).
//   - a path present in both with the same cacheKey and an unchanged mtime
//     needs no mutation at all.
//   - a path present in both with the same cacheKey but a strictly newer
//     mtime needs its lastUpdated bumped (Stale) so staleness windows reset
//     without recomputing content that did not change.
//   - a path present in the catalog but absent from disk is a removeTag/del
//     for its recorded cacheKey, resolved the same way.
func (s *Store) Plan(ctx context.Context, tag Tag, currentFiles map[string]walker.FileInfo, cacheKeyOf func(walker.FileInfo) (string, error)) (Plan, error) {
	existing, err := s.entriesForTag(ctx, tag)
	if err != nil {
		return Plan{}, err
	}

	var plan Plan

	for path, info := range currentFiles {
		prev, seen := existing[path]

		// A path already in the catalog whose mtime hasn't moved past its
		// recorded lastUpdated cannot have changed content: reuse its
		// cacheKey instead of re-reading and re-hashing the file. A new
		// path has no lastUpdated baseline to compare against, so it always
		// gets hashed.
		var key string
		if seen && info.LastModMs <= prev.LastUpdated.UnixMilli() {
			key = prev.CacheKey
		} else {
			var err error
			key, err = cacheKeyOf(info)
			if err != nil {
				return Plan{}, fmt.Errorf("catalog: hash %s: %w", path, err)
			}
		}

		switch {
		case !seen:
			item, err := s.classifyNew(ctx, tag, path, key)
			if err != nil {
				return Plan{}, err
			}
			if item.addTag {
				plan.AddTag = append(plan.AddTag, Item{Path: path, CacheKey: key})
			} else {
				plan.Compute = append(plan.Compute, Item{Path: path, CacheKey: key})
			}

		case prev.CacheKey == key:
			// Unchanged content. Bump lastUpdated only if mtime moved
			// strictly forward — an equal or older mtime is "no change".
			if info.LastModMs > prev.LastUpdated.UnixMilli() {
				plan.Stale = append(plan.Stale, Item{Path: path, CacheKey: key})
			}

		default:
			// Content changed: compute/addTag the new key, retire the old.
			item, err := s.classifyNew(ctx, tag, path, key)
			if err != nil {
				return Plan{}, err
			}
			if item.addTag {
				plan.AddTag = append(plan.AddTag, Item{Path: path, CacheKey: key})
			} else {
				plan.Compute = append(plan.Compute, Item{Path: path, CacheKey: key})
			}

			retire, err := s.classifyRetire(ctx, tag, path, prev.CacheKey)
			if err != nil {
				return Plan{}, err
			}
			retireItem := Item{Path: path, CacheKey: prev.CacheKey, OldCacheKey: prev.CacheKey}
			if retire.removeTag {
				plan.RemoveTag = append(plan.RemoveTag, retireItem)
			} else {
				plan.Del = append(plan.Del, retireItem)
			}
		}
	}

	for path, prev := range existing {
		if _, stillPresent := currentFiles[path]; stillPresent {
			continue
		}
		retire, err := s.classifyRetire(ctx, tag, path, prev.CacheKey)
		if err != nil {
			return Plan{}, err
		}
		item := Item{Path: path, CacheKey: prev.CacheKey, OldCacheKey: prev.CacheKey}
		if retire.removeTag {
			plan.RemoveTag = append(plan.RemoveTag, item)
		} else {
			plan.Del = append(plan.Del, item)
		}
	}

	return plan, nil
}

type newClassification struct{ addTag bool }
type retireClassification struct{ removeTag bool }

// classifyNew decides compute vs addTag for a path whose cacheKey was not
// already recorded for this tag: if global_cache already holds an artifact
// for this cacheKey under any tag (this one included), the content has been
// seen before and this
// tag can just reference it.
func (s *Store) classifyNew(ctx context.Context, tag Tag, path, cacheKey string) (newClassification, error) {
	has, err := s.globalHasAny(ctx, cacheKey, tag.ArtifactKind)
	if err != nil {
		return newClassification{}, err
	}
	return newClassification{addTag: has}, nil
}

// classifyRetire decides removeTag vs del for a (path, cacheKey) being
// dropped from tag: if the cacheKey is still referenced by any other row in
// tag_catalog — another path under this same tag sharing content, or
// another tag entirely — only this row's reference goes away (removeTag).
// If nothing else references it, the artifact itself is garbage and the
// global_cache row must go too (del).
func (s *Store) classifyRetire(ctx context.Context, tag Tag, path, cacheKey string) (retireClassification, error) {
	count, err := s.tagCatalogReferenceCount(ctx, cacheKey, tag.ArtifactKind, tag, path)
	if err != nil {
		return retireClassification{}, err
	}
	return retireClassification{removeTag: count > 0}, nil
}

// MarkComplete commits the artifacts a caller has produced for items under
// kind. It is idempotent and transactional: re-calling it with the same
// items and kind after a crash mid-refresh is safe and a no-op on the
// second pass.
func (s *Store) MarkComplete(ctx context.Context, tag Tag, items []Item, kind MutationKind) error {
	return s.applyMarkComplete(ctx, tag, items, kind)
}
