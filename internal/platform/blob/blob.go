// Package blob implements object storage drivers (GCS, local filesystem) and
// the per-client access policy placed in front of them.
package blob

import (
	"net/url"
	"sort"
	"strings"

	"github.com/and161185/fashion-nexus/internal/model"
)

// PlaceholderName marks an otherwise empty folder and is never listed.
const PlaceholderName = ".emptyFolderPlaceholder"

// page sorts objs per opts and applies offset and limit.
func page(objs []model.Object, opts model.ListOptions) []model.Object {
	less := func(i, j int) bool { return objs[i].Name < objs[j].Name }
	if opts.SortBy == "created_at" {
		less = func(i, j int) bool {
			if objs[i].CreatedAt.Equal(objs[j].CreatedAt) {
				return objs[i].Name < objs[j].Name
			}
			return objs[i].CreatedAt.Before(objs[j].CreatedAt)
		}
	}
	if opts.Desc {
		asc := less
		less = func(i, j int) bool { return asc(j, i) }
	}
	sort.SliceStable(objs, less)

	if opts.Offset > 0 {
		if opts.Offset >= len(objs) {
			return []model.Object{}
		}
		objs = objs[opts.Offset:]
	}
	if opts.Limit > 0 && len(objs) > opts.Limit {
		objs = objs[:opts.Limit]
	}
	return objs
}

// escapePath escapes every segment of an object path for use in a URL.
func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

// cleanPrefix normalizes a listing prefix to "a/b/" form ("" for the bucket root).
func cleanPrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}
