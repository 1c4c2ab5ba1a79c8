package catalog

import (
	"context"
	"errors"

	"github.com/sahilm/fuzzy"

	"github.com/capdex/exchange/exchange/database/models"
)

// ErrSealed marks reads that only make sense once an auction has resolved.
var ErrSealed = errors.New("auction standings are sealed until resolution")

type captureSource []*models.Capture

func (s captureSource) String(i int) string { return s[i].Label }
func (s captureSource) Len() int            { return len(s) }

// SearchCaptures fuzzy-matches a user's own captures by label, best match
// first. An empty query returns everything in capture order, which lets one
// endpoint back both the browse list and the search-as-you-type picker.
func (c *Catalog) SearchCaptures(ctx context.Context, ownerID, query string) ([]*models.Capture, error) {
	captures, err := c.captures.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return captures, nil
	}

	matches := fuzzy.FindFrom(query, captureSource(captures))
	results := make([]*models.Capture, 0, len(matches))
	for _, m := range matches {
		results = append(results, captures[m.Index])
	}
	return results, nil
}
