package index

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/nonibytes/docmap/docmap/query"
)

// ErrCursor reports a cursor that is malformed or was issued for another
// query.
var ErrCursor = errors.New("invalid cursor")

const cursorVersion = 1

type cursorPosition struct {
	Version int    `json:"v"`
	Hash    string `json:"hash"`
	After   int64  `json:"after"`
}

// Page is one page of search results.
type Page struct {
	Hits       []Hit
	NextCursor string
	HasMore    bool
}

func hashQuery(q query.Query) string {
	return strconv.FormatUint(xxhash.Sum64String(q.String()), 16)
}

func encodeCursor(pos cursorPosition) (string, error) {
	b, err := json.Marshal(pos)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func decodeCursor(tok string) (cursorPosition, error) {
	b, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil {
		return cursorPosition{}, errors.Join(ErrCursor, errors.New("base64 decode error"))
	}
	var pos cursorPosition
	if err := json.Unmarshal(b, &pos); err != nil {
		return cursorPosition{}, errors.Join(ErrCursor, errors.New("cursor json parse error"))
	}
	if pos.Version != cursorVersion {
		return cursorPosition{}, errors.Join(ErrCursor, errors.New("unsupported cursor version"))
	}
	return pos, nil
}

// SearchPage returns up to limit hits of q following cursor. An empty
// cursor starts at the beginning. The returned NextCursor is only valid
// for the same query.
func (s *Store) SearchPage(ctx context.Context, snap *Snapshot, q query.Query, limit int, cursor string) (Page, error) {
	if limit <= 0 {
		limit = DefaultLoadBatch
	}
	hash := hashQuery(q)
	var after int64
	if cursor != "" {
		pos, err := decodeCursor(cursor)
		if err != nil {
			return Page{}, err
		}
		if pos.Hash != hash {
			return Page{}, errors.Join(ErrCursor, errors.New("cursor belongs to a different query"))
		}
		after = pos.After
	}

	ids, err := s.Match(ctx, snap, q)
	if err != nil {
		return Page{}, err
	}
	// One extra id tells whether another page follows.
	page := firstN(ids, after, limit+1)
	more := len(page) > limit
	if more {
		page = page[:limit]
	}
	hits, err := s.loadIDs(ctx, snap, page)
	if err != nil {
		return Page{}, err
	}
	out := Page{Hits: hits, HasMore: more}
	if more {
		out.NextCursor, err = encodeCursor(cursorPosition{
			Version: cursorVersion,
			Hash:    hash,
			After:   page[len(page)-1],
		})
		if err != nil {
			return Page{}, err
		}
	}
	return out, nil
}
