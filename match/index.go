package match

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/tchap/go-patricia/v2/patricia"

	"github.com/trailhub/trailsuggest/suggest"
	"github.com/trailhub/trailsuggest/trails"
)

var indexVersion atomic.Uint64

// Index is an immutable snapshot of a trail corpus with a suffix trie over
// the folded trail names. Every suffix of every name is a key, so visiting
// the subtree under a query yields exactly the names containing it.
type Index struct {
	records  []trails.Record
	folded   []string
	trie     *patricia.Trie
	version  uint64
	loadedAt time.Time
}

// NewIndex copies records and builds the suffix trie.
func NewIndex(records []trails.Record) *Index {
	idx := &Index{
		records:  make([]trails.Record, len(records)),
		folded:   make([]string, len(records)),
		trie:     patricia.NewTrie(),
		version:  indexVersion.Add(1),
		loadedAt: time.Now(),
	}
	copy(idx.records, records)

	postings := make(map[string][]int)
	for i, rec := range idx.records {
		if rec.Name == "" {
			continue
		}
		name := fold(rec.Name)
		idx.folded[i] = name
		for offset := range name {
			suffix := name[offset:]
			ids := postings[suffix]
			if n := len(ids); n > 0 && ids[n-1] == i {
				continue
			}
			postings[suffix] = append(ids, i)
		}
	}
	for suffix, ids := range postings {
		idx.trie.Insert(patricia.Prefix(suffix), ids)
	}
	return idx
}

// Match returns the same result as Match(query, records) for the records the
// index was built from.
func (x *Index) Match(query string) []suggest.Suggestion {
	if x == nil {
		return nil
	}
	folded, ok := prepare(query)
	if !ok {
		return nil
	}

	seen := make(map[int]struct{})
	var ids []int
	_ = x.trie.VisitSubtree(patricia.Prefix(folded), func(_ patricia.Prefix, item patricia.Item) error {
		for _, id := range item.([]int) {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		return nil
	})
	// Corpus order keeps the stable sort identical to the linear scan.
	sort.Ints(ids)

	cands := make([]candidate, 0, len(ids))
	for _, id := range ids {
		cands = append(cands, newCandidate(x.records[id], x.folded[id]))
	}
	return rank(cands, folded)
}

// Len reports the number of records in the snapshot.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.records)
}

// Version is a process-unique, increasing snapshot number.
func (x *Index) Version() uint64 {
	if x == nil {
		return 0
	}
	return x.version
}

// LoadedAt is when the snapshot was built.
func (x *Index) LoadedAt() time.Time {
	if x == nil {
		return time.Time{}
	}
	return x.loadedAt
}

// Records returns the snapshot's records. Callers must not modify them.
func (x *Index) Records() []trails.Record {
	if x == nil {
		return nil
	}
	return x.records
}
