package background

import (
	"sort"
	"sync"

	"modelmgr/pkg/types"
)

// AllDownloads is the reserved wildcard id: handlers registered under it
// receive events for every download.
const AllDownloads int64 = -1

// Handler receives a snapshot of a download's state.
type Handler func(types.BackgroundDownloadInfo)

type eventKind int

const (
	kindProgress eventKind = iota
	kindComplete
	kindError
)

// registry is a multimap of download id to handlers, with a separate
// wildcard bucket. Dispatch calls id-specific handlers before global ones.
type registry struct {
	mu       sync.Mutex
	next     int
	handlers map[eventKind]map[int64]map[int]Handler
}

func newRegistry() *registry {
	return &registry{handlers: make(map[eventKind]map[int64]map[int]Handler)}
}

func (r *registry) subscribe(kind eventKind, id int64, fn Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	byID, ok := r.handlers[kind]
	if !ok {
		byID = make(map[int64]map[int]Handler)
		r.handlers[kind] = byID
	}
	bucket, ok := byID[id]
	if !ok {
		bucket = make(map[int]Handler)
		byID[id] = bucket
	}
	token := r.next
	r.next++
	bucket[token] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if b, ok := r.handlers[kind][id]; ok {
			delete(b, token)
		}
	}
}

func (r *registry) dispatch(kind eventKind, info types.BackgroundDownloadInfo) {
	r.mu.Lock()
	var fns []Handler
	if byID, ok := r.handlers[kind]; ok {
		for _, bucket := range []map[int]Handler{byID[info.ID], byID[AllDownloads]} {
			tokens := make([]int, 0, len(bucket))
			for t := range bucket {
				tokens = append(tokens, t)
			}
			// subscription order within a bucket
			sort.Ints(tokens)
			for _, t := range tokens {
				fns = append(fns, bucket[t])
			}
		}
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn(info)
	}
}
