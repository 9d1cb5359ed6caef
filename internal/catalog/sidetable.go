package catalog

import (
	"strconv"

	"modelmgr/internal/store"
	"modelmgr/pkg/types"
)

// SideTable persists the {transport id -> logical metadata} mapping the
// durable transport cannot retain across process restarts. It is written by
// whoever starts a background download and consumed by Reconcile.
type SideTable struct {
	st *store.Store
}

// NewSideTable wraps the key-value store.
func NewSideTable(st *store.Store) *SideTable { return &SideTable{st: st} }

func (t *SideTable) load() (map[string]types.DownloadMeta, error) {
	m := map[string]types.DownloadMeta{}
	if _, err := t.st.GetJSON(store.KeySideTable, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Put records metadata for a transport id, replacing any previous record.
func (t *SideTable) Put(id int64, meta types.DownloadMeta) error {
	m, err := t.load()
	if err != nil {
		return err
	}
	m[key(id)] = meta
	return t.st.PutJSON(store.KeySideTable, m)
}

// Get returns the metadata for id, if any.
func (t *SideTable) Get(id int64) (types.DownloadMeta, bool, error) {
	m, err := t.load()
	if err != nil {
		return types.DownloadMeta{}, false, err
	}
	meta, ok := m[key(id)]
	return meta, ok, nil
}

// Clear removes the record for id. Clearing an absent id is a no-op, which
// keeps cancellation cleanup idempotent.
func (t *SideTable) Clear(id int64) error {
	m, err := t.load()
	if err != nil {
		return err
	}
	if _, ok := m[key(id)]; !ok {
		return nil
	}
	delete(m, key(id))
	return t.st.PutJSON(store.KeySideTable, m)
}

// All returns a copy of the whole table.
func (t *SideTable) All() (map[int64]types.DownloadMeta, error) {
	m, err := t.load()
	if err != nil {
		return nil, err
	}
	out := make(map[int64]types.DownloadMeta, len(m))
	for k, v := range m {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		out[id] = v
	}
	return out, nil
}

func key(id int64) string { return strconv.FormatInt(id, 10) }
