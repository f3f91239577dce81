package datastore

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pkoukos/stockroom/internal/dataset"
	"github.com/pkoukos/stockroom/internal/metadata"
	"github.com/pkoukos/stockroom/internal/storage"
)

// ErrDataNotFound reports a read against a key with no stored value.
// Callers may treat it as "not yet fetched".
var ErrDataNotFound = errors.New("no data found for the given stock parameters")

// Butler orchestrates the identifier scopes, the metadata envelope and the
// storage adapter. It owns no state of its own; everything lives behind the
// adapter.
//
// Mutating operations are serialized through one coarse lock per Butler so
// concurrent job workers cannot interleave read-modify-write cycles. Reads
// do not take the lock.
type Butler struct {
	adapter storage.Adapter
	log     zerolog.Logger
	mu      sync.Mutex
}

// NewButler creates a data store façade over the given adapter.
func NewButler(adapter storage.Adapter, log zerolog.Logger) *Butler {
	return &Butler{
		adapter: adapter,
		log:     log.With().Str("component", "data_butler").Logger(),
	}
}

// DatasetSummary describes one stored dataset for listings.
type DatasetSummary struct {
	Key         string            `json:"key"`
	StockID     string            `json:"stock_id"`
	StartDate   string            `json:"start_date"`
	EndDate     string            `json:"end_date"`
	RecordCount int               `json:"record_count"`
	Metadata    metadata.Metadata `json:"metadata"`
}

// Save writes a table under the scope's key. With meta set, the table is
// wrapped in a metadata envelope; with meta nil, the raw JSON array is
// stored unwrapped, matching the pre-envelope convention.
func (b *Butler) Save(scope Scope, table dataset.Table, meta *metadata.Metadata) error {
	payload, err := encodeValue(table, meta)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.adapter.Save(scope.Key(), payload); err != nil {
		return fmt.Errorf("save %q: %w", scope.Key(), err)
	}
	b.log.Debug().Str("key", scope.Key()).Int("records", len(table)).Msg("Dataset saved")
	return nil
}

// Get returns the table stored under the scope's key, with metadata
// stripped and non-finite numerics normalized to null.
func (b *Butler) Get(scope Scope) (dataset.Table, error) {
	table, _, err := b.GetWithMetadata(scope)
	return table, err
}

// GetWithMetadata returns the stored table together with its provenance
// record. Legacy values without an envelope yield synthesized metadata.
func (b *Butler) GetWithMetadata(scope Scope) (dataset.Table, *metadata.Metadata, error) {
	raw, ok, err := b.adapter.Get(scope.Key())
	if err != nil {
		return nil, nil, fmt.Errorf("get %q: %w", scope.Key(), err)
	}
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrDataNotFound, scope.Key())
	}

	env := metadata.Unwrap(raw)
	if env == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrDataNotFound, scope.Key())
	}

	table, err := tableFromData(env.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("decode %q: %w", scope.Key(), err)
	}
	return table.NormalizeInfinities(), &env.Metadata, nil
}

// Exists reports whether a value is stored under the scope's key.
func (b *Butler) Exists(scope Scope) (bool, error) {
	ok, err := b.adapter.Exists(scope.Key())
	if err != nil {
		return false, fmt.Errorf("exists %q: %w", scope.Key(), err)
	}
	return ok, nil
}

// Update overwrites the value under the scope's key with the raw table.
// Whether the previous value carried an envelope is the caller's concern.
func (b *Butler) Update(scope Scope, table dataset.Table) error {
	return b.Save(scope, table, nil)
}

// Delete removes the value under the scope's key, reporting whether a
// value existed.
func (b *Butler) Delete(scope Scope) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	existed, err := b.adapter.Delete(scope.Key())
	if err != nil {
		return false, fmt.Errorf("delete %q: %w", scope.Key(), err)
	}
	return existed, nil
}

// groupField names the i-th (1-based) member of a grouped collection.
func groupField(i int) string { return fmt.Sprintf("stock:%d", i) }

// SaveGroup stores an ordered list of tables as one grouped collection,
// keyed stock:1..n.
func (b *Butler) SaveGroup(scope GroupScope, tables []dataset.Table) error {
	fields := make(map[string]string, len(tables))
	for i, table := range tables {
		encoded, err := table.ToJSON()
		if err != nil {
			return fmt.Errorf("encode group member %d: %w", i+1, err)
		}
		fields[groupField(i+1)] = string(encoded)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.adapter.SaveHash(scope.Key(), fields); err != nil {
		return fmt.Errorf("save group %q: %w", scope.Key(), err)
	}
	b.log.Debug().Str("key", scope.Key()).Int("members", len(tables)).Msg("Group saved")
	return nil
}

// GetGroup returns the member-name → table mapping stored at the group
// key. A missing key yields an empty map, not an error.
func (b *Butler) GetGroup(scope GroupScope) (map[string]dataset.Table, error) {
	fields, err := b.adapter.GetHash(scope.Key())
	if err != nil {
		return nil, fmt.Errorf("get group %q: %w", scope.Key(), err)
	}

	out := make(map[string]dataset.Table, len(fields))
	for field, raw := range fields {
		table, err := dataset.FromJSON([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode group member %q of %q: %w", field, scope.Key(), err)
		}
		out[field] = table
	}
	return out, nil
}

// DeleteGroup removes a grouped collection, reporting whether it existed.
func (b *Butler) DeleteGroup(scope GroupScope) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	existed, err := b.adapter.DeleteHash(scope.Key())
	if err != nil {
		return false, fmt.Errorf("delete group %q: %w", scope.Key(), err)
	}
	return existed, nil
}

// ListKeys returns every key under the given namespace prefix. A blank or
// whitespace-only prefix is rejected.
func (b *Butler) ListKeys(prefix string) ([]string, error) {
	if strings.TrimSpace(prefix) == "" {
		return nil, fmt.Errorf("prefix must not be blank")
	}
	keys, err := b.adapter.Keys(prefix + ":*")
	if err != nil {
		return nil, fmt.Errorf("list keys %q: %w", prefix, err)
	}
	return keys, nil
}

// ListAllDatasets enumerates stored datasets matching pattern. Keys that do
// not decompose into the 4-field single-table form, or whose values fail
// to load, are skipped rather than failing the listing.
func (b *Butler) ListAllDatasets(pattern string) ([]DatasetSummary, error) {
	keys, err := b.adapter.Keys(pattern)
	if err != nil {
		return nil, fmt.Errorf("list datasets %q: %w", pattern, err)
	}

	summaries := make([]DatasetSummary, 0, len(keys))
	for _, key := range keys {
		scope, ok := ParseSingleKey(key)
		if !ok {
			continue
		}
		table, meta, err := b.GetWithMetadata(scope)
		if err != nil {
			b.log.Debug().Str("key", key).Err(err).Msg("Skipping unreadable dataset")
			continue
		}
		summaries = append(summaries, DatasetSummary{
			Key:         key,
			StockID:     scope.StockID,
			StartDate:   scope.StartDate,
			EndDate:     scope.EndDate,
			RecordCount: len(table),
			Metadata:    *meta,
		})
	}
	return summaries, nil
}

// encodeValue serializes a table, enveloped when metadata is supplied.
func encodeValue(table dataset.Table, meta *metadata.Metadata) (string, error) {
	if meta == nil {
		raw, err := table.ToJSON()
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	return metadata.Wrap(table.NormalizeInfinities(), meta).Encode()
}

// tableFromData coerces the envelope's data payload back into a Table.
func tableFromData(data any) (dataset.Table, error) {
	switch v := data.(type) {
	case nil:
		return dataset.Table{}, nil
	case dataset.Table:
		return v, nil
	case []any:
		table := make(dataset.Table, 0, len(v))
		for i, item := range v {
			row, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("record %d is not an object (%T)", i, item)
			}
			table = append(table, dataset.Row(row))
		}
		return table, nil
	default:
		// Rewrap anything else through JSON; covers map payloads stored by
		// legacy writers.
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var table dataset.Table
		if err := json.Unmarshal(raw, &table); err != nil {
			return nil, fmt.Errorf("payload is not tabular: %w", err)
		}
		return table, nil
	}
}
