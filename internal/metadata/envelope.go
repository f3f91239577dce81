package metadata

import (
	"encoding/json"
)

// Envelope is the persisted shape of a single-table value: the row records
// plus their provenance.
type Envelope struct {
	Data     any      `json:"data"`
	Metadata Metadata `json:"metadata"`
}

// Wrap pairs data with metadata. A nil metadata defaults to a manual-fetch
// record.
func Wrap(data any, meta *Metadata) Envelope {
	if meta == nil {
		m := CreateDefault(SourceManualFetch)
		meta = &m
	}
	return Envelope{Data: data, Metadata: *meta}
}

// Unwrap classifies a stored value into an Envelope. The classification is
// total:
//
//   - JSON envelope object ({"data":..., "metadata":...}) → parsed through
//   - JSON array → legacy raw records, metadata synthesized as "unknown"
//   - JSON string → decoded and re-classified (doubly encoded envelopes)
//   - any other JSON value, or a value that is not JSON at all → treated
//     wholesale as data with synthesized "unknown" metadata
//   - empty input → nil envelope
func Unwrap(stored string) *Envelope {
	if stored == "" {
		return nil
	}

	var decoded any
	if err := json.Unmarshal([]byte(stored), &decoded); err != nil {
		// Not JSON: the raw string is the data.
		return &Envelope{Data: stored, Metadata: CreateDefault(SourceUnknown)}
	}
	return classify(decoded, stored)
}

func classify(decoded any, raw string) *Envelope {
	switch v := decoded.(type) {
	case nil:
		return nil
	case string:
		// A JSON-encoded string may itself hold an encoded envelope.
		return Unwrap(v)
	case []any:
		return &Envelope{Data: v, Metadata: CreateDefault(SourceUnknown)}
	case map[string]any:
		if _, hasData := v["data"]; hasData {
			if _, hasMeta := v["metadata"]; hasMeta {
				var env Envelope
				if err := json.Unmarshal([]byte(raw), &env); err == nil {
					return &env
				}
				// Envelope-shaped but the metadata does not parse; fall
				// through and keep the whole value as data.
			}
		}
		return &Envelope{Data: v, Metadata: CreateDefault(SourceUnknown)}
	default:
		return &Envelope{Data: v, Metadata: CreateDefault(SourceUnknown)}
	}
}

// Encode serializes the envelope for storage.
func (e Envelope) Encode() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
