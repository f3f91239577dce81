// Package datastore provides the DataIOButler façade over the storage
// adapter: scope-addressed save/get/update/delete for single tables,
// grouped collections, and dataset listings with provenance metadata.
package datastore

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNoMatchingStrategy reports a parameter bundle that maps to no known
// key shape. This is a caller programming error, not a retryable failure.
var ErrNoMatchingStrategy = errors.New("no matching identifier strategy for parameter set")

// Scope identifies one stored entity. Each variant produces a stable key:
// the key is fully determined by the scope's fields, independent of how the
// scope was constructed.
type Scope interface {
	// Key returns the storage key for this scope.
	Key() string
}

// SingleScope addresses one stock table: {prefix}:{stock_id}:{start}:{end}.
type SingleScope struct {
	Prefix    string
	StockID   string
	StartDate string
	EndDate   string
}

func (s SingleScope) Key() string {
	return fmt.Sprintf("%s:%s:%s:%s", s.Prefix, s.StockID, s.StartDate, s.EndDate)
}

// SliceScope addresses a named slice of a stock table, suffixing the
// single-table key with a slice identifier.
type SliceScope struct {
	SingleScope
	PostID string
}

func (s SliceScope) Key() string {
	return fmt.Sprintf("%s:%s", s.SingleScope.Key(), s.PostID)
}

// GroupScope addresses a grouped collection of tables:
// {group_id}:{start}:{end}. The value is a hash of member name → table.
type GroupScope struct {
	GroupID   string
	StartDate string
	EndDate   string
}

func (s GroupScope) Key() string {
	return fmt.Sprintf("%s:%s:%s", s.GroupID, s.StartDate, s.EndDate)
}

// ResolveScope maps a raw named-parameter bundle (as arriving at the HTTP
// boundary) to a typed scope. Selection depends only on the set of
// parameter names present, never their order or values. An unrecognized
// set fails with ErrNoMatchingStrategy.
func ResolveScope(params map[string]string) (Scope, error) {
	switch signature(params) {
	case "end_date,prefix,start_date,stock_id":
		return SingleScope{
			Prefix:    params["prefix"],
			StockID:   params["stock_id"],
			StartDate: params["start_date"],
			EndDate:   params["end_date"],
		}, nil
	case "end_date,post_id,prefix,start_date,stock_id":
		return SliceScope{
			SingleScope: SingleScope{
				Prefix:    params["prefix"],
				StockID:   params["stock_id"],
				StartDate: params["start_date"],
				EndDate:   params["end_date"],
			},
			PostID: params["post_id"],
		}, nil
	case "end_date,group_id,start_date":
		return GroupScope{
			GroupID:   params["group_id"],
			StartDate: params["start_date"],
			EndDate:   params["end_date"],
		}, nil
	default:
		return nil, fmt.Errorf("%w: {%s}", ErrNoMatchingStrategy, signature(params))
	}
}

// signature is the canonical (order-independent) form of a parameter set.
func signature(params map[string]string) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// ParseSingleKey decomposes a 4-field single-table key. It reports false
// for keys in any other shape.
func ParseSingleKey(key string) (SingleScope, bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 4 {
		return SingleScope{}, false
	}
	for _, part := range parts {
		if part == "" {
			return SingleScope{}, false
		}
	}
	return SingleScope{
		Prefix:    parts[0],
		StockID:   parts[1],
		StartDate: parts[2],
		EndDate:   parts[3],
	}, true
}
