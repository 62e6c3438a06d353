// Package query is a thin param-builder and result page for the
// search operation storage.HTTPStorage.Search exposes over
// POST /v1/storage/records/search. It deliberately does not implement a
// search engine — no query execution or pagination loop lives here,
// only the JSON shape the server consumes and hands back, mirrored
// from search_params.py/search_range.py/search_result.py.
package query

import (
	"encoding/json"
	"time"

	"github.com/tozny/e3db-go/record"
)

// Condition joins the terms in Params.
type Condition string

const (
	ConditionOR  Condition = "OR"
	ConditionAND Condition = "AND"
)

// Strategy controls how string terms are matched.
type Strategy string

const (
	StrategyExact    Strategy = "EXACT"
	StrategyFuzzy    Strategy = "FUZZY"
	StrategyWildcard Strategy = "WILDCARD"
	StrategyRegexp   Strategy = "REGEXP"
)

// RangeKey selects which record timestamp a Range bounds.
type RangeKey string

const (
	RangeKeyCreated  RangeKey = "CREATED"
	RangeKeyModified RangeKey = "MODIFIED"
)

// Range bounds a query by created/modified time, mirrored from
// search_range.py's Range (minus its timezone-offset bookkeeping,
// which Go's time.Time carries natively).
type Range struct {
	Key   RangeKey
	Start time.Time
	End   time.Time
}

// terms is the wire shape of Params.to_json()'s "terms" object.
type terms struct {
	WriterIDs    []string          `json:"writer_ids"`
	UserIDs      []string          `json:"user_ids"`
	RecordIDs    []string          `json:"record_ids"`
	ContentTypes []string          `json:"content_types"`
	Keys         []string          `json:"keys"`
	Values       []string          `json:"values"`
	Tags         map[string]string `json:"tags,omitempty"`
}

// wireRange is the wire shape of Range.to_json().
type wireRange struct {
	RangeKey string `json:"range_key,omitempty"`
	Before   string `json:"before,omitempty"`
	After    string `json:"after,omitempty"`
}

// wire is the JSON document PUT/POSTed to the server's query endpoint.
type wire struct {
	Condition string    `json:"condition"`
	Strategy  string    `json:"strategy"`
	Terms     terms     `json:"terms"`
	Range     *wireRange `json:"range,omitempty"`
	NextToken int       `json:"after_index,omitempty"`
	Count     int       `json:"count,omitempty"`
}

// Params builds a storage.HTTPStorage list/search request.
type Params struct {
	Condition    Condition
	Strategy     Strategy
	WriterIDs    []string
	UserIDs      []string
	RecordIDs    []string
	ContentTypes []string
	Keys         []string
	Values       []string
	Plain        map[string]string
	Range        *Range
	NextToken    int
	Count        int
}

// New returns Params with the e3db-python defaults: condition OR,
// strategy EXACT.
func New() Params {
	return Params{Condition: ConditionOR, Strategy: StrategyExact}
}

// MarshalJSON renders Params the way search_params.py's to_json does,
// nil slices becoming empty JSON arrays rather than null.
func (p Params) MarshalJSON() ([]byte, error) {
	nonNil := func(s []string) []string {
		if s == nil {
			return []string{}
		}
		return s
	}

	w := wire{
		Condition: string(p.Condition),
		Strategy:  string(p.Strategy),
		Terms: terms{
			WriterIDs:    nonNil(p.WriterIDs),
			UserIDs:      nonNil(p.UserIDs),
			RecordIDs:    nonNil(p.RecordIDs),
			ContentTypes: nonNil(p.ContentTypes),
			Keys:         nonNil(p.Keys),
			Values:       nonNil(p.Values),
			Tags:         p.Plain,
		},
		NextToken: p.NextToken,
		Count:     p.Count,
	}
	if p.Range != nil {
		w.Range = &wireRange{
			RangeKey: string(p.Range.Key),
			Before:   formatRangeTime(p.Range.End),
			After:    formatRangeTime(p.Range.Start),
		}
	}
	return json.Marshal(w)
}

func formatRangeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// Result is a page of list/search results, mirrored from
// search_result.py's SearchResult: the records plus enough state
// (NextToken, TotalResults) to request the following page by setting
// Params.NextToken and re-issuing the call.
type Result struct {
	Records      []record.Record `json:"results"`
	NextToken    int             `json:"last_index"`
	TotalResults int             `json:"total_results"`
}
