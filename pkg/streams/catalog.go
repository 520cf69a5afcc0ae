package streams

import (
	"fmt"
	"strings"
)

// Stream names.
const (
	Users           = "users"
	SMSSessions     = "sms_sessions"
	CallHistory     = "call_history"
	CallHistoryPath = "call_history_path"
)

// catalog is ordered so that every parent precedes its children.
var catalog = []Descriptor{
	{
		Name:        Users,
		Path:        "/users",
		RecordsPath: "users",
		PrimaryKeys: []string{"id"},
		Paging:      PagingToken,
		PageSize:    100,
		schemaFile:  "users.json",
	},
	{
		Name:           SMSSessions,
		Path:           "/sms/sessions",
		RecordsPath:    "sms_sessions",
		PrimaryKeys:    []string{"session_id"},
		ReplicationKey: "last_access_time",
		Paging:         PagingTokenWindow,
		PageSize:       100,
		HistoryMonths:  6,
		schemaFile:     "sms_sessions.json",
	},
	{
		Name:           CallHistory,
		Path:           "/call_history",
		RecordsPath:    "call_logs",
		PrimaryKeys:    []string{"id"},
		ReplicationKey: "start_time",
		Paging:         PagingPageCountWindow,
		PageSize:       300,
		HistoryMonths:  6,
		ChildContext:   callContext,
		schemaFile:     "call_history.json",
	},
	{
		Name:        CallHistoryPath,
		Path:        "/call_history/{id}",
		RecordsPath: WholeBody,
		PrimaryKeys: []string{"id"},
		Parent:      CallHistory,
		Paging:      PagingSingle,
		PostProcess: trimResultReason,
		Cacheable:   true,
		schemaFile:  "call_history_path.json",
	},
}

// All returns every registered stream, parents before children.
func All() []Descriptor {
	out := make([]Descriptor, len(catalog))
	copy(out, catalog)
	return out
}

// Names returns the registered stream names in sync order.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for _, d := range catalog {
		names = append(names, d.Name)
	}
	return names
}

// Lookup finds a stream by name.
func Lookup(name string) (Descriptor, bool) {
	for _, d := range catalog {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Children returns the streams driven by parent.
func Children(parent string) []Descriptor {
	var out []Descriptor
	for _, d := range catalog {
		if d.Parent == parent {
			out = append(out, d)
		}
	}
	return out
}

// Select resolves the named streams in sync order. Selecting a child also
// selects its parent. No names selects everything.
func Select(names []string) ([]Descriptor, error) {
	if len(names) == 0 {
		return All(), nil
	}

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		d, ok := Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownStream, name, strings.Join(Names(), ", "))
		}
		wanted[d.Name] = true
		for d.Parent != "" {
			wanted[d.Parent] = true
			d, _ = Lookup(d.Parent)
		}
	}

	var out []Descriptor
	for _, d := range catalog {
		if wanted[d.Name] {
			out = append(out, d)
		}
	}
	return out, nil
}

func callContext(r Record) (map[string]string, bool) {
	id := r.String("id")
	if id == "" {
		return nil, false
	}
	return map[string]string{"id": id}, true
}

// trimResultReason strips the padding the API leaves around result_reason.
// Empty or missing values become null.
func trimResultReason(r Record) Record {
	reason := strings.TrimSpace(r.String("result_reason"))
	if reason == "" {
		r["result_reason"] = nil
	} else {
		r["result_reason"] = reason
	}
	return r
}
