package secretstore

import (
	"fmt"
	"maps"
	"sort"
	"strings"
)

// Record is a single secret as held by a store.
//
// The zero value is an empty record with no name. Use NewRecord to build one.
type Record struct {
	name           string
	value          string
	contentType    string
	hasContentType bool
	tags           map[string]string
	version        string
}

// RecordOption configures optional Record fields.
type RecordOption func(*Record)

// WithContentType sets the record content type.
func WithContentType(contentType string) RecordOption {
	return func(r *Record) {
		r.contentType = contentType
		r.hasContentType = true
	}
}

// WithTags sets the record tags. The map is copied.
func WithTags(tags map[string]string) RecordOption {
	return func(r *Record) {
		if len(tags) == 0 {
			r.tags = nil
			return
		}
		r.tags = maps.Clone(tags)
	}
}

// WithVersion sets the store-assigned version identifier.
func WithVersion(version string) RecordOption {
	return func(r *Record) {
		r.version = version
	}
}

// NewRecord builds an immutable Record.
func NewRecord(name, value string, opts ...RecordOption) Record {
	r := Record{
		name:  name,
		value: value,
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// Name returns the secret name.
func (r Record) Name() string { return r.name }

// Value returns the secret value. Never log it.
func (r Record) Value() string { return r.value }

// ContentType returns the content type and whether one is set.
func (r Record) ContentType() (string, bool) { return r.contentType, r.hasContentType }

// Version returns the store-assigned version, or "" when unknown.
func (r Record) Version() string { return r.version }

// Tags returns a copy of the record tags. The result is never nil.
func (r Record) Tags() map[string]string {
	if len(r.tags) == 0 {
		return map[string]string{}
	}
	return maps.Clone(r.tags)
}

// HasTags reports whether the record carries at least one tag.
func (r Record) HasTags() bool { return len(r.tags) > 0 }

// Equal reports whether two records hold the same value, content type and tags.
// Name and version are deliberately ignored: a copy under a new name, or a
// rewrite producing a new version, is still the same secret.
func (r Record) Equal(other Record) bool {
	if r.value != other.value {
		return false
	}
	if r.hasContentType != other.hasContentType || r.contentType != other.contentType {
		return false
	}
	return maps.Equal(r.tags, other.tags)
}

// String implements fmt.Stringer without exposing the value.
func (r Record) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Record{name=%q value=[REDACTED]", r.name)
	if r.hasContentType {
		fmt.Fprintf(&b, " contentType=%q", r.contentType)
	}
	if len(r.tags) > 0 {
		keys := make([]string, 0, len(r.tags))
		for k := range r.tags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(&b, " tags=%v", keys)
	}
	if r.version != "" {
		fmt.Fprintf(&b, " version=%q", r.version)
	}
	b.WriteString("}")
	return b.String()
}

// GoString implements fmt.GoStringer so %#v is redacted as well.
func (r Record) GoString() string { return r.String() }
