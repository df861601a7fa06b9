package stores

import (
	"maps"
	"sort"

	"github.com/systmms/secretxfer/pkg/secretstore"
)

// splitContentTypeTag turns a store's tag set into record options, lifting
// the reserved content-type tag into the record content type.
func splitContentTypeTag(tags map[string]string) []secretstore.RecordOption {
	var opts []secretstore.RecordOption
	if ct, ok := tags[contentTypeTag]; ok {
		opts = append(opts, secretstore.WithContentType(ct))
		tags = maps.Clone(tags)
		delete(tags, contentTypeTag)
	}
	return append(opts, secretstore.WithTags(tags))
}

// joinContentTypeTag returns rec's tags with the content type folded into
// the reserved tag.
func joinContentTypeTag(rec secretstore.Record) map[string]string {
	tags := rec.Tags()
	if ct, ok := rec.ContentType(); ok {
		tags[contentTypeTag] = ct
	}
	return tags
}

// recordMetadata returns options carrying rec's content type and tags.
func recordMetadata(rec secretstore.Record) []secretstore.RecordOption {
	opts := []secretstore.RecordOption{secretstore.WithTags(rec.Tags())}
	if ct, ok := rec.ContentType(); ok {
		opts = append(opts, secretstore.WithContentType(ct))
	}
	return opts
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
