package transfer

import (
	"fmt"
	"strings"

	"github.com/systmms/secretxfer/pkg/secretstore"
)

// Request describes one transfer.
type Request struct {
	SourceName      string
	DestinationName string
	CopyTags        bool
	CopyContentType bool
}

// Validate reports whether both names are set.
func (r Request) Validate() error {
	var missing []string
	if strings.TrimSpace(r.SourceName) == "" {
		missing = append(missing, "source name")
	}
	if strings.TrimSpace(r.DestinationName) == "" {
		missing = append(missing, "destination name")
	}
	if len(missing) > 0 {
		return fmt.Errorf("invalid transfer request: missing %s", strings.Join(missing, " and "))
	}
	return nil
}

// DeriveRecord builds the destination record from a fetched source record.
// The value is copied as is; content type and tags follow the request flags.
func DeriveRecord(req Request, src secretstore.Record) secretstore.Record {
	var opts []secretstore.RecordOption
	if req.CopyContentType {
		if ct, ok := src.ContentType(); ok {
			opts = append(opts, secretstore.WithContentType(ct))
		}
	}
	if req.CopyTags && src.HasTags() {
		opts = append(opts, secretstore.WithTags(src.Tags()))
	}
	return secretstore.NewRecord(req.DestinationName, src.Value(), opts...)
}

// withValue returns rec with its value replaced.
func withValue(rec secretstore.Record, value string) secretstore.Record {
	opts := []secretstore.RecordOption{
		secretstore.WithTags(rec.Tags()),
		secretstore.WithVersion(rec.Version()),
	}
	if ct, ok := rec.ContentType(); ok {
		opts = append(opts, secretstore.WithContentType(ct))
	}
	return secretstore.NewRecord(rec.Name(), value, opts...)
}
