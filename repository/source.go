package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/TimurManjosov/growthkit/payload"
	"github.com/cespare/xxhash/v2"
)

// Fetched is the result of one source fetch. A nil Payload means the
// remote content has not changed since the supplied version token.
type Fetched struct {
	Payload *payload.Payload
	ETag    string
}

// Source is the transport collaborator: it supplies the latest payload on
// demand. Implementations decide how (HTTP polling, files, streams); the
// repository only asks for "the latest payload, unless unchanged".
type Source interface {
	Fetch(ctx context.Context, etag string) (*Fetched, error)
}

// Fingerprint computes a weak version token from payload content, for
// sources that do not supply one.
func Fingerprint(p *payload.Payload) string {
	blob, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return fmt.Sprintf(`W/"%016x"`, xxhash.Sum64(blob))
}

// StaticSource serves a fixed payload, for tests and pre-fetched injection.
type StaticSource struct {
	Payload *payload.Payload
}

func (s *StaticSource) Fetch(context.Context, string) (*Fetched, error) {
	return &Fetched{Payload: s.Payload}, nil
}
