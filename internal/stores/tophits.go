package stores

import (
	"encoding/json"
	"io"
	"os"

	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/apperr"
)

// TophitsStore holds the precomputed top-associations list, loaded once
// from top_hits_1k.json and served back verbatim.
type TophitsStore struct {
	data json.RawMessage
}

// LoadTophitsStore reads top_hits_1k.json into memory.
func LoadTophitsStore(path string) (*TophitsStore, error) {
	const op = apperr.Op("stores.LoadTophitsStore")
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.WrapMsg(op, "opening top hits file", err)
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, apperr.WrapMsg(op, "reading top hits file", err)
	}
	var probe json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, apperr.WrapMsg(op, "decoding top hits file", err)
	}
	return &TophitsStore{data: probe}, nil
}

// TopHits returns the raw top-hits JSON payload.
func (t *TophitsStore) TopHits() json.RawMessage {
	return t.data
}
