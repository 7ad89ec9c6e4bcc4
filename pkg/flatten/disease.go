package flatten

import "github.com/clidram/medrag/pkg/connector"

// diseaseFlattener renders an ICD code-list entry. These are tiny fixed
// vocabulary texts and always come out as a single chunk.
type diseaseFlattener struct {
	cfg Config
}

func (f *diseaseFlattener) Flatten(rec connector.Record) ([]Chunk, error) {
	var d doc
	d.addf("Disease: %s", rec.Str("name"))
	if code := rec.Str("code"); code != "" {
		d.addf("(ICD: %s)", code)
	}
	if long := rec.Str("long_name"); long != "" {
		d.addf("\nFull Name: %s", long)
	}

	meta := map[string]any{
		"source_kind":  connector.KindDisease,
		"source_id":    rec.Int64("id"),
		"disease_code": rec.Str("code"),
		"disease_name": rec.Str("name"),
		"indexed_at":   indexedAt(),
	}

	return finalize(f.cfg, d.String(), meta), nil
}
