package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alejandrodnm/squarebot/internal/domain"
)

// El estado del pool se guarda como un documento JSON versionado: el store es
// el único dueño y lo reescribe entero en cada commit. Las columnas sueltas
// (locked, settled, start_time) existen solo para filtrar sin decodificar.

func encodePool(p domain.Pool) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("storage.encodePool %s: %w", p.ID, err)
	}
	return string(b), nil
}

func decodePool(state string, version int64) (domain.Pool, error) {
	var p domain.Pool
	if err := json.Unmarshal([]byte(state), &p); err != nil {
		return domain.Pool{}, fmt.Errorf("storage.decodePool: %w", err)
	}
	p.Version = version
	return p, nil
}

func encodePayload(payload map[string]any) (string, error) {
	if len(payload) == 0 {
		return "", nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("storage.encodePayload: %w", err)
	}
	return string(b), nil
}

func decodePayload(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return map[string]any{"raw": raw}
	}
	return m
}

// nullable convierte "" a NULL para que UNIQUE(dedupe_key) ignore eventos sin clave.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
