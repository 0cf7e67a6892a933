package storage

// states.go — recorded-state store: un archivo JSONL por partido,
// agrupado por deporte ({root}/{sport}/{game_id}.jsonl). Append-only en
// escritura; la lectura devuelve la secuencia en el orden original y
// valida que los timestamps crezcan estrictamente.

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// StateWriter implementa ports.StateWriter sobre un archivo JSONL.
type StateWriter struct {
	path  string
	f     *os.File
	w     *bufio.Writer
	count int
}

// NewStateWriter abre (o crea) el archivo del partido en modo append.
func NewStateWriter(root, sport, gameID string) (*StateWriter, error) {
	dir := filepath.Join(root, sport)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage.NewStateWriter: mkdir %q: %w", dir, err)
	}
	path := filepath.Join(dir, gameID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage.NewStateWriter: open %q: %w", path, err)
	}
	return &StateWriter{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

// Append escribe un estado como una línea JSON y hace flush inmediato:
// si el worker muere, lo ya emitido queda en disco.
func (sw *StateWriter) Append(_ context.Context, state domain.MergedState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("storage.Append: marshal: %w", err)
	}
	if _, err := sw.w.Write(data); err != nil {
		return fmt.Errorf("storage.Append: write %q: %w", sw.path, err)
	}
	if err := sw.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("storage.Append: write %q: %w", sw.path, err)
	}
	if err := sw.w.Flush(); err != nil {
		return fmt.Errorf("storage.Append: flush %q: %w", sw.path, err)
	}
	sw.count++
	return nil
}

// Count devuelve cuántos estados se escribieron en esta sesión.
func (sw *StateWriter) Count() int { return sw.count }

// Close cierra el archivo.
func (sw *StateWriter) Close() error {
	if err := sw.w.Flush(); err != nil {
		sw.f.Close()
		return fmt.Errorf("storage.Close: flush %q: %w", sw.path, err)
	}
	return sw.f.Close()
}

// StateDir implementa ports.StateSource sobre el mismo layout de disco.
type StateDir struct {
	root string
}

// NewStateDir crea la fuente de lectura sobre el directorio raíz.
func NewStateDir(root string) *StateDir {
	return &StateDir{root: root}
}

// Games devuelve los game IDs grabados para un deporte, ordenados.
func (sd *StateDir) Games(_ context.Context, sport string) ([]string, error) {
	dir := filepath.Join(sd.root, sport)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage.Games: read %q: %w", dir, err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".jsonl"))
	}
	sort.Strings(ids)
	return ids, nil
}

// Load lee la secuencia completa de un partido. Una línea malformada o
// un timestamp fuera de orden es un error: ese partido no se replayea.
func (sd *StateDir) Load(_ context.Context, sport, gameID string) ([]domain.MergedState, error) {
	path := filepath.Join(sd.root, sport, gameID+".jsonl")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("storage.Load: open %q: %w", path, err)
	}
	defer f.Close()

	var states []domain.MergedState
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var st domain.MergedState
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			return nil, fmt.Errorf("storage.Load: %s line %d: %w", path, line, err)
		}
		if st.GameID == "" {
			st.GameID = gameID
		}
		if n := len(states); n > 0 && !st.Timestamp.After(states[n-1].Timestamp) {
			return nil, fmt.Errorf("storage.Load: %s line %d: timestamp not increasing", path, line)
		}
		states = append(states, st)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("storage.Load: scan %q: %w", path, err)
	}
	return states, nil
}
