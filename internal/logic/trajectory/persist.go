package trajectory

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cjeanneret/PenGo/internal/logic/geometry"
	"github.com/fxamacker/cbor/v2"
)

// keyFormat names each path in a dump. Past 999999 paths the keys grow
// wider, so Load orders them by their number, not lexically.
const (
	keyPrefix = "path_"
	keyFormat = keyPrefix + "%06d"
)

var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Sort: cbor.SortCanonical}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Dump writes the trajectory as a CBOR map of N×2 float64 arrays keyed
// path_000001, path_000002, ...
func (t *Trajectory) Dump(w io.Writer) error {
	m := make(map[string][][2]float64, len(t.paths))
	for i, p := range t.paths {
		rows := make([][2]float64, len(p))
		for j, pt := range p {
			rows[j] = [2]float64{pt.X, pt.Y}
		}
		m[fmt.Sprintf(keyFormat, i+1)] = rows
	}
	if err := encMode.NewEncoder(w).Encode(m); err != nil {
		return fmt.Errorf("encode trajectory: %w", err)
	}
	return nil
}

// Load reads a trajectory written by Dump.
func Load(r io.Reader) (*Trajectory, error) {
	var m map[string][][]float64
	if err := cbor.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode trajectory: %w", err)
	}
	type entry struct {
		key string
		seq int
	}
	keys := make([]entry, 0, len(m))
	for k := range m {
		n, err := strconv.Atoi(strings.TrimPrefix(k, keyPrefix))
		if !strings.HasPrefix(k, keyPrefix) || err != nil || n < 0 {
			return nil, fmt.Errorf("decode trajectory: unexpected key %q", k)
		}
		keys = append(keys, entry{k, n})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].seq < keys[j].seq })

	t := &Trajectory{}
	for _, e := range keys {
		k := e.key
		rows := m[k]
		p := make(Path, len(rows))
		for i, row := range rows {
			if len(row) != 2 {
				return nil, fmt.Errorf("decode trajectory: %s row %d has %d columns, want 2", k, i, len(row))
			}
			p[i] = geometry.Point{X: row[0], Y: row[1]}
		}
		if !t.Append(p) {
			return nil, fmt.Errorf("decode trajectory: %s has %d points", k, len(p))
		}
	}
	return t, nil
}

// SaveFile writes the trajectory to path. The extension picks the format:
// .cbor for a lossless dump, .svg for vector interchange.
func (t *Trajectory) SaveFile(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cbor":
		return t.Dump(f)
	case ".svg":
		return t.WriteSVG(f)
	default:
		return fmt.Errorf("unknown trajectory format %q", filepath.Ext(path))
	}
}

// LoadFile reads a trajectory saved with SaveFile. SVG files are flattened
// with the default tolerance.
func LoadFile(path string) (*Trajectory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cbor":
		return Load(f)
	case ".svg":
		t, _, err := ReadSVG(f, SVGOptions{})
		return t, err
	default:
		return nil, errors.New("unknown trajectory format " + filepath.Ext(path))
	}
}
