package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/san-kum/trinity/internal/trinity"
)

// Store exports rendered visualizations to disk, one directory per render.
type Store struct {
	baseDir string
	now     func() time.Time
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir, now: time.Now}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

type RenderMetadata struct {
	ID        string             `json:"id"`
	Seq       uint64             `json:"seq"`
	Preset    string             `json:"preset"`
	Damping   *float64           `json:"damping,omitempty"`
	Status    string             `json:"status"`
	Timestamp time.Time          `json:"timestamp"`
	ImageFile string             `json:"image_file,omitempty"`
	ImageURI  string             `json:"image_uri,omitempty"`
	Metrics   map[string]float64 `json:"metrics"`
}

var extensions = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/gif":     ".gif",
	"image/svg+xml": ".svg",
	"image/webp":    ".webp",
}

// Save writes res, rendered for req, and returns the render id.
func (s *Store) Save(req trinity.Request, res *trinity.Result) (string, error) {
	if res == nil {
		return "", errors.New("storage: nil result")
	}
	now := s.now()
	id := fmt.Sprintf("%s_%d_%d", strings.ToLower(req.Snapshot.Preset().String()), req.Seq, now.UnixMilli())
	dir := filepath.Join(s.baseDir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	meta := RenderMetadata{
		ID:        id,
		Seq:       req.Seq,
		Preset:    req.Snapshot.Preset().String(),
		Status:    res.Status,
		Timestamp: now,
		ImageURI:  res.Image.URI,
		Metrics:   res.Metrics,
	}
	if d, ok := req.Snapshot.Damping(); ok {
		meta.Damping = &d
	}

	if len(res.Image.Data) > 0 {
		ext, ok := extensions[res.Image.MIME]
		if !ok {
			ext = ".bin"
		}
		meta.ImageFile = "image" + ext
		if err := os.WriteFile(filepath.Join(dir, meta.ImageFile), res.Image.Data, 0644); err != nil {
			return "", err
		}
	}

	if err := os.WriteFile(filepath.Join(dir, "diagnostics.txt"), []byte(res.DiagnosticText+"\n"), 0644); err != nil {
		return "", err
	}
	if err := writeMetrics(filepath.Join(dir, "metrics.csv"), res.Metrics); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(dir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}
	return id, nil
}

func writeMetrics(path string, metrics map[string]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	w := csv.NewWriter(f)
	if err := w.Write([]string{"metric", "value"}); err != nil {
		return err
	}
	for _, name := range names {
		if err := w.Write([]string{name, strconv.FormatFloat(metrics[name], 'f', 6, 64)}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns saved renders, oldest first.
func (s *Store) List() ([]RenderMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RenderMetadata{}, nil
		}
		return nil, err
	}

	renders := make([]RenderMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		renders = append(renders, *meta)
	}
	sort.Slice(renders, func(i, j int) bool { return renders[i].Timestamp.Before(renders[j].Timestamp) })
	return renders, nil
}

func (s *Store) Load(id string) (*RenderMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, id, "metadata.json"))
	if err != nil {
		return nil, err
	}
	var meta RenderMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadImage returns the stored image bytes of a render.
func (s *Store) LoadImage(id string) ([]byte, error) {
	meta, err := s.Load(id)
	if err != nil {
		return nil, err
	}
	if meta.ImageFile == "" {
		return nil, fmt.Errorf("storage: render %s has no inline image", id)
	}
	return os.ReadFile(filepath.Join(s.baseDir, id, meta.ImageFile))
}
