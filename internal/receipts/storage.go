package receipts

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Storage persists receipt files under <baseDir>/<expense_id>/ with
// timestamp-prefixed sanitized names. The ledger only stores the
// resulting {filename, url} reference.
type Storage struct {
	baseDir string
	now     func() time.Time
}

func NewStorage(baseDir string) *Storage {
	return &Storage{baseDir: baseDir, now: time.Now}
}

// sanitizeFilename keeps names path and shell safe.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}

// Save writes the content and returns the stored name and serving URL.
func (s *Storage) Save(expenseID, filename string, content io.Reader) (string, string, error) {
	dir := filepath.Join(s.baseDir, expenseID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create upload dir: %w", err)
	}

	storedName := fmt.Sprintf("%d_%s", s.now().Unix(), sanitizeFilename(filename))
	path := filepath.Join(dir, storedName)

	file, err := os.Create(path)
	if err != nil {
		return "", "", fmt.Errorf("create upload file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, content); err != nil {
		os.Remove(path)
		return "", "", fmt.Errorf("write upload file: %w", err)
	}

	url := "/uploads/" + expenseID + "/" + storedName
	return storedName, url, nil
}

// Read returns the stored bytes for pushing upstream.
func (s *Storage) Read(expenseID, filename string) ([]byte, error) {
	path := filepath.Join(s.baseDir, expenseID, sanitizeFilename(filename))
	return os.ReadFile(path)
}

// Dir returns the storage root, for static file serving.
func (s *Storage) Dir() string {
	return s.baseDir
}
