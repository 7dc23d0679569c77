package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"time"
)

// jsonFile is the shared persistence primitive. Every store document on disk
// goes through it: tolerant loads (missing file, whitespace-only file, backup
// fallback) and atomic saves (unique temp file renamed over the primary, with
// an optional .bak copy taken first).
type jsonFile struct {
	path   string
	backup string // empty disables backup-on-write and backup fallback
	log    *slog.Logger
}

func newJSONFile(path string, withBackup bool, log *slog.Logger) *jsonFile {
	if log == nil {
		log = slog.Default()
	}
	f := &jsonFile{path: path, log: log}
	if withBackup {
		f.backup = path + ".bak"
	}
	return f
}

// Load fills out from the primary file, falling back to the .bak sibling when
// the primary is unreadable or corrupt. A missing or whitespace-only file
// leaves out at its zero value and is not an error.
func (f *jsonFile) Load(out any) error {
	_, err := readJSON(f.path, out)
	if err == nil {
		return nil
	}
	if f.backup == "" {
		return fmt.Errorf("load %s: %w", f.path, err)
	}
	f.log.Warn("primary store file unreadable, trying backup", "path", f.path, "error", err)
	if v := reflect.ValueOf(out); v.Kind() == reflect.Pointer {
		v.Elem().SetZero()
	}
	ok, bakErr := readJSON(f.backup, out)
	if bakErr != nil {
		return fmt.Errorf("load %s (backup %s): %w", f.path, f.backup, bakErr)
	}
	if ok {
		f.log.Warn("loaded store from backup file", "path", f.backup)
	}
	return nil
}

// readJSON reports whether the file existed and held content.
func readJSON(path string, out any) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(string(raw)) == "" {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, err
	}
	return true, nil
}

// Save writes v atomically. The temp file carries a pid+timestamp suffix so
// concurrent processes never collide, and is removed on every exit path. When
// rename is refused (bind-mounted single files reject it with EBUSY/EXDEV)
// the payload is written over the primary directly.
func (f *jsonFile) Save(v any) (err error) {
	if info, statErr := os.Stat(f.path); statErr == nil && info.IsDir() {
		f.log.Warn("store path is a directory, skipping save", "path", f.path)
		return nil
	}

	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", f.path, err)
	}
	payload = append(payload, '\n')

	if f.backup != "" {
		if _, statErr := os.Stat(f.path); statErr == nil {
			if copyErr := copyFile(f.path, f.backup); copyErr != nil {
				f.log.Warn("backup copy failed", "path", f.backup, "error", copyErr)
			}
		}
	}

	tmp := fmt.Sprintf("%s.tmp-%d-%d", f.path, os.Getpid(), time.Now().UnixNano())
	defer func() {
		if _, statErr := os.Stat(tmp); statErr == nil {
			_ = os.Remove(tmp)
		}
	}()

	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		if err := os.WriteFile(f.path, payload, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.path, err)
		}
		f.log.Warn("atomic rename unavailable, wrote primary directly", "path", f.path)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
