package report

import (
	"fmt"
	"os"
	"path/filepath"
)

// Output is a rendered report destined for a file.
type Output struct {
	Path string
	Data []byte
}

// WriteFile replaces path with data. The content goes to a temporary file
// in the same directory first, so readers never observe a partial file.
func WriteFile(path string, data []byte) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temporary file for %s: %w", path, err)
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Chmod(0644); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// WriteOutputs writes every output. All content must already be rendered.
func WriteOutputs(outputs ...Output) error {
	for _, o := range outputs {
		if err := WriteFile(o.Path, o.Data); err != nil {
			return err
		}
	}
	return nil
}
