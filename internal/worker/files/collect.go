package files

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cuongbtq/agent-jobs/internal/worker/domain"
)

// Collector lists the output files a runner left in its work directory.
type Collector struct {
	logger *slog.Logger
}

func NewCollector(logger *slog.Logger) *Collector {
	return &Collector{logger: logger}
}

// Collect returns the regular files under root sorted by relative path.
// Hidden files and directories, symlinks, and files whose base name is in
// exclude are skipped. A missing root yields no files.
func (c *Collector) Collect(root string, exclude ...string) ([]domain.OutputFile, error) {
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve work dir: %w", err)
	}

	skip := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		skip[name] = struct{}{}
	}

	var collected []domain.OutputFile
	err = filepath.WalkDir(resolvedRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == resolvedRoot {
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}
		if _, ok := skip[name]; ok {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			c.logger.Warn("Skipping symlink", slog.String("path", path))
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(resolvedRoot, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			c.logger.Warn("Skipping file outside work dir", slog.String("path", path))
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", rel, err)
		}

		collected = append(collected, domain.OutputFile{
			Path: path,
			Name: filepath.ToSlash(rel),
			Size: info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk work dir: %w", err)
	}

	sort.Slice(collected, func(i, j int) bool {
		return collected[i].Name < collected[j].Name
	})

	return collected, nil
}

// WriteFallback stores content as a single output file named name inside
// dir. Blank content produces no file.
func WriteFallback(dir, name, content string) ([]domain.OutputFile, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", name, err)
	}

	return []domain.OutputFile{{Path: path, Name: name, Size: int64(len(content))}}, nil
}
