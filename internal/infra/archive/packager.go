package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Packager zips the produced media files of a directory into memory and
// removes them afterwards.
type Packager struct {
	extensions []string
	logger     *zap.Logger
	readFile   func(string) ([]byte, error)
}

func NewPackager(extensions []string, logger *zap.Logger) *Packager {
	exts := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	return &Packager{extensions: exts, logger: logger, readFile: os.ReadFile}
}

// Pack archives every matching file of dir, one entry per file named after it.
// A file that cannot be copied is logged and skipped. Matched files are
// deleted once the archive is complete.
func (p *Packager) Pack(dir string) ([]byte, error) {
	files, err := p.list(dir)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, path := range files {
		if err := p.addFile(zw, path); err != nil {
			p.logger.Error("skipping file", zap.String("path", path), zap.Error(err))
			continue
		}
		p.logger.Debug("archived", zap.String("path", path))
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}

	for _, path := range files {
		if err := os.Remove(path); err != nil {
			p.logger.Warn("failed to remove archived file", zap.String("path", path), zap.Error(err))
		}
	}

	p.logger.Info("archive ready", zap.Int("files", len(files)), zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

func (p *Packager) list(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !p.matches(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func (p *Packager) matches(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range p.extensions {
		if ext == want {
			return true
		}
	}
	return false
}

// addFile reads the whole file before creating its entry, so a read failure
// leaves no truncated entry behind.
func (p *Packager) addFile(zw *zip.Writer, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	data, err := p.readFile(path)
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = filepath.Base(path)
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
