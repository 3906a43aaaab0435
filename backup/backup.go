// Package backup reads and writes chat documents on disk. The format is
// chosen by file extension: .json, .yaml/.yml, or a gzip tarball
// (.tar.gz/.tgz) holding a single chats.json.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
	"github.com/pkg/errors"
	"github.com/xiaoyuanzhu-com/my-life-chat/chats"
	"github.com/xiaoyuanzhu-com/my-life-chat/log"
	"gopkg.in/yaml.v3"
)

var logger = log.GetLogger("Backup")

// Format identifies a document encoding.
type Format string

const (
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatArchive Format = "tar.gz"
)

// ArchiveEntryName is the document's name inside a tarball.
const ArchiveEntryName = "chats.json"

var ErrUnknownFormat = errors.New("unknown backup format")

// FormatOf picks the format from a file name.
func FormatOf(path string) (Format, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatArchive, nil
	case strings.HasSuffix(lower, ".yaml"), strings.HasSuffix(lower, ".yml"):
		return FormatYAML, nil
	case strings.HasSuffix(lower, ".json"):
		return FormatJSON, nil
	}
	return "", errors.Wrapf(ErrUnknownFormat, "%s", filepath.Base(path))
}

// Encode writes doc in the given format.
func Encode(ctx context.Context, w io.Writer, format Format, doc *chats.Document) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	case FormatArchive:
		return encodeArchive(ctx, w, doc)
	}
	return errors.Wrapf(ErrUnknownFormat, "%s", format)
}

// Decode reads a document in the given format.
func Decode(ctx context.Context, r io.Reader, format Format) (*chats.Document, error) {
	var doc chats.Document
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&doc); err != nil {
			return nil, errors.Wrap(err, "decode json document")
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
			return nil, errors.Wrap(err, "decode yaml document")
		}
	case FormatArchive:
		return decodeArchive(ctx, r)
	default:
		return nil, errors.Wrapf(ErrUnknownFormat, "%s", format)
	}
	return &doc, nil
}

// Save writes doc to path. The file is replaced atomically so a failed save
// never truncates an existing backup.
func Save(ctx context.Context, path string, doc *chats.Document) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "create backup directory")
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := Encode(ctx, tmp, format, doc); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "encode %s", format)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrap(err, "replace backup")
	}

	logger.Info().Str("path", path).Str("format", string(format)).Int("chats", len(doc.Chats)).Msg("backup saved")
	return nil
}

// Load reads the document stored at path.
func Load(ctx context.Context, path string) (*chats.Document, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open backup")
	}
	defer f.Close()

	doc, err := Decode(ctx, f, format)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	logger.Info().Str("path", path).Int("chats", len(doc.Chats)).Msg("backup loaded")
	return doc, nil
}

func encodeArchive(ctx context.Context, w io.Writer, doc *chats.Document) error {
	staging, err := os.MkdirTemp("", "my-life-chat-backup-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	var buf bytes.Buffer
	if err := Encode(ctx, &buf, FormatJSON, doc); err != nil {
		return err
	}
	entry := filepath.Join(staging, ArchiveEntryName)
	if err := os.WriteFile(entry, buf.Bytes(), 0644); err != nil {
		return err
	}

	files, err := archives.FilesFromDisk(ctx, nil, map[string]string{
		entry: ArchiveEntryName,
	})
	if err != nil {
		return err
	}

	format := archives.CompressedArchive{
		Compression: archives.Gz{},
		Archival:    archives.Tar{},
	}
	return format.Archive(ctx, w, files)
}

func decodeArchive(ctx context.Context, r io.Reader) (*chats.Document, error) {
	format, stream, err := archives.Identify(ctx, "backup.tar.gz", r)
	if err != nil {
		return nil, errors.Wrap(err, "identify archive")
	}
	extractor, ok := format.(archives.Extractor)
	if !ok {
		return nil, errors.Errorf("%s archives cannot be extracted", format.Extension())
	}

	var doc *chats.Document
	err = extractor.Extract(ctx, stream, func(ctx context.Context, info archives.FileInfo) error {
		if info.IsDir() || filepath.Base(info.NameInArchive) != ArchiveEntryName {
			return nil
		}
		f, err := info.Open()
		if err != nil {
			return err
		}
		defer f.Close()
		doc, err = Decode(ctx, f, FormatJSON)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "extract archive")
	}
	if doc == nil {
		return nil, errors.Errorf("archive has no %s", ArchiveEntryName)
	}
	return doc, nil
}
