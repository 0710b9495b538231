package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"tunedeck/internal/metadata"
)

// ErrUnsupported is returned by providers that cannot access files at all.
var ErrUnsupported = errors.New("file access is not supported")

// Capability names the file-access strategy a provider implements.
type Capability string

const (
	// CapabilityDirectory walks a library root recursively.
	CapabilityDirectory Capability = "directory"
	// CapabilityFiles reads an explicit list of files.
	CapabilityFiles Capability = "files"
	// CapabilityUnsupported fails every discovery.
	CapabilityUnsupported Capability = "unsupported"
)

// Source is a raw audio file offered by a provider.
type Source struct {
	Name    string
	Locator string
	Size    int64
	Open    func() (io.ReadSeekCloser, error)
}

// Provider lists the sources available for a scan.
type Provider interface {
	Capability() Capability
	Sources(ctx context.Context) ([]Source, error)
}

// SelectProvider builds the provider for the configured capability. It is
// called once at startup.
func SelectProvider(kind, root string, files, formats []string) (Provider, error) {
	switch Capability(kind) {
	case CapabilityDirectory, "":
		if root == "" {
			return nil, fmt.Errorf("directory provider needs a library path")
		}
		return &DirectoryProvider{Root: root, Formats: formats}, nil
	case CapabilityFiles:
		return &FileListProvider{Paths: files, Formats: formats}, nil
	case CapabilityUnsupported:
		return UnsupportedProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", kind)
	}
}

// DirectoryProvider offers every supported file below Root.
type DirectoryProvider struct {
	Root    string
	Formats []string
}

// Capability implements Provider.
func (p *DirectoryProvider) Capability() Capability { return CapabilityDirectory }

// Sources walks Root. Unreadable subdirectories are skipped; an unreadable
// root is an error.
func (p *DirectoryProvider) Sources(ctx context.Context) ([]Source, error) {
	if _, err := os.Stat(p.Root); err != nil {
		return nil, fmt.Errorf("library root: %w", err)
	}

	var sources []Source
	err := filepath.WalkDir(p.Root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if d != nil && d.IsDir() && path != p.Root {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() || !metadata.IsSupported(path, p.Formats) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		sources = append(sources, fileSource(path, info.Size()))
		return nil
	})
	return sources, err
}

// FileListProvider offers an explicit list of files, the fallback when no
// library directory is available.
type FileListProvider struct {
	Paths   []string
	Formats []string
}

// Capability implements Provider.
func (p *FileListProvider) Capability() Capability { return CapabilityFiles }

// Sources stats each listed file. Missing files are still offered so the scan
// counts them as unreadable.
func (p *FileListProvider) Sources(ctx context.Context) ([]Source, error) {
	sources := make([]Source, 0, len(p.Paths))
	for _, path := range p.Paths {
		if err := ctx.Err(); err != nil {
			return sources, err
		}
		if len(p.Formats) > 0 && !metadata.IsSupported(path, p.Formats) {
			continue
		}
		var size int64 = -1
		if info, err := os.Stat(path); err == nil {
			size = info.Size()
		}
		sources = append(sources, fileSource(path, size))
	}
	return sources, nil
}

// UnsupportedProvider is used where no file access exists.
type UnsupportedProvider struct{}

// Capability implements Provider.
func (UnsupportedProvider) Capability() Capability { return CapabilityUnsupported }

// Sources always fails with ErrUnsupported.
func (UnsupportedProvider) Sources(context.Context) ([]Source, error) {
	return nil, ErrUnsupported
}

func fileSource(path string, size int64) Source {
	return Source{
		Name:    filepath.Base(path),
		Locator: path,
		Size:    size,
		Open: func() (io.ReadSeekCloser, error) {
			return os.Open(path)
		},
	}
}
