package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"clusterfs/pkg/cluster"
	"clusterfs/pkg/config"
	"clusterfs/pkg/interpolate"
	"clusterfs/pkg/log"
	"clusterfs/pkg/metrics"
	"clusterfs/pkg/store"
)

// Attachment is the file slot of one record.
type Attachment struct {
	pipeline    *Pipeline
	record      Record
	settings    config.Storage
	contentType string
	// baseDir is the base directory resolved by the last save.
	baseDir string
}

// pathAttributes serves record attributes to path templates and remembers the
// first value that is not a local relative path ("../x", "/etc").
type pathAttributes struct {
	record Record
	unsafe string
}

func (p *pathAttributes) Attribute(name string) (string, bool) {
	value, ok := p.record.Attribute(name)
	if ok && value != "" && p.unsafe == "" && !filepath.IsLocal(value) {
		p.unsafe = value
	}
	return value, ok
}

func (p *pathAttributes) check() error {
	if p.unsafe != "" {
		return &UnsafePathError{Path: p.unsafe}
	}
	return nil
}

// Settings returns the storage settings in effect for the record's kind.
func (a *Attachment) Settings() config.Storage {
	return a.settings
}

// source builds the interpolation input for the record.
func (a *Attachment) source() interpolate.Source {
	filename := filepath.Base(a.record.AttachmentPath())
	if a.record.AttachmentPath() == "" {
		filename = ""
	}
	if file := a.record.File(); file != nil {
		filename = file.OriginalFilename()
	}

	return interpolate.Source{
		Filename:   filename,
		Bucket:     a.record.Kind(),
		RequestID:  a.record.ID(),
		Attributes: a.record,
	}
}

// BaseDir returns the base directory used by the last save, or resolves it for
// a loaded record.
func (a *Attachment) BaseDir() (string, error) {
	if a.baseDir != "" {
		return a.baseDir, nil
	}
	return a.pipeline.engine.Resolve(a.settings.BaseDir, a.source())
}

// FullPath returns the absolute path of the stored file.
func (a *Attachment) FullPath() (string, error) {
	stored := a.record.AttachmentPath()
	if stored == "" {
		return "", ErrNoAttachment
	}

	baseDir, err := a.BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, stored), nil
}

// ContentType returns the content type recorded by the last save, or the
// declared type of the pending upload.
func (a *Attachment) ContentType() string {
	if a.contentType != "" {
		return a.contentType
	}
	if file := a.record.File(); file != nil && file.ContentType() != "" {
		return file.ContentType()
	}
	return DefaultContentType
}

// Exists reports whether the stored file is present on disk.
func (a *Attachment) Exists() (bool, error) {
	path, err := a.FullPath()
	if errors.Is(err, ErrNoAttachment) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return a.pipeline.files.Exists(path)
}

// Stat returns metadata about the stored file. A missing file is reported as
// store.FileNotFoundError.
func (a *Attachment) Stat() (*store.FileInfo, error) {
	path, err := a.FullPath()
	if err != nil {
		return nil, err
	}
	return a.pipeline.files.Stat(path)
}

// Destroy removes the stored file. It returns false when there was nothing to remove.
func (a *Attachment) Destroy() (bool, error) {
	path, err := a.FullPath()
	if errors.Is(err, ErrNoAttachment) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	removed, err := a.pipeline.files.Remove(path)
	if err != nil {
		return false, err
	}
	if removed {
		log.Debug().Str("path", path).Str("kind", a.record.Kind()).Msg("Attachment removed")
	}
	return removed, nil
}

// Save writes the record's pending upload into the next slot of its bucket.
// It returns false without touching anything when the record carries no file.
// Every call allocates a new slot.
func (a *Attachment) Save(ctx context.Context) (bool, error) {
	start := time.Now()
	kind := a.record.Kind()

	file := a.record.File()
	if file == nil {
		a.pipeline.metrics.ObserveSave(kind, metrics.SaveSkipped, 0, time.Since(start))
		return false, nil
	}

	reader, ok := file.(io.Reader)
	if !ok {
		a.pipeline.metrics.ObserveSave(kind, metrics.SaveFailed, 0, time.Since(start))
		return false, &InvalidFileError{Type: fmt.Sprintf("%T", file)}
	}

	written, err := a.save(ctx, file, reader)
	if err != nil {
		a.pipeline.metrics.ObserveSave(kind, metrics.SaveFailed, written, time.Since(start))
		return false, err
	}

	a.pipeline.metrics.ObserveSave(kind, metrics.SaveStored, written, time.Since(start))
	return true, nil
}

func (a *Attachment) save(ctx context.Context, file Upload, reader io.Reader) (int64, error) {
	attributes := &pathAttributes{record: a.record}
	src := a.source()
	src.Attributes = attributes

	baseDir, err := a.pipeline.engine.Resolve(a.settings.BaseDir, src)
	if err != nil {
		return 0, err
	}
	if err := attributes.check(); err != nil {
		return 0, err
	}

	slot, err := a.pipeline.allocator.Allocate(ctx, cluster.Request{
		Bucket:   a.record.Kind(),
		Depth:    a.settings.Depth,
		MaxItems: a.settings.MaxItems,
		Hex:      a.settings.Hex,
	})
	if err != nil {
		return 0, err
	}

	to, err := a.pipeline.engine.Resolve(a.settings.To, src)
	if err != nil {
		return 0, err
	}

	// The directory part of "to" sits above the slot, the file part below it.
	outputDir := filepath.Join(filepath.Dir(to), slot.Dir())
	outputFile := filepath.Join(outputDir, filepath.Base(to))
	if err := attributes.check(); err != nil {
		return 0, err
	}
	if !filepath.IsLocal(outputFile) {
		return 0, &UnsafePathError{Path: outputFile}
	}
	fullOutputDir := filepath.Join(baseDir, outputDir)
	fullOutputFile := filepath.Join(baseDir, outputFile)

	if err := a.pipeline.files.MkdirAll(fullOutputDir); err != nil {
		return 0, err
	}

	written, err := a.pipeline.files.Write(fullOutputFile, reader)
	if err != nil {
		return written, err
	}

	log.Debug().
		Str("kind", a.record.Kind()).
		Str("id", a.record.ID()).
		Str("path", fullOutputFile).
		Int64("size", written).
		Msg("Attachment saved")

	contentType := file.ContentType()
	if contentType == "" {
		contentType = DefaultContentType
	}

	info := Info{Size: written, Path: outputFile, ContentType: contentType}
	if err := a.record.SaveAttachmentInfo(ctx, info); err != nil {
		return written, err
	}
	a.contentType = contentType
	a.baseDir = baseDir

	return written, a.runProcessors(ctx)
}

// runProcessors runs the configured processors in order. Names without a
// registered factory are skipped.
func (a *Attachment) runProcessors(ctx context.Context) error {
	for _, name := range a.settings.Processor {
		factory, ok := a.pipeline.registry.Lookup(name)
		if !ok {
			log.Debug().Str("processor", name).Str("kind", a.record.Kind()).Msg("Unknown processor skipped")
			continue
		}
		if err := factory(a).Run(ctx); err != nil {
			return err
		}
	}
	return nil
}
