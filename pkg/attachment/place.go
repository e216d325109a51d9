package attachment

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"clusterfs/pkg/cluster"
	"clusterfs/pkg/interpolate"
	"clusterfs/pkg/log"
)

// placeConcurrency bounds the goroutines used by PlaceAll.
const placeConcurrency = 8

// PlaceOptions describes what Place puts into the allocated slot.
type PlaceOptions struct {
	// Directory is appended below the slot.
	Directory string
	// Reader, when set, is written to FileName inside the slot.
	Reader io.Reader
	// FileName names the written or copied file.
	FileName string
	// SourcePath, when set and Reader is nil, is copied into the slot. The copy
	// keeps the source base name unless FileName is given.
	SourcePath string
}

// PathFor returns the absolute path of parts below the storage of bucket.
func (p *Pipeline) PathFor(bucket string, parts ...string) (string, error) {
	baseDir, err := p.bucketDir(bucket)
	if err != nil {
		return "", err
	}
	path, err := filepath.Abs(filepath.Join(append([]string{baseDir}, parts...)...))
	if err != nil {
		return "", fmt.Errorf("resolving path for %s: %w", bucket, err)
	}
	return path, nil
}

func (p *Pipeline) bucketDir(bucket string) (string, error) {
	if bucket == "" {
		return "", fmt.Errorf("%w: bucket name is required", cluster.ErrInvalidRequest)
	}
	settings := p.storage.For(bucket)
	baseDir, err := p.engine.Resolve(settings.BaseDir, interpolate.Source{Bucket: bucket})
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, bucket), nil
}

// Place allocates the next slot of bucket, creates it below the bucket's
// storage directory and optionally fills it. It returns the slot path relative
// to PathFor(bucket).
func (p *Pipeline) Place(ctx context.Context, bucket string, opts PlaceOptions) (string, error) {
	if opts.Reader != nil && opts.FileName == "" {
		return "", ErrFileNameRequired
	}

	bucketDir, err := p.bucketDir(bucket)
	if err != nil {
		return "", err
	}

	settings := p.storage.For(bucket)
	slot, err := p.allocator.Allocate(ctx, cluster.Request{
		Bucket:   bucket,
		Depth:    settings.Depth,
		MaxItems: settings.MaxItems,
		Hex:      settings.Hex,
	})
	if err != nil {
		return "", err
	}

	slotPath := filepath.Join(slot.Dir(), opts.Directory)
	dir := filepath.Join(bucketDir, slotPath)
	if err := p.files.MkdirAll(dir); err != nil {
		return "", err
	}

	switch {
	case opts.Reader != nil:
		if _, err := p.files.Write(filepath.Join(dir, opts.FileName), opts.Reader); err != nil {
			return "", err
		}
	case opts.SourcePath != "":
		fileName := opts.FileName
		if fileName == "" {
			fileName = filepath.Base(opts.SourcePath)
		}
		if _, err := p.files.Copy(opts.SourcePath, filepath.Join(dir, fileName)); err != nil {
			return "", err
		}
	}

	log.Debug().
		Str("bucket", bucket).
		Str("slot", slotPath).
		Msg("Slot placed")
	return slotPath, nil
}

// PlaceAll places every entry of items into bucket concurrently. Results are
// returned in the order of items; the first error cancels the remaining work.
func (p *Pipeline) PlaceAll(ctx context.Context, bucket string, items []PlaceOptions) ([]string, error) {
	paths := make([]string, len(items))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(placeConcurrency)

	for i, item := range items {
		group.Go(func() error {
			path, err := p.Place(groupCtx, bucket, item)
			if err != nil {
				return err
			}
			paths[i] = path
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}
