package processor

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"

	"clusterfs/pkg/log"
)

// Built-in processor names.
const (
	NameZstd     = "zstd"
	NameLZ4      = "lz4"
	NameChecksum = "checksum"
)

// Suffixes of the files written next to the stored file.
const (
	SuffixZstd     = ".zst"
	SuffixLZ4      = ".lz4"
	SuffixChecksum = ".b3"
)

const sidecarPerm = 0o640

// NewZstd returns a processor writing a zstd-compressed copy of the target to <path>.zst.
func NewZstd(target Target) Processor {
	return Func(func(ctx context.Context) error {
		return writeSidecar(ctx, target, NameZstd, SuffixZstd, func(dst io.Writer, src io.Reader) error {
			encoder, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedDefault))
			if err != nil {
				return fmt.Errorf("zstd encoder: %w", err)
			}
			if _, err := io.Copy(encoder, src); err != nil {
				_ = encoder.Close()
				return fmt.Errorf("zstd compress: %w", err)
			}
			return encoder.Close()
		})
	})
}

// NewLZ4 returns a processor writing an LZ4-framed copy of the target to <path>.lz4.
func NewLZ4(target Target) Processor {
	return Func(func(ctx context.Context) error {
		return writeSidecar(ctx, target, NameLZ4, SuffixLZ4, func(dst io.Writer, src io.Reader) error {
			writer := lz4.NewWriter(dst)
			if _, err := io.Copy(writer, src); err != nil {
				_ = writer.Close()
				return fmt.Errorf("lz4 compress: %w", err)
			}
			return writer.Close()
		})
	})
}

// NewChecksum returns a processor writing the hex BLAKE3 digest of the target to <path>.b3.
func NewChecksum(target Target) Processor {
	return Func(func(ctx context.Context) error {
		return writeSidecar(ctx, target, NameChecksum, SuffixChecksum, func(dst io.Writer, src io.Reader) error {
			hasher := blake3.New()
			if _, err := io.Copy(hasher, src); err != nil {
				return fmt.Errorf("blake3: %w", err)
			}
			_, err := io.WriteString(dst, hex.EncodeToString(hasher.Sum(nil))+"\n")
			return err
		})
	})
}

// writeSidecar streams the target through encode into <path><suffix>. The
// sidecar is written to a temporary name and renamed into place on success.
func writeSidecar(ctx context.Context, target Target, name, suffix string,
	encode func(dst io.Writer, src io.Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := target.FullPath()
	if err != nil {
		return err
	}

	//nolint:gosec // path comes from the allocator
	source, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = source.Close() }()

	sidecar := path + suffix
	temp := sidecar + ".tmp"

	//nolint:gosec // path comes from the allocator
	output, err := os.OpenFile(temp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, sidecarPerm)
	if err != nil {
		return err
	}

	if err := encode(output, source); err != nil {
		_ = output.Close()
		_ = os.Remove(temp)
		return err
	}
	if err := output.Close(); err != nil {
		_ = os.Remove(temp)
		return err
	}
	if err := os.Rename(temp, sidecar); err != nil {
		_ = os.Remove(temp)
		return err
	}

	log.Debug().
		Str("processor", name).
		Str("path", sidecar).
		Msg("Processor output written")
	return nil
}
