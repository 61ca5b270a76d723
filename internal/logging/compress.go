package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
)

// CompressedExt is appended to day files compressed by CompressOldLogs.
const CompressedExt = ".zst"

var removeFile = os.Remove

// CompressOldLogs rewrites plain-text and JSON-lines day files in dir that
// are older than olderThanDays as zstd streams and removes the originals.
// Files in exclude (normally the sinks currently open) are left alone.
// Failures are logged and skipped; the compressed paths are returned.
func CompressOldLogs(e *Emitter, dir string, olderThanDays int, exclude ...string) []string {
	if olderThanDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	targets := []RetentionTarget{
		{Dir: dir, Pattern: "*.log", Exclude: exclude},
		{Dir: dir, Pattern: "*.json", Exclude: exclude},
	}
	var compressed []string
	walkTargets(targets, cutoff, func(path string) {
		dst, err := compressFile(path)
		switch {
		case err != nil && dst == "":
			e.Warn("log compression failed; file left uncompressed",
				String("path", path),
				Error(err),
			)
			return
		case err != nil:
			e.Warn("log compressed; original not removed",
				String("path", path),
				String("compressed_path", dst),
				Error(err),
			)
		default:
			e.Info("log compressed", String("path", path), String("compressed_path", dst))
		}
		compressed = append(compressed, dst)
	})
	return compressed
}

func compressFile(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return "", fmt.Errorf("stat: %w", err)
	}

	dstPath := path + CompressedExt
	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("create: %w", err)
	}
	enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		_ = dst.Close()
		_ = os.Remove(dstPath)
		return "", fmt.Errorf("zstd writer: %w", err)
	}
	if _, err := io.Copy(enc, src); err != nil {
		_ = enc.Close()
		_ = dst.Close()
		_ = os.Remove(dstPath)
		return "", fmt.Errorf("compress: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = dst.Close()
		_ = os.Remove(dstPath)
		return "", fmt.Errorf("flush: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dstPath)
		return "", fmt.Errorf("close: %w", err)
	}
	// Keep the original timestamp so retention ages the compressed copy
	// from the day it was written.
	_ = os.Chtimes(dstPath, info.ModTime(), info.ModTime())
	if err := removeFile(path); err != nil {
		return dstPath, fmt.Errorf("remove original: %w", err)
	}
	return dstPath, nil
}

// DecompressLog opens a .zst day file for reading.
func DecompressLog(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(file)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	return &zstdReadCloser{dec: dec, file: file}, nil
}

type zstdReadCloser struct {
	dec  *zstd.Decoder
	file *os.File
}

func (z *zstdReadCloser) Read(p []byte) (int, error) { return z.dec.Read(p) }

func (z *zstdReadCloser) Close() error {
	z.dec.Close()
	return z.file.Close()
}
