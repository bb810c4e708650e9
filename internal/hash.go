package internal

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"time"

	"lukechampine.com/blake3"
)

// HashAlgorithm selects the digest behind content fingerprints.
type HashAlgorithm string

const (
	HashSHA256 HashAlgorithm = "sha256"
	HashBLAKE3 HashAlgorithm = "blake3"
)

const (
	defaultChunkSize  = 64 * 1024
	defaultChunkCount = 16
)

// Hasher computes content fingerprints from a bounded prefix of a file plus its size.
// Large videos are never read past ChunkSize*ChunkCount bytes.
type Hasher struct {
	ChunkSize  int
	ChunkCount int
	Algorithm  HashAlgorithm
}

// NewHasher returns a Hasher configured from cfg, falling back to defaults
// for non-positive values.
func NewHasher(cfg *Config) Hasher {
	h := Hasher{
		ChunkSize:  cfg.HashChunkSize,
		ChunkCount: cfg.HashChunkCount,
		Algorithm:  HashAlgorithm(cfg.HashAlgorithm),
	}
	if h.ChunkSize <= 0 {
		h.ChunkSize = defaultChunkSize
	}
	if h.ChunkCount <= 0 {
		h.ChunkCount = defaultChunkCount
	}
	return h
}

func (h Hasher) digest() hash.Hash {
	if h.Algorithm == HashBLAKE3 {
		return blake3.New(32, nil)
	}
	return sha256.New()
}

// Fingerprint hashes up to ChunkCount chunks of the file and then its exact size.
func (h Hasher) Fingerprint(path string) (string, error) {
	start := time.Now()
	defer func() { metricHashDuration.Observe(time.Since(start).Seconds()) }()

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}

	d := h.digest()
	buf := make([]byte, h.ChunkSize)
	for i := 0; i < h.ChunkCount; i++ {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			d.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("fingerprint %s: %w", path, err)
		}
	}

	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(info.Size()))
	d.Write(size[:])

	return hex.EncodeToString(d.Sum(nil)), nil
}

// FingerprintString hashes a plain string. Sidecar sections that name a missing
// file are keyed this way.
func (h Hasher) FingerprintString(s string) string {
	d := h.digest()
	io.WriteString(d, s)
	return hex.EncodeToString(d.Sum(nil))
}
