package hash

import (
	"context"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/zeebo/blake3"
	"github.com/zeebo/xxh3"
)

func TestHashFile_SmallFile(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.txt")

	content := []byte("Hello, World!")
	if err := os.WriteFile(testFile, content, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	hash, err := HashFile(context.Background(), testFile, Blake3, nil, 0)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}

	// Compute expected hash
	h := blake3.New()
	h.Write(content)
	expected := hex.EncodeToString(h.Sum(nil))

	if hash != expected {
		t.Errorf("Hash mismatch: expected %s, got %s", expected, hash)
	}
}

func TestHashFile_LargeFile(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "large.bin")

	// Create a 1MB file
	size := 1024 * 1024
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 256)
	}

	if err := os.WriteFile(testFile, data, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	hash, err := HashFile(context.Background(), testFile, XXH3, make([]byte, ChunkSize), 0)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}

	expected := strconv.FormatUint(xxh3.Hash(data), 16)
	if hash != expected {
		t.Errorf("Hash mismatch: expected %s, got %s", expected, hash)
	}
}

func TestHashFile_Limit(t *testing.T) {
	tmpDir := t.TempDir()
	a := filepath.Join(tmpDir, "a.bin")
	b := filepath.Join(tmpDir, "b.bin")

	prefix := make([]byte, PrehashBufferSize)
	for i := range prefix {
		prefix[i] = byte(i)
	}
	if err := os.WriteFile(a, append(append([]byte{}, prefix...), 'a'), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	if err := os.WriteFile(b, append(append([]byte{}, prefix...), 'b'), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	for _, typ := range []Type{Blake3, CRC32, XXH3} {
		preA, err := HashFile(context.Background(), a, typ, nil, PrehashBufferSize)
		if err != nil {
			t.Fatalf("HashFile failed: %v", err)
		}
		preB, err := HashFile(context.Background(), b, typ, nil, PrehashBufferSize)
		if err != nil {
			t.Fatalf("HashFile failed: %v", err)
		}
		if preA != preB {
			t.Errorf("%s: prehash should only cover the shared prefix", typ)
		}
		if preA != HashBytes(typ, prefix) {
			t.Errorf("%s: prehash should equal hash of prefix", typ)
		}

		fullA, _ := HashFile(context.Background(), a, typ, nil, 0)
		fullB, _ := HashFile(context.Background(), b, typ, nil, 0)
		if fullA == fullB {
			t.Errorf("%s: full hashes of different files should differ", typ)
		}
	}
}

func TestHashFile_NonExistent(t *testing.T) {
	_, err := HashFile(context.Background(), "/nonexistent/file.txt", Blake3, nil, 0)
	if err == nil {
		t.Error("HashFile should return error for nonexistent file")
	}
}

func TestHashFile_EmptyFile(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "empty.txt")

	if err := os.WriteFile(testFile, []byte(""), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	hash, err := HashFile(context.Background(), testFile, CRC32, nil, 0)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}

	// Empty file should still produce a valid hash
	if hash == "" {
		t.Error("Hash should not be empty string")
	}
}

func TestHashFile_Cancelled(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.txt")
	if err := os.WriteFile(testFile, []byte("content"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := HashFile(ctx, testFile, Blake3, nil, 0)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestParseType(t *testing.T) {
	tests := map[string]Type{
		"blake3": Blake3,
		"":       Blake3,
		"CRC32":  CRC32,
		"xxh3":   XXH3,
		"xxhash": XXH3,
	}
	for in, want := range tests {
		got, err := ParseType(in)
		if err != nil {
			t.Fatalf("ParseType(%q) error = %v", in, err)
		}
		if got != want {
			t.Errorf("ParseType(%q) = %s, want %s", in, got, want)
		}
		if got.String() == "unknown" {
			t.Errorf("Type %d has no name", got)
		}
	}

	if _, err := ParseType("md5"); err == nil {
		t.Error("ParseType should reject unknown types")
	}
}
