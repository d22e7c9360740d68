// Package circuits keeps a local cache of the circom artifacts (witness
// calculator, proving key and verification key) needed to generate and verify
// Semaphore proofs. Artifacts are fetched from their remote URL once and then
// served from disk.
package circuits

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vocdoni/semaphore-aa-vote/log"
	"github.com/vocdoni/semaphore-aa-vote/types"
)

// CheckHashes determines if the hashes of the artifacts are checked when they
// are loaded or downloaded. Disabled by setting VOTE_CHECK_HASHES to false or 0.
var CheckHashes = true

// BaseDir is the artifact cache directory. Defaults to VOTE_ARTIFACTS_DIR or
// ~/.cache/semaphore-artifacts.
var BaseDir string

func init() {
	if checkHashes := os.Getenv("VOTE_CHECK_HASHES"); checkHashes != "" {
		if strings.ToLower(checkHashes) == "false" || checkHashes == "0" {
			CheckHashes = false
		}
	}
	if dir := os.Getenv("VOTE_ARTIFACTS_DIR"); dir != "" {
		BaseDir = dir
	} else {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			log.Warnf("unable to access user home directory, using temporary directory: %v", err)
			BaseDir = filepath.Join(os.TempDir(), "semaphore-artifacts")
		} else {
			BaseDir = filepath.Join(home, ".cache", "semaphore-artifacts")
		}
	}
}

// Artifact holds the remote URL of a circuit file, the expected sha256 of its
// content and, once loaded, the content itself. When Hash is empty the file
// is cached under the hash of its URL and its integrity is not checked, which
// is the case for artifacts published without a checksum.
type Artifact struct {
	RemoteURL string
	Hash      []byte
	Content   []byte
}

// cacheKey returns the file name of the artifact inside BaseDir.
func (k *Artifact) cacheKey() string {
	if len(k.Hash) > 0 {
		return hex.EncodeToString(k.Hash)
	}
	h := sha256.Sum256([]byte(k.RemoteURL))
	return "url-" + hex.EncodeToString(h[:])
}

// Load makes the artifact content available. It tries the local cache first
// and, on a miss, downloads it from RemoteURL.
func (k *Artifact) Load(ctx context.Context) error {
	if len(k.Content) != 0 {
		return nil
	}
	if len(k.Hash) == 0 && k.RemoteURL == "" {
		return fmt.Errorf("artifact has neither hash nor remote url")
	}
	content, err := k.load()
	if err != nil {
		return err
	}
	if content == nil {
		if err := k.Download(ctx); err != nil {
			return err
		}
		if content, err = k.load(); err != nil {
			return err
		}
		if content == nil {
			return fmt.Errorf("no content found after download")
		}
	}
	k.Content = content
	return nil
}

// Download fetches the artifact from RemoteURL into the local cache.
func (k *Artifact) Download(ctx context.Context) error {
	if k.RemoteURL == "" {
		return fmt.Errorf("artifact not loaded and remote url not provided")
	}
	return downloadAndStore(ctx, k.Hash, k.RemoteURL, k.cacheKey())
}

// CircuitArtifacts groups the witness calculator (wasm), proving key (zkey)
// and verification key (json) of a circom circuit.
type CircuitArtifacts struct {
	wasm *Artifact
	zkey *Artifact
	vkey *Artifact
}

// NewCircuitArtifacts returns the set of artifacts provided. Any of them can
// be nil.
func NewCircuitArtifacts(wasm, zkey, vkey *Artifact) *CircuitArtifacts {
	return &CircuitArtifacts{wasm: wasm, zkey: zkey, vkey: vkey}
}

// SemaphoreArtifacts returns the artifacts of the Semaphore circuit for the
// given tree depth, filling the URL templates with it.
func SemaphoreArtifacts(depth int, wasmTemplate, zkeyTemplate, vkeyTemplate string) *CircuitArtifacts {
	artifact := func(tmpl string) *Artifact {
		if tmpl == "" {
			return nil
		}
		return &Artifact{RemoteURL: fmt.Sprintf(tmpl, depth)}
	}
	return NewCircuitArtifacts(artifact(wasmTemplate), artifact(zkeyTemplate), artifact(vkeyTemplate))
}

// LoadProving loads the wasm and the proving key.
func (ca *CircuitArtifacts) LoadProving(ctx context.Context) error {
	if ca.wasm == nil || ca.zkey == nil {
		return fmt.Errorf("proving artifacts not configured")
	}
	if err := ca.wasm.Load(ctx); err != nil {
		return fmt.Errorf("error loading circuit wasm: %w", err)
	}
	if err := ca.zkey.Load(ctx); err != nil {
		return fmt.Errorf("error loading proving key: %w", err)
	}
	return nil
}

// LoadVerifying loads the verification key.
func (ca *CircuitArtifacts) LoadVerifying(ctx context.Context) error {
	if ca.vkey == nil {
		return fmt.Errorf("verification key not configured")
	}
	if err := ca.vkey.Load(ctx); err != nil {
		return fmt.Errorf("error loading verification key: %w", err)
	}
	return nil
}

// Wasm returns the witness calculator content or nil if not loaded.
func (ca *CircuitArtifacts) Wasm() types.HexBytes {
	if ca.wasm == nil {
		return nil
	}
	return ca.wasm.Content
}

// ProvingKey returns the proving key content or nil if not loaded.
func (ca *CircuitArtifacts) ProvingKey() types.HexBytes {
	if ca.zkey == nil {
		return nil
	}
	return ca.zkey.Content
}

// VerifyingKey returns the verification key content or nil if not loaded.
func (ca *CircuitArtifacts) VerifyingKey() types.HexBytes {
	if ca.vkey == nil {
		return nil
	}
	return ca.vkey.Content
}

func (k *Artifact) load() ([]byte, error) {
	if err := os.MkdirAll(BaseDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("error creating the base directory: %w", err)
	}
	path := filepath.Join(BaseDir, k.cacheKey())
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading file %s: %w", path, err)
	}
	if CheckHashes && len(k.Hash) > 0 {
		fileHash := sha256.Sum256(content)
		if !bytes.Equal(fileHash[:], k.Hash) {
			return nil, fmt.Errorf("hash mismatch for file %s: expected %x, got %x", path, k.Hash, fileHash)
		}
	}
	return content, nil
}

// progressReader wraps an io.Reader and keeps track of the total bytes read.
type progressReader struct {
	reader        io.Reader
	total         int64 // updated atomically
	contentLength int64
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	atomic.AddInt64(&pr.total, int64(n))
	return n, err
}

// downloadAndStore downloads a file from a URL and stores it in the local
// cache under name, resuming a previous partial download if there is one.
func downloadAndStore(ctx context.Context, expectedHash []byte, fileUrl, name string) error {
	if _, err := url.Parse(fileUrl); err != nil {
		return fmt.Errorf("error parsing the file URL provided: %w", err)
	}
	if err := os.MkdirAll(BaseDir, os.ModePerm); err != nil {
		return fmt.Errorf("error creating the base directory: %w", err)
	}
	path := filepath.Join(BaseDir, name)
	partialPath := path + ".partial"

	var startByte int64
	if info, err := os.Stat(partialPath); err == nil {
		startByte = info.Size()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileUrl, nil)
	if err != nil {
		return fmt.Errorf("error creating the file request: %w", err)
	}
	if startByte > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", startByte))
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("error performing the request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("error downloading file %s: http status: %d", fileUrl, res.StatusCode)
	}
	fileMode := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	resuming := startByte > 0 && res.StatusCode == http.StatusPartialContent
	if resuming {
		fileMode = os.O_APPEND | os.O_WRONLY
	} else {
		startByte = 0
	}
	fd, err := os.OpenFile(partialPath, fileMode, 0o644)
	if err != nil {
		return fmt.Errorf("error opening artifact file: %w", err)
	}
	defer fd.Close()

	hasher := sha256.New()
	if resuming {
		if existing, err := os.Open(partialPath); err == nil {
			_, _ = io.Copy(hasher, io.LimitReader(existing, startByte))
			existing.Close()
		}
	}
	pr := &progressReader{
		reader:        res.Body,
		contentLength: res.ContentLength + startByte,
	}
	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(io.MultiWriter(fd, hasher), pr)
		done <- err
	}()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for waiting := true; waiting; {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("error copying data to file: %w", err)
			}
			waiting = false
		case <-ticker.C:
			total := atomic.LoadInt64(&pr.total)
			var percentage float64
			if pr.contentLength > 0 {
				percentage = (float64(total+startByte) / float64(pr.contentLength)) * 100
			}
			log.Debugw("download artifacts", "url", fileUrl,
				"downloaded", fmt.Sprintf("%.2fMiB", float64(total)/(1024*1024)),
				"progress", fmt.Sprintf("%.2f%%", percentage))
		}
	}
	if CheckHashes && len(expectedHash) > 0 {
		computedHash := hasher.Sum(nil)
		if !bytes.Equal(computedHash, expectedHash) {
			os.Remove(partialPath)
			return fmt.Errorf("hash mismatch: expected %x, got %x", expectedHash, computedHash)
		}
	}
	if err := os.Rename(partialPath, path); err != nil {
		return fmt.Errorf("error renaming file: %w", err)
	}
	log.Infow("artifact stored", "url", fileUrl, "path", path)
	return nil
}
