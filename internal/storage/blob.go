package storage

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/crypto/blake2b"
)

var ErrBlobNotFound = errors.New("blob not found")

// BlobStore 以內容雜湊為鍵存放附件資料
type BlobStore struct {
	fs afero.Fs
}

// NewBlobStore 在作業系統的 dir 目錄下建立附件儲存
func NewBlobStore(dir string) (*BlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob dir: %w", err)
	}
	return NewBlobStoreFs(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

func NewBlobStoreFs(fs afero.Fs) *BlobStore {
	return &BlobStore{fs: fs}
}

// Digest 回傳資料的 blake2b-256 十六進位雜湊
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Put 以雜湊為鍵寫入資料，相同內容重複寫入不會有任何變化
func (s *BlobStore) Put(data []byte) (string, error) {
	digest := Digest(data)
	path := blobPath(digest)

	if ok, err := afero.Exists(s.fs, path); err != nil {
		return "", err
	} else if ok {
		return digest, nil
	}

	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create blob dir: %w", err)
	}

	// 每個寫入者使用自己的暫存檔，寫完再改名，讀取者不會看到寫到一半的檔案
	f, err := afero.TempFile(s.fs, filepath.Dir(path), digest+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp blob: %w", err)
	}
	tmp := f.Name()

	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		f.Close()
		_ = s.fs.Remove(tmp)
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return "", fmt.Errorf("failed to write blob: %w", err)
	}

	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		// 另一個寫入者已經放好相同內容
		if ok, _ := afero.Exists(s.fs, path); ok {
			return digest, nil
		}
		return "", fmt.Errorf("failed to commit blob: %w", err)
	}

	return digest, nil
}

// Open 依雜湊開啟附件資料，呼叫者負責關閉
func (s *BlobStore) Open(digest string) (io.ReadCloser, int64, error) {
	if !validDigest(digest) {
		return nil, 0, ErrBlobNotFound
	}
	f, err := s.fs.Open(blobPath(digest))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, ErrBlobNotFound
		}
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

func (s *BlobStore) Delete(digest string) error {
	if !validDigest(digest) {
		return ErrBlobNotFound
	}
	err := s.fs.Remove(blobPath(digest))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func blobPath(digest string) string {
	return filepath.Join(digest[:2], digest)
}

func validDigest(digest string) bool {
	if len(digest) != blake2b.Size256*2 {
		return false
	}
	_, err := hex.DecodeString(digest)
	return err == nil
}
