package keyvault

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	keyFileVersion = 1
	keyFileMode    = 0o600
)

var (
	errWrongPassphrase = errors.New("wrong passphrase or corrupted key file")
	serviceTagRegex    = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)
)

// keyFile is the on-disk JSON structure for a wrapped private key.
type keyFile struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Nonce  []byte `json:"nonce"`
	Cipher []byte `json:"cipher"`
}

// FileStorage keeps each key in its own passphrase protected file inside
// dir. Files are replaced atomically so a crash never leaves a torn key.
type FileStorage struct {
	dir        string
	passphrase string
	scryptN    int
	scryptR    int
	scryptP    int
}

func NewFileStorage(dir, passphrase string) (*FileStorage, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &FileStorage{dir: dir, passphrase: passphrase, scryptN: 1 << 15, scryptR: 8, scryptP: 1}, nil
}

func (fs *FileStorage) Store(ctx context.Context, serviceTag string, privateKey []byte) error {
	path, err := fs.path(serviceTag)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := fs.seal(privateKey)
	if err != nil {
		return err
	}

	return writeFileAtomic(path, data, keyFileMode)
}

func (fs *FileStorage) Load(ctx context.Context, serviceTag string) ([]byte, error) {
	path, err := fs.path(serviceTag)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotStored
	}
	if err != nil {
		return nil, err
	}

	return fs.open(data)
}

func (fs *FileStorage) Delete(ctx context.Context, serviceTag string) error {
	path, err := fs.path(serviceTag)
	if err != nil {
		return err
	}

	err = os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (fs *FileStorage) path(serviceTag string) (string, error) {
	if !serviceTagRegex.MatchString(serviceTag) {
		return "", fmt.Errorf("invalid service tag %q", serviceTag)
	}
	return filepath.Join(fs.dir, serviceTag+".key"), nil
}

func (fs *FileStorage) seal(raw []byte) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	key, err := scrypt.Key([]byte(fs.passphrase), salt, fs.scryptN, fs.scryptR, fs.scryptP, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	defer clear(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}

	return json.Marshal(keyFile{
		V:      keyFileVersion,
		Salt:   salt,
		N:      fs.scryptN,
		R:      fs.scryptR,
		P:      fs.scryptP,
		Nonce:  nonce,
		Cipher: aead.Seal(nil, nonce, raw, salt),
	})
}

func (fs *FileStorage) open(data []byte) ([]byte, error) {
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("corrupted key file: %w", err)
	}
	if kf.V > keyFileVersion {
		return nil, fmt.Errorf("unsupported key file version %d", kf.V)
	}
	if len(kf.Nonce) != chacha20poly1305.NonceSize {
		return nil, errWrongPassphrase
	}

	key, err := scrypt.Key([]byte(fs.passphrase), kf.Salt, kf.N, kf.R, kf.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	defer clear(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}

	raw, err := aead.Open(nil, kf.Nonce, kf.Cipher, kf.Salt)
	if err != nil {
		return nil, errWrongPassphrase
	}
	return raw, nil
}

// writeFileAtomic writes via a temp file in the same directory, then renames
// it over the target.
func writeFileAtomic(path string, b []byte, mode os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}
