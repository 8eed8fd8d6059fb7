package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Credentials is the single persisted record. Its on-disk format is opaque
// to every other component.
type Credentials struct {
	TokenType    string `json:"token_type"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	DeviceToken  string `json:"device_token"`
}

func (c Credentials) valid() bool {
	return c.TokenType != "" && c.AccessToken != ""
}

// CredStore persists the credential record. With a key configured the file
// is sealed with XChaCha20-Poly1305; without one it is plain JSON.
type CredStore struct {
	path string
	key  []byte
}

// sealedMagic prefixes encrypted files so Load can tell the formats apart.
var sealedMagic = []byte("RHB1")

func NewCredStore(path, passphrase string) *CredStore {
	s := &CredStore{path: path}
	if passphrase != "" {
		s.key = deriveKey(passphrase)
	}
	return s
}

func deriveKey(passphrase string) []byte {
	r := hkdf.New(sha256.New, []byte(passphrase), []byte("rhbridge-credfile"), nil)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		panic(err)
	}
	return key
}

// Save writes atomically: temp file in the same directory, then rename.
func (s *CredStore) Save(c Credentials) error {
	if !c.valid() {
		return errors.New("credentials missing token_type or access_token")
	}
	plain, err := json.Marshal(c)
	if err != nil {
		return err
	}
	data := plain
	if s.key != nil {
		data, err = s.seal(plain)
		if err != nil {
			return err
		}
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".cred-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *CredStore) Load() (Credentials, error) {
	var c Credentials
	data, err := os.ReadFile(s.path)
	if err != nil {
		return c, err
	}
	if len(data) > len(sealedMagic) && string(data[:len(sealedMagic)]) == string(sealedMagic) {
		if s.key == nil {
			return c, errors.New("credential file is sealed but no key is configured")
		}
		data, err = s.open(data)
		if err != nil {
			return c, err
		}
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, err
	}
	if !c.valid() {
		return c, errors.New("credential file incomplete")
	}
	return c, nil
}

func (s *CredStore) seal(plain []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(sealedMagic)+len(nonce)+len(plain)+aead.Overhead())
	out = append(out, sealedMagic...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plain, nil), nil
}

func (s *CredStore) open(data []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	body := data[len(sealedMagic):]
	if len(body) < aead.NonceSize() {
		return nil, errors.New("credential file truncated")
	}
	nonce, box := body[:aead.NonceSize()], body[aead.NonceSize():]
	return aead.Open(nil, nonce, box, nil)
}
