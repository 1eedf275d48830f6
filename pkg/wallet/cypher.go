package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/crypto/scrypt"
)

const saltSize = 32

// KDFParams are the scrypt cost parameters used to stretch a passphrase
// into an AES-256 key.
type KDFParams struct {
	N int `json:"n"`
	R int `json:"r"`
	P int `json:"p"`
}

var (
	// DefaultKDFParams are the recommended parameters for interactive logins
	// storing long lived secrets; 2^20 = 1048576 for key-stretching.
	// https://godoc.org/golang.org/x/crypto/scrypt
	DefaultKDFParams = KDFParams{N: 1 << 20, R: 8, P: 1}
	// LightKDFParams are cheap parameters, useful for tests and regtest only.
	LightKDFParams = KDFParams{N: 1 << 10, R: 8, P: 1}
)

func (p KDFParams) validate() error {
	if p.N <= 1 || p.N&(p.N-1) != 0 || p.R <= 0 || p.P <= 0 {
		return ErrInvalidKDFParams
	}
	return nil
}

// EncryptOpts is the struct given to Encrypt method
type EncryptOpts struct {
	PlainText  []byte
	Passphrase string
	// Params defaults to DefaultKDFParams if zero.
	Params KDFParams
}

func (o *EncryptOpts) validate() error {
	if len(o.PlainText) <= 0 {
		return ErrNullPlainText
	}
	if len(o.Passphrase) <= 0 {
		return ErrNullPassphrase
	}
	if o.Params == (KDFParams{}) {
		o.Params = DefaultKDFParams
	}
	return o.Params.validate()
}

// Encrypt encrypts (with AES-256-GCM) a plaintext with a key derived from the
// provided passphrase. The result is base64(nonce | ciphertext | salt).
func Encrypt(opts EncryptOpts) (string, error) {
	if err := opts.validate(); err != nil {
		return "", err
	}

	key, salt, err := DeriveKey([]byte(opts.Passphrase), nil, opts.Params)
	if err != nil {
		return "", err
	}
	defer zero(key)

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, opts.PlainText, nil)
	ciphertext = append(ciphertext, salt...)

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptOpts is the struct given to Decrypt method
type DecryptOpts struct {
	CypherText string
	Passphrase string
	// Params defaults to DefaultKDFParams if zero.
	Params KDFParams
}

func (o *DecryptOpts) validate() error {
	if len(o.CypherText) <= 0 {
		return ErrNullCypherText
	}
	if _, err := base64.StdEncoding.DecodeString(o.CypherText); err != nil {
		return ErrInvalidCypherText
	}
	if len(o.Passphrase) <= 0 {
		return ErrNullPassphrase
	}
	if o.Params == (KDFParams{}) {
		o.Params = DefaultKDFParams
	}
	return o.Params.validate()
}

// Decrypt decrypts (with AES-256-GCM) a cyphertext with the provided
// passphrase. A wrong passphrase results in ErrDecryptionFailed.
func Decrypt(opts DecryptOpts) ([]byte, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	data, _ := base64.StdEncoding.DecodeString(opts.CypherText)
	if len(data) <= saltSize {
		return nil, ErrInvalidCypherText
	}
	salt, data := data[len(data)-saltSize:], data[:len(data)-saltSize]

	key, _, err := DeriveKey([]byte(opts.Passphrase), salt, opts.Params)
	if err != nil {
		return nil, err
	}
	defer zero(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize() {
		return nil, ErrInvalidCypherText
	}
	nonce, text := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, text, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// DeriveKey derives a 32 byte array key from a custom passhprase. A random
// salt is generated if none is given.
func DeriveKey(passphrase, salt []byte, params KDFParams) ([]byte, []byte, error) {
	if err := params.validate(); err != nil {
		return nil, nil, err
	}
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, err
		}
	}
	key, err := scrypt.Key(passphrase, salt, params.N, params.R, params.P, 32)
	if err != nil {
		return nil, nil, err
	}
	return key, salt, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	blockCipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(blockCipher)
}

// Zero overwrites the given buffer with zeroes.
func Zero(buf []byte) {
	zero(buf)
}

func zero(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
