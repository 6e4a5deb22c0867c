package kdbxcrypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/spectralops/kdbxpipe/pkg/kdbxerr"
)

// AESCBC implements BlockCipher using AES-256 in CBC mode with PKCS#7
// padding, the only cipher KDBX v3 defines. Grounded on gokeepasslib's
// crypto.AESEncrypter, which performs the same CryptBlocks calls; this
// adapter additionally owns PKCS#7 padding/unpadding, which gokeepasslib
// leaves to its caller.
type AESCBC struct {
	block cipher.Block
	iv    []byte
}

// NewAESCBC builds an AES-256-CBC cipher from a 32-byte key and 16-byte IV.
func NewAESCBC(key, iv []byte) (*AESCBC, error) {
	if len(key) != 32 {
		return nil, kdbxerr.Wrapf("NewAESCBC", kdbxerr.ErrPrimitive, "key must be 32 bytes, got %d", len(key))
	}
	if len(iv) != aes.BlockSize {
		return nil, kdbxerr.Wrapf("NewAESCBC", kdbxerr.ErrPrimitive, "iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, kdbxerr.Wrap("NewAESCBC", fmt.Errorf("%w: %v", kdbxerr.ErrPrimitive, err))
	}
	return &AESCBC{block: block, iv: iv}, nil
}

// Encrypt pads plaintext to a block multiple with PKCS#7 and CBC-encrypts.
func (a *AESCBC) Encrypt(plaintext []byte) ([]byte, error) {
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(a.block, a.iv).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

// Decrypt CBC-decrypts ciphertext and strips PKCS#7 padding. A malformed
// padding byte surfaces as ErrBadPassword: in KDBX v3 the first decrypted
// block is never checked against a padding oracle independent of the
// stream-start-bytes check, so the two failure modes are deliberately
// indistinguishable to the caller, per the spec's error-handling design.
func (a *AESCBC) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, kdbxerr.Wrapf("AESCBC.Decrypt", kdbxerr.ErrBadPassword, "ciphertext length %d is not a multiple of %d", len(ciphertext), aes.BlockSize)
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(a.block, a.iv).CryptBlocks(plaintext, ciphertext)
	return pkcs7Unpad(plaintext)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - (len(data) % blockSize)
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte{}, data...), padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	n := len(data)
	if n == 0 {
		return nil, kdbxerr.Wrap("pkcs7Unpad", kdbxerr.ErrBadPassword)
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > n || padLen > 16 {
		return nil, kdbxerr.Wrap("pkcs7Unpad", kdbxerr.ErrBadPassword)
	}
	for _, b := range data[n-padLen:] {
		if int(b) != padLen {
			return nil, kdbxerr.Wrap("pkcs7Unpad", kdbxerr.ErrBadPassword)
		}
	}
	return data[:n-padLen], nil
}
