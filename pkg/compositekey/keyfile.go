package compositekey

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"regexp"

	"github.com/spectralops/kdbxpipe/pkg/kdbxcrypto"
	"github.com/spectralops/kdbxpipe/pkg/kdbxerr"
)

// FactorFromPassword returns the password credential factor: SHA-256 of
// the UTF-8 password bytes.
func FactorFromPassword(password string) []byte {
	sum := kdbxcrypto.Sum256([]byte(password))
	return sum[:]
}

// keyFileDataPattern extracts the base64 payload of a KeePass XML key
// file's <Key><Data>...</Data> element. Grounded on gokeepasslib's
// credentials.go keyDataPattern; the XML form never nests attributes
// inside the element this library needs, so a regexp match is sufficient
// without a full XML parse (XML parsing of the database content itself
// remains an external collaborator, per the spec's Non-goals, and a key
// file is small enough that a regexp scan carries no streaming cost).
var keyFileDataPattern = regexp.MustCompile(`<Data>(.+)</Data>`)

// FactorFromKeyFileData derives the key-file credential factor from the
// raw contents of a key file, dispatching on its form per the spec's
// CompositeKey factor table:
//
//   - XML form (<Key><Data>...): base64-decoded payload, must be 32 bytes.
//   - 32 raw bytes: used as-is.
//   - 64 hex characters: hex-decoded to 32 bytes.
//   - anything else: SHA-256 of the whole file.
func FactorFromKeyFileData(data []byte) ([]byte, error) {
	if keyFileDataPattern.Match(data) {
		base := keyFileDataPattern.FindSubmatch(data)[1]
		decoded := make([]byte, base64.StdEncoding.DecodedLen(len(base)))
		n, err := base64.StdEncoding.Decode(decoded, base)
		if err != nil {
			return nil, kdbxerr.Wrap("FactorFromKeyFileData", err)
		}
		decoded = decoded[:n]
		if len(decoded) != 32 {
			return nil, kdbxerr.Wrapf("FactorFromKeyFileData", kdbxerr.ErrMalformedHeader, "xml key file data must decode to 32 bytes, got %d", len(decoded))
		}
		return decoded, nil
	}

	if len(data) == 32 {
		out := make([]byte, 32)
		copy(out, data)
		return out, nil
	}

	if len(data) == 64 && isHex(data) {
		decoded, err := hex.DecodeString(string(data))
		if err != nil {
			return nil, kdbxerr.Wrap("FactorFromKeyFileData", err)
		}
		return decoded, nil
	}

	sum := kdbxcrypto.Sum256(data)
	return sum[:], nil
}

func isHex(data []byte) bool {
	for _, b := range data {
		if !bytes.ContainsRune([]byte("0123456789abcdefABCDEF"), rune(b)) {
			return false
		}
	}
	return true
}
