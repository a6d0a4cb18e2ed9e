package encryption

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/alwitt/strongbox/models"
)

// encodingSeparator separates the parts of the at-rest encoding
const encodingSeparator = ":"

/*
Encode produce the at-rest encoding of a bundle: base64 of key ID, IV, auth tag and
ciphertext joined by ':'

	@param bundle EncryptedBundle - the bundle
	@returns the encoded bundle
*/
func Encode(bundle EncryptedBundle) string {
	return strings.Join([]string{
		base64.StdEncoding.EncodeToString([]byte(bundle.KeyID)),
		base64.StdEncoding.EncodeToString(bundle.IV),
		base64.StdEncoding.EncodeToString(bundle.AuthTag),
		base64.StdEncoding.EncodeToString(bundle.Ciphertext),
	}, encodingSeparator)
}

/*
ParseEncoded split and decode an at-rest encoded bundle

	@param encoded string - the encoded bundle
	@returns the bundle
*/
func ParseEncoded(encoded string) (EncryptedBundle, error) {
	parts := strings.Split(encoded, encodingSeparator)
	if len(parts) != 4 {
		return EncryptedBundle{}, fmt.Errorf(
			"encoded bundle has %d parts, expected 4 [%w]", len(parts), models.ErrBadRequest,
		)
	}
	decoded := make([][]byte, len(parts))
	for idx, part := range parts {
		raw, err := base64.StdEncoding.DecodeString(part)
		if err != nil {
			return EncryptedBundle{}, fmt.Errorf(
				"encoded bundle part %d is not base64 [%w]", idx, models.ErrBadRequest,
			)
		}
		decoded[idx] = raw
	}
	return EncryptedBundle{
		KeyID:      string(decoded[0]),
		IV:         decoded[1],
		AuthTag:    decoded[2],
		Ciphertext: decoded[3],
	}, nil
}

// KeyIDOf the DEK ID an encoded bundle was encrypted with
func KeyIDOf(encoded string) (string, error) {
	bundle, err := ParseEncoded(encoded)
	if err != nil {
		return "", err
	}
	return bundle.KeyID, nil
}
