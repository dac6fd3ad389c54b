package security

import "errors"

var (
	ErrKeyMissing    = errors.New("encryption_key_missing")
	ErrEncryptFailed = errors.New("encrypt_failed")
	ErrDecryptFailed = errors.New("decrypt_failed")
	ErrRateLimited   = errors.New("rate_limited")
)
