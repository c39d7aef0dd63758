// Package security holds the cryptographic primitives of the license gate.
//
// A Keyring owns the two server secrets: the lookup secret used to index
// license keys by HMAC and derive watermark tokens, and the at-rest key used
// to seal license keys and team private keys with AES-256-GCM. Sealed blobs
// use the text format
//
//	hex(iv) ":" hex(ciphertext) ":" hex(tag)
//
// with a 16 byte IV.
//
// Team keypairs are RSA. Challenges are signed with PKCS#1 v1.5 over SHA-256
// and session keys are unwrapped with OAEP over SHA-256.
//
// Downloads are framed by the stream codec. Every frame is
//
//	[length u32 big-endian][iv 12][tag 16][ciphertext length-28]
//
// where each frame seals one plaintext chunk with AES-256-GCM keyed by
// SHA-256 of the session key. There is no trailer; the total encoded size is
// carried out of band (see EncodedSize).
package security
