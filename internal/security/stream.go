package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const (
	// FrameIVSize is the per-frame GCM nonce length
	FrameIVSize = 12
	// FrameTagSize is the GCM tag length
	FrameTagSize = 16
	// FrameOverhead is the part of length not taken by ciphertext
	FrameOverhead = FrameIVSize + FrameTagSize
	// FrameHeaderSize is the length prefix
	FrameHeaderSize = 4

	// DefaultChunkSize is the plaintext bytes sealed per frame
	DefaultChunkSize = 64 << 10
	// MaxFrameLength bounds what the decoder accepts for a single frame
	MaxFrameLength = 16<<20 + FrameOverhead
)

// SessionKeyHash identifies a session key without revealing it
func SessionKeyHash(sessionKey []byte) string {
	sum := sha256.Sum256(sessionKey)
	return hex.EncodeToString(sum[:])
}

func streamAEAD(sessionKey []byte) (cipher.AEAD, error) {
	key := sha256.Sum256(sessionKey)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// EncodedSize is the number of bytes the encoder emits for plainSize bytes
func EncodedSize(plainSize int64, chunkSize int) int64 {
	if plainSize <= 0 {
		return 0
	}
	chunk := int64(chunkSize)
	frames := plainSize / chunk
	size := frames * (chunk + FrameHeaderSize + FrameOverhead)
	if rem := plainSize % chunk; rem > 0 {
		size += rem + FrameHeaderSize + FrameOverhead
	}
	return size
}

// Encrypter frames a plaintext stream. It reads one chunk from the source
// only when the previous frame has been fully consumed.
type Encrypter struct {
	src   io.Reader
	aead  cipher.AEAD
	chunk []byte
	frame []byte
	off   int
	err   error
}

// NewStreamEncrypter wraps src. chunkSize <= 0 selects DefaultChunkSize.
func NewStreamEncrypter(src io.Reader, sessionKey []byte, chunkSize int) (*Encrypter, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize+FrameOverhead > MaxFrameLength {
		return nil, fmt.Errorf("chunk size %d exceeds maximum frame length", chunkSize)
	}

	aead, err := streamAEAD(sessionKey)
	if err != nil {
		return nil, err
	}

	return &Encrypter{
		src:   src,
		aead:  aead,
		chunk: make([]byte, chunkSize),
		frame: make([]byte, 0, FrameHeaderSize+FrameOverhead+chunkSize),
	}, nil
}

// Read implements io.Reader
func (e *Encrypter) Read(p []byte) (int, error) {
	for e.off >= len(e.frame) {
		if e.err != nil {
			return 0, e.err
		}
		if err := e.fill(); err != nil {
			e.err = err
		}
	}

	n := copy(p, e.frame[e.off:])
	e.off += n
	return n, nil
}

// fill seals the next chunk into e.frame. It returns io.EOF once the source
// is drained; a final short chunk is still emitted before that.
func (e *Encrypter) fill() error {
	e.frame = e.frame[:0]
	e.off = 0

	n, err := io.ReadFull(e.src, e.chunk)
	if n > 0 {
		if sealErr := e.seal(e.chunk[:n]); sealErr != nil {
			return sealErr
		}
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return io.EOF
	default:
		return err
	}
}

func (e *Encrypter) seal(plaintext []byte) error {
	var iv [FrameIVSize]byte
	if _, err := rand.Read(iv[:]); err != nil {
		return fmt.Errorf("failed to generate iv: %w", err)
	}

	sealed := e.aead.Seal(nil, iv[:], plaintext, nil)
	ciphertext, tag := sealed[:len(plaintext)], sealed[len(plaintext):]

	e.frame = binary.BigEndian.AppendUint32(e.frame, uint32(FrameOverhead+len(ciphertext)))
	e.frame = append(e.frame, iv[:]...)
	e.frame = append(e.frame, tag...)
	e.frame = append(e.frame, ciphertext...)
	return nil
}

// Decrypter reverses Encrypter. The first bad frame makes every later Read
// return ErrDecryptionFailed.
type Decrypter struct {
	src     io.Reader
	aead    cipher.AEAD
	header  [FrameHeaderSize]byte
	body    []byte
	scratch []byte
	plain   []byte
	off     int
	err     error
}

// NewStreamDecrypter wraps a framed stream
func NewStreamDecrypter(src io.Reader, sessionKey []byte) (*Decrypter, error) {
	aead, err := streamAEAD(sessionKey)
	if err != nil {
		return nil, err
	}
	return &Decrypter{src: src, aead: aead}, nil
}

// Read implements io.Reader
func (d *Decrypter) Read(p []byte) (int, error) {
	for d.off >= len(d.plain) {
		if d.err != nil {
			return 0, d.err
		}
		if err := d.next(); err != nil {
			d.err = err
		}
	}

	n := copy(p, d.plain[d.off:])
	d.off += n
	return n, nil
}

func (d *Decrypter) next() error {
	d.plain = d.plain[:0]
	d.off = 0

	if _, err := io.ReadFull(d.src, d.header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return ErrDecryptionFailed
	}

	length := int(binary.BigEndian.Uint32(d.header[:]))
	if length < FrameOverhead || length > MaxFrameLength {
		return ErrDecryptionFailed
	}

	if cap(d.body) < length {
		d.body = make([]byte, length)
	}
	d.body = d.body[:length]
	if _, err := io.ReadFull(d.src, d.body); err != nil {
		return ErrDecryptionFailed
	}

	iv := d.body[:FrameIVSize]
	tag := d.body[FrameIVSize:FrameOverhead]
	ciphertext := d.body[FrameOverhead:]

	d.scratch = append(append(d.scratch[:0], ciphertext...), tag...)
	plain, err := d.aead.Open(d.plain[:0], iv, d.scratch, nil)
	if err != nil {
		return ErrDecryptionFailed
	}
	d.plain = plain
	return nil
}
