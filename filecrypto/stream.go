// Package filecrypto implements the large-file streaming envelope:
// spec.md §4.3. A per-file data key is wrapped by an access key (the
// same way a field's data key is, via the active crypto.Suite's
// secret encryption) and the file body is encrypted with an
// authenticated stream cipher in 64 KiB chunks, so encrypt/decrypt use
// bounded memory regardless of file size.
//
// The stream cipher itself (XChaCha20-Poly1305) is not suite-
// polymorphic: spec.md §9 notes the NIST file mode is unspecified, so
// one implementation serves both crypto.Suite choices — only the
// per-file data key's wrapping (the header's edk/edkN) goes through
// whichever Suite is active.
package filecrypto

import (
	"bytes"
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/chacha20poly1305"

	sagecrypto "github.com/tozny/e3db-go/crypto"
)

const (
	// HeaderVersion is the fixed file-envelope version. A mismatch is
	// fatal before any plaintext is emitted.
	HeaderVersion = "3"

	// ChunkSize is the plaintext size of every chunk except the last.
	ChunkSize = 65536

	tagMessage byte = 0x00
	tagFinal   byte = 0x01

	// headerPeekSize is the amount read from the front of an encrypted
	// file to locate the three leading dotted segments; a typical
	// filesystem block.
	headerPeekSize = 4096
)

// Encrypt reads srcPath, encrypts it under a fresh data key wrapped by
// ak, and writes the resulting envelope to dstPath. It returns the
// Base64-encoded MD5 checksum of the entire output file, suitable for
// use as Content-MD5 on upload.
func Encrypt(suite sagecrypto.Suite, ak []byte, srcPath, dstPath string) (checksum string, err error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("filecrypto: open source: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("filecrypto: create destination: %w", err)
	}
	defer dst.Close()

	dk, err := suite.RandomKey()
	if err != nil {
		return "", err
	}
	edkN, err := suite.RandomNonce()
	if err != nil {
		return "", err
	}
	edk, err := suite.EncryptSecret(ak, dk, edkN)
	if err != nil {
		return "", err
	}

	hash := md5.New()
	w := io.MultiWriter(dst, hash)

	header := fmt.Sprintf("%s.%s.%s.", HeaderVersion, suite.Base64URLEncode(edk), suite.Base64URLEncode(edkN))
	if _, err := io.WriteString(w, header); err != nil {
		return "", fmt.Errorf("filecrypto: write header: %w", err)
	}

	aead, err := chacha20poly1305.NewX(dk)
	if err != nil {
		return "", sagecrypto.NewError("new stream cipher", err)
	}

	streamNonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rand.Reader, streamNonce); err != nil {
		return "", sagecrypto.NewError("random stream nonce", err)
	}
	if _, err := w.Write(streamNonce); err != nil {
		return "", fmt.Errorf("filecrypto: write stream header: %w", err)
	}

	if err := encryptChunks(aead, streamNonce, src, w); err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(hash.Sum(nil)), nil
}

// encryptChunks implements the two-block sliding window from spec.md
// §4.3: block A is buffered, block B is read to detect end-of-file, so
// exactly one FINAL chunk is emitted even when the plaintext length is
// an exact multiple of ChunkSize.
func encryptChunks(aead chunkAEAD, baseNonce []byte, src io.Reader, dst io.Writer) error {
	var counter uint64
	seal := func(plain []byte, tag byte) error {
		nonce := chunkNonce(baseNonce, counter)
		counter++
		ct := aead.Seal(nil, nonce, plain, []byte{tag})
		if _, err := dst.Write([]byte{tag}); err != nil {
			return fmt.Errorf("filecrypto: write chunk tag: %w", err)
		}
		if _, err := dst.Write(ct); err != nil {
			return fmt.Errorf("filecrypto: write chunk: %w", err)
		}
		return nil
	}

	a := make([]byte, ChunkSize)
	an, aErr := io.ReadFull(src, a)
	if aErr == io.EOF {
		return seal(nil, tagFinal)
	}
	if aErr != nil && aErr != io.ErrUnexpectedEOF {
		return fmt.Errorf("filecrypto: read source: %w", aErr)
	}

	for {
		b := make([]byte, ChunkSize)
		bn, bErr := io.ReadFull(src, b)
		if bErr != nil && bErr != io.EOF && bErr != io.ErrUnexpectedEOF {
			return fmt.Errorf("filecrypto: read source: %w", bErr)
		}
		if bn == 0 {
			return seal(a[:an], tagFinal)
		}
		if err := seal(a[:an], tagMessage); err != nil {
			return err
		}
		a, an = b, bn
	}
}

// chunkAEAD is the minimal surface encryptChunks/decryptChunks need;
// *chacha20poly1305's concrete type satisfies it.
type chunkAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

// chunkNonce derives a per-chunk nonce from the stream's base nonce by
// XORing a big-endian counter into its final bytes, so every chunk in
// a stream is authenticated under a distinct nonce without needing to
// transmit one per chunk.
func chunkNonce(base []byte, counter uint64) []byte {
	n := make([]byte, len(base))
	copy(n, base)
	for i := 0; i < 8; i++ {
		n[len(n)-1-i] ^= byte(counter >> (8 * i))
	}
	return n
}

// Decrypt reverses Encrypt. It opens srcPath once to parse the header
// (computing the byte offset where the stream body begins) and again
// to stream the body, so the header handle can be released before the
// (potentially large) body is processed; dstPath is held open for the
// duration. All three handles are released on every exit path.
func Decrypt(suite sagecrypto.Suite, ak []byte, srcPath, dstPath string) error {
	edk, edkN, headerLen, err := parseHeader(srcPath)
	if err != nil {
		return err
	}

	dk, err := suite.DecryptSecret(ak, edk, edkN)
	if err != nil {
		return sagecrypto.NewError("unwrap file data key", err)
	}

	stream, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("filecrypto: open source: %w", err)
	}
	defer stream.Close()
	if _, err := stream.Seek(headerLen, io.SeekStart); err != nil {
		return fmt.Errorf("filecrypto: seek past header: %w", err)
	}

	streamNonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(stream, streamNonce); err != nil {
		return fmt.Errorf("filecrypto: read stream header: %w", err)
	}

	aead, err := chacha20poly1305.NewX(dk)
	if err != nil {
		return sagecrypto.NewError("new stream cipher", err)
	}

	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("filecrypto: create destination: %w", err)
	}
	defer dst.Close()

	return decryptChunks(aead, streamNonce, stream, dst)
}

func decryptChunks(aead chunkAEAD, baseNonce []byte, src io.Reader, dst io.Writer) error {
	var counter uint64
	for {
		var tagBuf [1]byte
		if _, err := io.ReadFull(src, tagBuf[:]); err != nil {
			return fmt.Errorf("filecrypto: read chunk tag: %w", err)
		}
		tag := tagBuf[0]
		if tag != tagMessage && tag != tagFinal {
			return sagecrypto.NewError("decrypt file", fmt.Errorf("unknown chunk tag %#x", tag))
		}

		ct := make([]byte, ChunkSize+chacha20poly1305.Overhead)
		n, err := io.ReadFull(src, ct)
		if err == io.ErrUnexpectedEOF {
			ct = ct[:n]
		} else if err != nil && err != io.EOF {
			return fmt.Errorf("filecrypto: read chunk: %w", err)
		}

		nonce := chunkNonce(baseNonce, counter)
		counter++
		plain, err := aead.Open(nil, nonce, ct, []byte{tag})
		if err != nil {
			return sagecrypto.NewError("decrypt chunk", err)
		}
		if _, err := dst.Write(plain); err != nil {
			return fmt.Errorf("filecrypto: write plaintext: %w", err)
		}
		if tag == tagFinal {
			return nil
		}
	}
}

// parseHeader reads up to headerPeekSize bytes from path and splits
// out the version/edk/edkN segments. Base64URL has no "." in its
// alphabet, so splitting on the first three dots is unambiguous even
// though the remainder of the peek buffer holds arbitrary stream
// bytes that may themselves contain "." byte values.
func parseHeader(path string) (edk, edkN []byte, headerLen int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("filecrypto: open source: %w", err)
	}
	defer f.Close()

	buf := make([]byte, headerPeekSize)
	n, rErr := io.ReadFull(f, buf)
	if rErr != nil && rErr != io.ErrUnexpectedEOF && rErr != io.EOF {
		return nil, nil, 0, fmt.Errorf("filecrypto: read header: %w", rErr)
	}
	buf = buf[:n]

	parts := bytes.SplitN(buf, []byte{'.'}, 4)
	if len(parts) < 4 {
		return nil, nil, 0, sagecrypto.NewError("parse file header", fmt.Errorf("truncated header"))
	}
	if string(parts[0]) != HeaderVersion {
		return nil, nil, 0, sagecrypto.NewError("parse file header", fmt.Errorf("unsupported file version %q", parts[0]))
	}
	edk, err = base64.RawURLEncoding.DecodeString(string(parts[1]))
	if err != nil {
		return nil, nil, 0, sagecrypto.NewError("parse file header", fmt.Errorf("edk: %w", err))
	}
	edkN, err = base64.RawURLEncoding.DecodeString(string(parts[2]))
	if err != nil {
		return nil, nil, 0, sagecrypto.NewError("parse file header", fmt.Errorf("edkN: %w", err))
	}

	headerLen = int64(len(buf) - len(parts[3]))
	return edk, edkN, headerLen, nil
}
