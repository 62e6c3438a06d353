package filecrypto_test

import (
	"bytes"
	"crypto/md5"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	sagecrypto "github.com/tozny/e3db-go/crypto"
	"github.com/tozny/e3db-go/crypto/sodium"
	"github.com/tozny/e3db-go/filecrypto"
)

func writeTemp(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return p
}

func roundTrip(t *testing.T, plain []byte) {
	t.Helper()
	suite := sodium.New()
	ak, err := suite.RandomKey()
	require.NoError(t, err)

	dir := t.TempDir()
	src := writeTemp(t, dir, "plain.bin", plain)
	enc := filepath.Join(dir, "enc.bin")
	dec := filepath.Join(dir, "dec.bin")

	checksum, err := filecrypto.Encrypt(suite, ak, src, enc)
	require.NoError(t, err)

	encBytes, err := os.ReadFile(enc)
	require.NoError(t, err)
	sum := md5.Sum(encBytes)
	require.Equal(t, base64.StdEncoding.EncodeToString(sum[:]), checksum)

	require.NoError(t, filecrypto.Decrypt(suite, ak, enc, dec))

	got, err := os.ReadFile(dec)
	require.NoError(t, err)
	require.True(t, bytes.Equal(plain, got))
}

func TestFileRoundTripEmpty(t *testing.T) {
	roundTrip(t, nil)
}

func TestFileRoundTripSmall(t *testing.T) {
	roundTrip(t, []byte("small file contents"))
}

func TestFileRoundTripExactChunkBoundary(t *testing.T) {
	roundTrip(t, bytes.Repeat([]byte("x"), filecrypto.ChunkSize))
}

func TestFileRoundTripMultiChunk(t *testing.T) {
	roundTrip(t, bytes.Repeat([]byte("y"), filecrypto.ChunkSize*2+123))
}

func TestFileDecryptRejectsWrongKey(t *testing.T) {
	suite := sodium.New()
	ak, err := suite.RandomKey()
	require.NoError(t, err)
	other, err := suite.RandomKey()
	require.NoError(t, err)

	dir := t.TempDir()
	src := writeTemp(t, dir, "plain.bin", []byte("top secret"))
	enc := filepath.Join(dir, "enc.bin")
	dec := filepath.Join(dir, "dec.bin")

	_, err = filecrypto.Encrypt(suite, ak, src, enc)
	require.NoError(t, err)

	err = filecrypto.Decrypt(suite, other, enc, dec)
	require.Error(t, err)
	var cryptoErr *sagecrypto.Error
	require.ErrorAs(t, err, &cryptoErr)
}

func TestFileDecryptRejectsTamperedChunk(t *testing.T) {
	suite := sodium.New()
	ak, err := suite.RandomKey()
	require.NoError(t, err)

	dir := t.TempDir()
	src := writeTemp(t, dir, "plain.bin", bytes.Repeat([]byte("z"), filecrypto.ChunkSize+10))
	enc := filepath.Join(dir, "enc.bin")
	dec := filepath.Join(dir, "dec.bin")

	_, err = filecrypto.Encrypt(suite, ak, src, enc)
	require.NoError(t, err)

	data, err := os.ReadFile(enc)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(enc, data, 0o600))

	err = filecrypto.Decrypt(suite, ak, enc, dec)
	require.Error(t, err)
}
