package keys

import (
	"encoding/hex"
	"os"
	"path"
	"reflect"
	"testing"

	xcrypto "github.com/mosaicnetworks/xln/src/crypto"
)

func TestSimpleKeyfile(t *testing.T) {
	dir := t.TempDir()

	simpleKeyfile := NewSimpleKeyfile(path.Join(dir, "priv_key"))

	// Try a read, should get nothing
	key, err := simpleKeyfile.ReadKey()
	if err == nil {
		t.Fatalf("ReadKey should generate an error")
	}
	if key != nil {
		t.Fatalf("key is not nil")
	}

	key, _ = GenerateECDSAKey()

	if err := simpleKeyfile.WriteKey(key); err != nil {
		t.Fatalf("err: %v", err)
	}

	nKey, err := simpleKeyfile.ReadKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if !reflect.DeepEqual(DumpPrivateKey(nKey), DumpPrivateKey(key)) {
		t.Fatalf("Keys do not match")
	}
}

func TestFilePermissions(t *testing.T) {
	dir := t.TempDir()

	key, _ := GenerateECDSAKey()
	rawKey := hex.EncodeToString(DumpPrivateKey(key))

	badKeyPath := path.Join(dir, "priv_key_bad")

	shouldErr := []os.FileMode{
		0777, 0766, 0744,
		0677, 0666, 0644,
	}

	for _, fm := range shouldErr {
		os.WriteFile(badKeyPath, []byte(rawKey), fm)
		os.Chmod(badKeyPath, fm)

		if _, err := NewSimpleKeyfile(badKeyPath).ReadKey(); err == nil {
			t.Fatalf("%o || badKeyFile should return permissions error", fm)
		}
	}

	goodKeyPath := path.Join(dir, "priv_key_good")

	for _, fm := range []os.FileMode{0700, 0600, 0400} {
		os.WriteFile(goodKeyPath, []byte(rawKey), fm)
		os.Chmod(goodKeyPath, fm)

		if _, err := NewSimpleKeyfile(goodKeyPath).ReadKey(); err != nil {
			t.Fatalf("%o || goodKeyFile should not return error. Got %v", fm, err)
		}
	}
}

func TestSignAndRecover(t *testing.T) {
	privKey, _ := GenerateECDSAKey()
	address := AddressHex(&privKey.PublicKey)

	digest := xcrypto.Keccak256([]byte("J'aime mieux forger mon ame que la meubler"))

	sig, err := SignDigest(privKey, digest)
	if err != nil {
		t.Fatal(err)
	}

	signer, err := RecoverAddress(digest, sig)
	if err != nil {
		t.Fatal(err)
	}
	if signer != address {
		t.Fatalf("recovered %s, want %s", signer, address)
	}

	if !VerifyDigest(address, digest, sig) {
		t.Fatalf("VerifyDigest returned false")
	}

	other := xcrypto.Keccak256([]byte("something else"))
	if VerifyDigest(address, other, sig) {
		t.Fatalf("signature verified over the wrong digest")
	}
}

func TestParsePublicKeyHex(t *testing.T) {
	privKey, _ := GenerateECDSAKey()

	pub, err := ParsePublicKeyHex(PublicKeyHex(&privKey.PublicKey))
	if err != nil {
		t.Fatal(err)
	}

	if AddressHex(pub) != AddressHex(&privKey.PublicKey) {
		t.Fatalf("parsed key derives a different address")
	}

	if _, err := ParsePublicKeyHex("0x1234"); err == nil {
		t.Fatalf("expected error on malformed key")
	}
}
