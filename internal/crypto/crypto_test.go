package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestPathSignature(t *testing.T) {
	// Published Kraken REST authentication example.
	auth := HMACAuth{
		Key:    "key",
		Secret: "kQH5HW/8p1uGOVjbgWA7FunAmGO8lsSUXNsu3eow76sz84Q18fWxnyRzBHCd3pd5nE9qa99HAZtuZuj6F1huXg==",
	}
	sig, err := auth.PathSignature(
		"/0/private/AddOrder",
		"1616492376594",
		"nonce=1616492376594&ordertype=limit&pair=XBTUSD&price=37500&type=buy&volume=1.25",
	)
	if err != nil {
		t.Fatalf("PathSignature: %v", err)
	}
	want := "4/dpxb3iT4tp/ZCVEwSnEsLxx0bqyhLpdfOpc6fn7OR8+UClSV5n9E6aSS8MPtnRfp32bAb0nmbRn6H8ndwLUQ=="
	if sig != want {
		t.Errorf("signature = %s, want %s", sig, want)
	}

	bad := HMACAuth{Key: "key", Secret: "not base64!"}
	if _, err := bad.PathSignature("/0/private/Balance", "1", "nonce=1"); err == nil {
		t.Error("expected error for a non-base64 secret")
	}
}

func TestURISignature(t *testing.T) {
	auth := HMACAuth{Key: "key", Secret: "secret"}
	got := auth.URISignature("https://bittrex.com/api/v1.1/account/getbalances?apikey=key&nonce=1")
	want := "097aa5839abf3e689422f43994a1a2b5ca0c117f75c66e8b6901d15a856719977e25bdbf677d9f330630807b4899d2cbcfba2aac1da962683f20d57c3eec9bd2"
	if got != want {
		t.Errorf("signature = %s, want %s", got, want)
	}
}

func TestHMACAuthStringRedacts(t *testing.T) {
	auth := HMACAuth{Key: "abcdefgh", Secret: "supersecret"}
	s := auth.String()
	if strings.Contains(s, "supersecret") || strings.Contains(s, "abcdefgh") {
		t.Errorf("String leaks credentials: %s", s)
	}
}

func TestNonceStrictlyIncreasing(t *testing.T) {
	frozen := time.Unix(1700000000, 0)
	n := &Nonce{now: func() time.Time { return frozen }}

	var (
		mu   sync.Mutex
		seen = map[string]bool{}
		wg   sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := n.Next()
			mu.Lock()
			seen[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(seen) != 50 {
		t.Errorf("got %d distinct nonces, want 50", len(seen))
	}
}

func TestEncryptDecryptKey(t *testing.T) {
	auth := HMACAuth{Key: "api-key", Secret: "api-secret"}
	blob, err := EncryptKey(auth, "hunter2")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}
	if strings.Contains(string(blob), "api-secret") {
		t.Fatal("ciphertext contains the plaintext secret")
	}

	got, err := DecryptKey(blob, "hunter2")
	if err != nil {
		t.Fatalf("DecryptKey: %v", err)
	}
	if got != auth {
		t.Errorf("round trip = %+v, want %+v", got, auth)
	}

	if _, err := DecryptKey(blob, "wrong"); err == nil {
		t.Error("expected error for a wrong password")
	}
	if _, err := EncryptKey(auth, ""); err == nil {
		t.Error("expected error for an empty password")
	}
}

func TestLoadKey(t *testing.T) {
	dir := t.TempDir()

	plain := filepath.Join(dir, "kraken.json")
	if err := os.WriteFile(plain, []byte(`{"key":"k1","secret":"s1"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	auth, err := LoadKey(KeyConfig{KeyPath: plain})
	if err != nil || auth.Key != "k1" || auth.Secret != "s1" {
		t.Errorf("plain LoadKey = %+v, %v", auth, err)
	}

	blob, err := EncryptKey(HMACAuth{Key: "k2", Secret: "s2"}, "pw")
	if err != nil {
		t.Fatal(err)
	}
	enc := filepath.Join(dir, "bittrex.enc.json")
	if err := os.WriteFile(enc, blob, 0o600); err != nil {
		t.Fatal(err)
	}
	auth, err = LoadKey(KeyConfig{KeyPath: plain, EncryptedKeyPath: enc, KeyPassword: "pw"})
	if err != nil || auth.Key != "k2" {
		t.Errorf("encrypted LoadKey = %+v, %v", auth, err)
	}

	incomplete := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(incomplete, []byte(`{"key":"k3"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadKey(KeyConfig{KeyPath: incomplete}); err == nil {
		t.Error("expected error for a key file without a secret")
	}
	if _, err := LoadKey(KeyConfig{}); err == nil {
		t.Error("expected error with no key source")
	}
}
