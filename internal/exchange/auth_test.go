package exchange

import (
	"encoding/base64"
	"strings"
	"testing"

	"polytrader/internal/config"
)

// Anvil's first well-known development key. Never holds real funds.
const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func newTestAuth(t *testing.T) *Auth {
	t.Helper()
	cfg := config.Config{}
	cfg.Wallet.PrivateKey = testKey
	cfg.Wallet.ChainID = 137
	auth, err := NewAuth(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return auth
}

func TestNewAuthDerivesAddress(t *testing.T) {
	t.Parallel()

	auth := newTestAuth(t)
	want := "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	if auth.Address().Hex() != want {
		t.Errorf("address = %s, want %s", auth.Address().Hex(), want)
	}
	// No funder configured: funder defaults to the signer.
	if auth.FunderAddress() != auth.Address() {
		t.Errorf("funder = %s, want signer", auth.FunderAddress().Hex())
	}

	// 0x prefix is accepted.
	cfg := config.Config{}
	cfg.Wallet.PrivateKey = "0x" + testKey
	cfg.Wallet.ChainID = 137
	prefixed, err := NewAuth(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if prefixed.Address() != auth.Address() {
		t.Error("0x-prefixed key must derive the same address")
	}
}

func TestL1HeadersComplete(t *testing.T) {
	t.Parallel()

	headers, err := newTestAuth(t).L1Headers(0)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"POLY_ADDRESS", "POLY_SIGNATURE", "POLY_TIMESTAMP", "POLY_NONCE"} {
		if headers[key] == "" {
			t.Errorf("header %s missing", key)
		}
	}
	if !strings.HasPrefix(headers["POLY_SIGNATURE"], "0x") || len(headers["POLY_SIGNATURE"]) != 132 {
		t.Errorf("signature %q is not a 65-byte hex signature", headers["POLY_SIGNATURE"])
	}
}

func TestL2HeadersUseCredentials(t *testing.T) {
	t.Parallel()

	auth := newTestAuth(t)
	auth.SetCredentials(Credentials{
		ApiKey:     "key-1",
		Secret:     base64.URLEncoding.EncodeToString([]byte("super-secret")),
		Passphrase: "pass-1",
	})
	if !auth.HasL2Credentials() {
		t.Fatal("credentials should be complete")
	}

	headers, err := auth.L2Headers("POST", "/order", `{"x":1}`)
	if err != nil {
		t.Fatal(err)
	}
	if headers["POLY_API_KEY"] != "key-1" || headers["POLY_PASSPHRASE"] != "pass-1" {
		t.Errorf("headers = %v", headers)
	}
	if _, err := base64.URLEncoding.DecodeString(headers["POLY_SIGNATURE"]); err != nil {
		t.Errorf("signature %q is not url-safe base64: %v", headers["POLY_SIGNATURE"], err)
	}
}

func TestBuildHMACIsDeterministic(t *testing.T) {
	t.Parallel()

	auth := newTestAuth(t)
	auth.SetCredentials(Credentials{
		ApiKey:     "k",
		Secret:     base64.URLEncoding.EncodeToString([]byte("s")),
		Passphrase: "p",
	})

	a, err := auth.buildHMAC("100", "GET", "/balance", "")
	if err != nil {
		t.Fatal(err)
	}
	b, err := auth.buildHMAC("100", "GET", "/balance", "")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("same inputs must produce the same signature")
	}
	c, err := auth.buildHMAC("100", "GET", "/balance", `{"x":1}`)
	if err != nil {
		t.Fatal(err)
	}
	if c == a {
		t.Error("body must change the signature")
	}
}
