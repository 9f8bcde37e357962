// Package config holds the oracled runtime configuration, populated from
// flags or the environment.
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"lol.mleku.dev/chk"
	"lol.mleku.dev/errorf"
	"next.orly.dev/pkg/encoders/bech32encoding"
	"next.orly.dev/pkg/encoders/hex"
)

// C is the daemon configuration.
type C struct {
	DatabaseURL      string `arg:"--database-url,env:DATABASE_URL" help:"badger database directory (default ~/.oracled/db)"`
	Port             int    `arg:"--port,env:PORT" default:"8080" help:"HTTP listen port"`
	SigningKeySecret string `arg:"--signing-key-secret,env:SIGNING_KEY_SECRET" help:"oracle signing key, 64 character hex or nsec bech32"`
	Relays           string `arg:"--relays,env:RELAYS" default:"wss://relay.damus.io" help:"whitespace separated relay URLs"`
	OracleName       string `arg:"--oracle-name,env:ORACLE_NAME" default:"oracled" help:"oracle display name stored in the database metadata"`
	LogLevel         string `arg:"--log-level,env:LOG_LEVEL" default:"info" help:"log level (trace, debug, info, warn, error, fatal)"`
}

// DatabaseDir resolves the database directory, defaulting under the user's
// home.
func (c *C) DatabaseDir() (dir string) {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	home, err := os.UserHomeDir()
	if chk.E(err) {
		return filepath.Join(".", ".oracled", "db")
	}
	return filepath.Join(home, ".oracled", "db")
}

// RelayList splits the relay configuration on whitespace.
func (c *C) RelayList() (relays []string) {
	return strings.Fields(c.Relays)
}

// SecretKey decodes the signing key from its hex or nsec form.
func (c *C) SecretKey() (sec *btcec.PrivateKey, err error) {
	s := strings.TrimSpace(c.SigningKeySecret)
	if s == "" {
		err = errorf.E("SIGNING_KEY_SECRET is not set")
		return
	}
	var b []byte
	if strings.HasPrefix(s, string(bech32encoding.SecHRP)) {
		var prefix []byte
		var value any
		if prefix, value, err = bech32encoding.Decode([]byte(s)); chk.E(err) {
			return
		}
		if !bytes.Equal(prefix, bech32encoding.SecHRP) {
			err = errorf.E("unexpected bech32 prefix %s on signing key",
				prefix)
			return
		}
		hexSec, ok := value.([]byte)
		if !ok {
			err = errorf.E("unexpected payload type in nsec")
			return
		}
		if b, err = hex.Dec(string(hexSec)); chk.E(err) {
			return
		}
	} else {
		if b, err = hex.Dec(s); chk.E(err) {
			return
		}
	}
	if len(b) != 32 {
		err = errorf.E("signing key is %d bytes, want 32", len(b))
		return
	}
	sec, _ = btcec.PrivKeyFromBytes(b)
	if sec.Key.IsZero() {
		sec = nil
		err = errorf.E("signing key is the zero scalar")
	}
	return
}
