// Package main runs the DLC oracle daemon: it loads the signing key and
// database, verifies the stored oracle identity, and serves the HTTP API
// while publishing announcements and attestations to the configured Nostr
// relays.
package main

import (
	"bytes"
	"fmt"
	"net/http"
	"os"

	"context"
	"github.com/alexflint/go-arg"
	"lol.mleku.dev"
	"lol.mleku.dev/chk"
	"lol.mleku.dev/log"
	"next.orly.dev/pkg/encoders/bech32encoding"
	"next.orly.dev/pkg/encoders/hex"
	"next.orly.dev/pkg/utils/interrupt"
	"next.orly.dev/pkg/utils/qu"

	"oracle.mleku.dev/pkg/app/config"
	"oracle.mleku.dev/pkg/database"
	"oracle.mleku.dev/pkg/oracle"
	"oracle.mleku.dev/pkg/protocol/openapi"
	"oracle.mleku.dev/pkg/protocol/publish"
)

func main() {
	var cfg config.C
	arg.MustParse(&cfg)
	lol.SetLogLevel(cfg.LogLevel)
	if err := run(&cfg); err != nil {
		log.F.F("%s", err)
		os.Exit(1)
	}
}

func run(cfg *config.C) (err error) {
	sec, err := cfg.SecretKey()
	if chk.E(err) {
		return
	}
	c, cancel := context.WithCancel(context.Background())
	defer cancel()
	db, err := database.New(cfg.DatabaseDir())
	if chk.E(err) {
		return
	}
	defer db.Close()
	o, err := oracle.New(db, sec)
	if chk.E(err) {
		return
	}
	pub := o.PublicKey()
	// refuse to serve a database keyed to a different oracle
	md, err := db.GetMetadata(c)
	if chk.E(err) {
		return
	}
	if md == nil {
		if err = db.UpsertMetadata(
			c, &database.Metadata{Pubkey: pub[:], Name: cfg.OracleName},
		); chk.E(err) {
			return
		}
	} else if !bytes.Equal(md.Pubkey, pub[:]) {
		return fmt.Errorf(
			"database oracle pubkey %s does not match signing key %s",
			hex.Enc(md.Pubkey), hex.Enc(pub[:]),
		)
	}
	if npub, e := bech32encoding.HexToNpub(
		[]byte(hex.Enc(pub[:])),
	); !chk.E(e) {
		log.I.F("oracle pubkey %s (%s)", hex.Enc(pub[:]), npub)
	}
	publisher := publish.New(cfg.RelayList())
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: openapi.Handler(o, publisher, "oracled", "0.1.0"),
	}
	quit := qu.T()
	interrupt.AddHandler(func() { quit.Q() })
	go func() {
		log.I.F("listening on %s", server.Addr)
		if e := server.ListenAndServe(); e != nil &&
			e != http.ErrServerClosed {
			chk.E(e)
			quit.Q()
		}
	}()
	<-quit.Wait()
	log.I.F("shutting down")
	if err = server.Shutdown(c); chk.E(err) {
		return
	}
	return
}
