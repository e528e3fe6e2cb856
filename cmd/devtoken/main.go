// Command devtoken prints a bearer token for local testing.
//
//	go run ./cmd/devtoken --uid alice
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/suPer8Hu/staffchat/internal/auth"
	"github.com/suPer8Hu/staffchat/internal/config"
)

type options struct {
	UID string        `short:"u" long:"uid" required:"true" description:"user id to put in the token subject"`
	TTL time.Duration `long:"ttl" default:"24h" description:"token lifetime"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	cfg := config.Load()
	token, err := auth.SignJWT(opts.UID, cfg.JWTSecret, opts.TTL)
	if err != nil {
		log.Fatalf("sign: %v", err)
	}
	fmt.Println(token)
}
