// Command post leaves a soapstone message at a location from the command
// line, writing the record straight to the author's repository. The running
// indexer picks it up off the firehose like any other write.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joelghill/soapstone/internal/atproto"
	"github.com/joelghill/soapstone/internal/geo"
	"github.com/joelghill/soapstone/internal/lexicon"
	"github.com/joelghill/soapstone/internal/message"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		handle   string
		password string
		pds      string
		location string
		base     string
		fill     string
		fillType string
	)

	flag.StringVar(&handle, "handle", envOrDefault("SOAPSTONE_HANDLE", ""), "Account handle (e.g. user.bsky.social)")
	flag.StringVar(&password, "password", envOrDefault("SOAPSTONE_APP_PASSWORD", ""), "App password")
	flag.StringVar(&pds, "pds", envOrDefault("SOAPSTONE_PDS_URL", "https://bsky.social"), "PDS service URL")
	flag.StringVar(&location, "location", "", "Geo URI of the message location (e.g. geo:52.099,-106.630)")
	flag.StringVar(&base, "base", "", "Base phrase with a **** placeholder (e.g. 'Be wary of ****')")
	flag.StringVar(&fill, "fill", "", "Fill phrase substituted into the placeholder")
	flag.StringVar(&fillType, "fill-type", "object", "Fill vocabulary: character, object, technique, action, geography, orientation, bodyPart, or attribute")
	flag.Parse()

	if handle == "" || password == "" {
		return fmt.Errorf("--handle and --password are required (or set SOAPSTONE_HANDLE and SOAPSTONE_APP_PASSWORD)")
	}
	if location == "" || base == "" || fill == "" {
		return fmt.Errorf("--location, --base, and --fill are required")
	}
	if _, err := geo.Parse(location); err != nil {
		return err
	}

	record := &lexicon.PostRecord{
		Type: lexicon.PostNSID,
		Message: lexicon.Message{
			{
				Base: &lexicon.Phrase{
					Type:      "social.soapstone.text.en.defs#basePhrase",
					Selection: base,
				},
				Fill: &lexicon.Phrase{
					Type:      "social.soapstone.text.en.defs#" + fillType,
					Selection: fill,
				},
			},
		},
		Location:  lexicon.Location{URI: location},
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := lexicon.ValidatePost(record); err != nil {
		return err
	}

	ctx := context.Background()
	client := atproto.NewClient(pds)

	fmt.Printf("Logging in as %s...\n", handle)
	if err := client.Login(ctx, handle, password); err != nil {
		return err
	}
	fmt.Printf("Authenticated as %s\n", client.DID())

	fmt.Printf("Leaving message %q at %s...\n", message.ComposeText(record.Message), location)
	uri, cid, err := client.CreateRecord(ctx, client.DID(), lexicon.PostNSID, record)
	if err != nil {
		return err
	}

	fmt.Printf("Message written: %s (cid %s)\n", uri, cid)
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
