// Command test-erp-connection exercises the Epicor gateway end to end:
// vendor roster, part master, supplier-part links, and where-used. Useful
// when standing up a new environment before pointing the pipeline at it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/meridian-mfg/pricewatch/internal/erp"
)

func main() {
	partNum := flag.String("part", "", "optional part number to look up")
	vendorName := flag.String("vendor", "", "optional vendor name to look up")
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	flag.Parse()

	_ = gotenv.Load()

	baseURL := os.Getenv("EPICOR_BASE_URL")
	if baseURL == "" {
		fmt.Fprintln(os.Stderr, "EPICOR_BASE_URL is not set")
		os.Exit(1)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	client := erp.NewEpicorClient(erp.EpicorConfig{
		BaseURL: baseURL,
		APIKey:  os.Getenv("EPICOR_API_KEY"),
		Timeout: *timeout,
	}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	vendors, err := client.ListVendors(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vendor roster: FAILED: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("vendor roster: OK (%d vendors)\n", len(vendors))

	if *vendorName != "" {
		vendor, err := client.FindVendorByName(ctx, *vendorName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "vendor lookup %q: FAILED: %v\n", *vendorName, err)
			os.Exit(1)
		}
		fmt.Printf("vendor lookup: OK (id=%s name=%s)\n", vendor.VendorID, vendor.Name)
	}

	if *partNum != "" {
		part, err := client.GetPart(ctx, *partNum)
		if err != nil {
			fmt.Fprintf(os.Stderr, "part lookup %q: FAILED: %v\n", *partNum, err)
			os.Exit(1)
		}
		fmt.Printf("part lookup: OK (%s active=%t)\n", part.Description, part.Active)

		usages, err := client.WhereUsed(ctx, *partNum)
		if err != nil {
			fmt.Fprintf(os.Stderr, "where-used %q: FAILED: %v\n", *partNum, err)
			os.Exit(1)
		}
		fmt.Printf("where-used: OK (%d assemblies)\n", len(usages))
	}

	fmt.Println("ERP connection checks passed")
}
