package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/inhies/go-bytesize"

	"github.com/regia-io/regia/internal/snapshot"
)

func runInspect(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	showRegions := fs.Bool("regions", false, "List every occupied region")

	fs.Usage = func() {
		fmt.Println(`Usage: regia inspect [options] <snapshot-file>

Print the contents of a heap snapshot.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	snap, err := snapshot.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read snapshot: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Snapshot:     %s\n", fs.Arg(0))
	fmt.Printf("Pause ID:     %s\n", snap.PauseID)
	fmt.Printf("Taken at:     %s\n", snap.TakenAt.Format(time.RFC3339))
	fmt.Printf("Regions:      %d x %s\n", snap.NumRegions, bytesize.New(float64(snap.RegionBytes)))
	fmt.Printf("Heap used:    %s\n", bytesize.New(float64(snap.UsedBytes)))
	fmt.Printf("Free regions: %d\n", snap.FreeRegions)
	fmt.Printf("Occupied:     %d\n", len(snap.Regions))

	if *showRegions {
		fmt.Println()
		fmt.Printf("%6s %-16s %12s %12s %8s\n", "INDEX", "KIND", "USED", "LIVE", "CARDS")
		for _, r := range snap.Regions {
			fmt.Printf("%6d %-16s %12s %12s %8d\n",
				r.Index, r.Kind,
				bytesize.New(float64(r.UsedBytes)).String(),
				bytesize.New(float64(r.LiveBytes)).String(),
				r.RemSetCards)
		}
	}
}
