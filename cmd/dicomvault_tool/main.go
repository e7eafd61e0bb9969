package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/suyashkumar/dicom"

	"dicomvault-rest/dicomimage"
)

///////////////////////////////////////////////////////////////////
//
/*

 go run ./cmd/dicomvault_tool \
 -in=testdata/scan1.dcm

 go run ./cmd/dicomvault_tool \
 -in=testdata/scan1.dcm \
 -preview=scan1.png

*/

func main() {
	var (
		in      = flag.String("in", "", "path to a local DICOM (.dcm) file")
		preview = flag.String("preview", "", "write the normalized 8-bit preview PNG to this path")
	)
	flag.Parse()

	if *in == "" {
		log.Fatal("-in is required")
	}

	ds, err := dicom.ParseFile(*in, nil)
	if err != nil {
		log.Fatalf("ParseFile(%s): %v", *in, err)
	}

	for _, f := range dicomimage.ExtractMetadata(&ds) {
		fmt.Printf("%-18s %s\n", f.Name, f.Value)
	}

	if *preview != "" {
		pngBytes, err := dicomimage.RenderPreview(&ds)
		if err != nil {
			log.Fatalf("RenderPreview: %v", err)
		}
		if err := os.WriteFile(*preview, pngBytes, 0o644); err != nil {
			log.Fatalf("write %s: %v", *preview, err)
		}
		fmt.Printf("Wrote preview PNG to %s\n", *preview)
	}
}
