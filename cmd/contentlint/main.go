// contentlint checks a termhack content directory offline: schema
// errors from the loaders, then the cross-reference and authoring
// checks servers run at boot. Exits nonzero when errors are found so it
// can gate content changes in CI.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/hackmesh/termhack/pkg/game"
	"github.com/hackmesh/termhack/pkg/validate"
)

func main() {
	dir := flag.String("content", "content", "Path to content directory")
	jsonOut := flag.Bool("json", false, "Emit the report as JSON")
	strict := flag.Bool("strict", false, "Treat warnings as errors")
	flag.Parse()

	content, err := game.LoadContent(*dir)
	if err != nil {
		log.Fatalf("load: %v", err)
	}

	v := validate.New()
	findings := v.Run(content)
	report := validate.GenerateReport(findings)

	if *jsonOut {
		if err := report.WriteJSON(os.Stdout); err != nil {
			log.Fatalf("write report: %v", err)
		}
	} else {
		if err := report.WriteText(os.Stdout); err != nil {
			log.Fatalf("write report: %v", err)
		}
	}

	if report.Errors > 0 || (*strict && report.Warnings > 0) {
		os.Exit(1)
	}
}
