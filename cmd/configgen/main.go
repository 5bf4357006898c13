package main

import (
	"flag"
	"log"

	"github.com/danmuck/hfpag/internal/config"
)

func main() {
	format := flag.String("format", "toml", "config format: toml|yaml")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to cmd/agctl/config.<format>)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = "cmd/agctl/config." + *format
		}
		if _, err := config.Load(path); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated config at %s", path)
		return
	}

	target := *output
	if target == "" {
		target = "cmd/agctl/config." + *format
	}
	if err := config.WriteTemplate(target, *format, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *format, target)
}
