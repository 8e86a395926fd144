package main

import (
	"encoding/json"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/emx-mail/gateway/pkgs/config"
)

type initFlags struct {
	format string
	output string
}

func parseInitFlags(args []string) initFlags {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	var f initFlags
	fs.StringVar(&f.format, "format", "yaml", "Output format: yaml or json")
	fs.StringVar(&f.output, "output", "", "Write to file instead of stdout")
	if err := fs.Parse(args); err != nil {
		fatal("init: %v", err)
	}
	return f
}

func handleInit(f initFlags) error {
	root := config.ExampleRootConfig()

	var data []byte
	var err error
	switch f.format {
	case "yaml", "yml":
		data, err = yaml.Marshal(root)
	case "json":
		data, err = json.MarshalIndent(root, "", "  ")
		data = append(data, '\n')
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
	if err != nil {
		return fmt.Errorf("failed to format example config: %w", err)
	}

	if f.output == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(f.output, data, 0600); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Created config file at: %s\n", f.output)
	fmt.Fprintf(os.Stderr, "Tip: set %s=%s to use this config file.\n", config.EnvConfigPath, f.output)
	return nil
}
