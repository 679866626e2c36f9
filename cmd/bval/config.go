package main

import (
	"github.com/jessevdk/go-flags"
)

const defaultLogFilename = "bval.log"

// config defines the configuration options for bval.
//
// See loadConfig for details on the configuration load process.
type config struct {
	DataDir    string `short:"b" long:"datadir" description:"Directory holding the chain state, ledger and block files"`
	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}" default:"info"`
	NoRename   bool   `short:"n" long:"norename" description:"Do not promote the input to vblock.dat, just create ltran.dat"`
	Args       struct {
		Block string `positional-arg-name:"block" description:"Block file to validate"`
	} `positional-args:"true" required:"true"`
}

// loadConfig initializes and parses the config using command line options.
func loadConfig() (*config, error) {
	cfg := &config{
		DataDir: ".",
	}
	parser := flags.NewParser(cfg, flags.PrintErrors|flags.HelpFlag)
	if _, err := parser.Parse(); err != nil {
		return nil, err
	}
	return cfg, nil
}
