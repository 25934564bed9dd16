package config

import (
	"flag"
	"os"

	"github.com/dkravets/notelock/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-d string   Postgres DSN of the remote store (empty: in-memory demo)
//	-m string   path of the local sqlite mirror
//	-u string   demo user id (self-issued token)
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-m", "-u"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "remote store DSN")
	fs.StringVar(&cfg.MirrorPath, "m", cfg.MirrorPath, "local mirror path")
	fs.StringVar(&cfg.DemoUser, "u", cfg.DemoUser, "demo user id")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
