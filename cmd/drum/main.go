// drum is a command-line tool for inspecting and changing a kvlog store
// with string keys and JSON values
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/kjk/drum/backup"
	"github.com/kjk/drum/log"
)

const usage = `usage: drum [flags] <command> [args]

commands:
  keys                 list live keys
  get <key>            print value of key
  put <key> <value>    set value of key, value is JSON or a string
  rm <key>             remove key and compact the store file
  dump [-toon]         print all keys and values
  stats [-prom]        print statistics of the store
  compact              compact the store file
  backup               upload compressed copy of the store file
  backups              list backups in s3
  restore <remote>     replace the store file with a backup from s3

flags:
`

var errUsage = errors.New("invalid usage")

type options struct {
	dbPath     string
	configPath string
	ordered    bool
	logDir     string
	// colored JSON output
	color bool
}

func parseFlags(args []string, stderr io.Writer) (*options, []string, error) {
	opts := &options{}
	fs := flag.NewFlagSet("drum", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	fs.StringVar(&opts.dbPath, "db", "drum.db", "path of the store file")
	fs.StringVar(&opts.configPath, "config", "drum.yaml", "path of yaml config with backup destinations")
	fs.BoolVar(&opts.ordered, "ordered", false, "list keys in sorted order")
	fs.BoolVar(&log.Verbose, "v", false, "verbose logging")
	fs.StringVar(&opts.logDir, "log-dir", "", "if set, also log to files in this directory")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return nil, nil, errUsage
	}
	return opts, fs.Args(), nil
}

func run(ctx context.Context, args []string, stdout io.Writer, stderr io.Writer) error {
	opts, cmdArgs, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if opts.logDir != "" {
		log.Init(&log.Config{Dir: opts.logDir})
		defer log.Close()
	}
	opts.color = isTerminal(stdout)

	cmd, cmdArgs := cmdArgs[0], cmdArgs[1:]
	switch cmd {
	case "keys":
		return cmdKeys(opts, stdout, cmdArgs)
	case "get":
		return cmdGet(opts, stdout, cmdArgs)
	case "put":
		return cmdPut(opts, stdout, cmdArgs)
	case "rm":
		return cmdRemove(opts, stdout, cmdArgs)
	case "dump":
		return cmdDump(opts, stdout, cmdArgs)
	case "stats":
		return cmdStats(opts, stdout, cmdArgs)
	case "compact":
		return cmdCompact(opts, stdout, cmdArgs)
	case "backup", "backups", "restore":
		cfg, err := backup.LoadConfig(opts.configPath)
		if err != nil {
			return err
		}
		switch cmd {
		case "backup":
			return cmdBackup(ctx, opts, cfg, stdout, cmdArgs)
		case "backups":
			return cmdBackups(ctx, cfg, stdout, cmdArgs)
		}
		return cmdRestore(ctx, opts, cfg, stdout, cmdArgs)
	}
	return fmt.Errorf("unknown command '%s'", cmd)
}

func main() {
	// stdout is for data
	log.Out = os.Stderr
	err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	if err == nil {
		return
	}
	if err != errUsage && err != flag.ErrHelp {
		log.Logf("drum: %s\n", err)
	}
	os.Exit(1)
}
