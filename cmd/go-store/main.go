// Command go-store is a thin CLI driver over the engine, generalizing
// the teacher's flat main.go demo (a fixed sequence of Set/Get/Delete
// calls against one hardcoded directory) into argv-driven subcommands
// against a caller-supplied data directory. No CLI framework is pulled
// in: the engine has no network surface (spec §1 Non-goals), so none of
// the pack's router/CLI libraries (chi, cobra) have anything to serve
// here.
package main

import (
	"fmt"
	"os"

	gostore "github.com/arjunk/go-store"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: go-store -dir <data-dir> <put|get|remove|scan> [args...]")
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "go-store:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) < 1 || args[0] != "-dir" || len(args) < 2 {
		usage()
		return fmt.Errorf("missing -dir")
	}
	dataDir := args[1]
	rest := args[2:]
	if len(rest) < 1 {
		usage()
		return fmt.Errorf("missing command")
	}

	db, err := gostore.Open(dataDir, gostore.Options{})
	if err != nil {
		return err
	}
	defer db.Close()

	switch cmd, cmdArgs := rest[0], rest[1:]; cmd {
	case "put":
		if len(cmdArgs) != 2 {
			return fmt.Errorf("put requires <key> <value>")
		}
		return db.Put([]byte(cmdArgs[0]), []byte(cmdArgs[1]))
	case "get":
		if len(cmdArgs) != 1 {
			return fmt.Errorf("get requires <key>")
		}
		v, err := db.Get([]byte(cmdArgs[0]))
		if err != nil {
			return err
		}
		fmt.Println(string(v))
		return nil
	case "remove":
		if len(cmdArgs) != 1 {
			return fmt.Errorf("remove requires <key>")
		}
		return db.Remove([]byte(cmdArgs[0]))
	case "scan":
		it := db.Begin()
		for !it.IsEnd() {
			fmt.Printf("%s=%s\n", it.Key(), it.Value())
			it.Next()
		}
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}
