// davadm manages the persistent mount store and users-file entries for the
// WebDAV server. The server only reads mount definitions; this tool is the
// write side.
//
// Usage:
//
//	davadm -store /var/lib/davfs/mounts mount list
//	davadm -store /var/lib/davfs/mounts mount add -prefix /pub -root /srv/pub -quota "100 MiB" -owner alice
//	davadm -store /var/lib/davfs/mounts mount remove -prefix /pub
//	davadm hash-password
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/browncloud/davfs/internal/users"
	"github.com/browncloud/davfs/pkg/registry"
	"github.com/browncloud/davfs/pkg/store/mounts"
	mountsBadger "github.com/browncloud/davfs/pkg/store/mounts/badger"
)

func main() {
	storePath := flag.String("store", "", "Path to the badger mount store")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	switch args[0] {
	case "mount":
		if len(args) < 2 {
			usage()
		}
		runMountCommand(*storePath, args[1], args[2:])
	case "hash-password":
		runHashPassword()
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: davadm -store <path> mount {list|add|remove} [options]")
	fmt.Fprintln(os.Stderr, "       davadm hash-password")
	os.Exit(2)
}

func openStore(path string) mounts.Store {
	if path == "" {
		log.Fatal("the -store flag is required for mount commands")
	}
	store, err := mountsBadger.Open(path)
	if err != nil {
		log.Fatalf("Failed to open mount store: %v", err)
	}
	return store
}

func runMountCommand(storePath, command string, args []string) {
	ctx := context.Background()

	switch command {
	case "list":
		store := openStore(storePath)
		defer store.Close()
		listMounts(ctx, store)

	case "add":
		fs := flag.NewFlagSet("mount add", flag.ExitOnError)
		prefix := fs.String("prefix", "", "URL prefix, e.g. /pub (required)")
		root := fs.String("root", "", "Local root directory (required)")
		quota := fs.String("quota", "", `Byte ceiling, humanized ("100 MiB"); empty = unlimited`)
		maxFiles := fs.Uint64("max-files", 0, "File-count ceiling; 0 = unlimited")
		owner := fs.String("owner", "", "Owner username (bypasses all permission checks)")
		read := fs.String("read", "", "Comma-separated read tokens")
		write := fs.String("write", "", "Comma-separated write tokens")
		del := fs.String("delete", "", "Comma-separated delete tokens")
		create := fs.String("new-file", "", "Comma-separated new_file tokens")
		fs.Parse(args)

		if *prefix == "" || *root == "" {
			log.Fatal("mount add: -prefix and -root are required")
		}

		var quotaBytes uint64
		if *quota != "" {
			parsed, err := humanize.ParseBytes(*quota)
			if err != nil {
				log.Fatalf("Invalid quota %q: %v", *quota, err)
			}
			quotaBytes = parsed
		}

		store := openStore(storePath)
		defer store.Close()

		m := &registry.Mount{
			URLPrefix:  *prefix,
			LocalRoot:  *root,
			QuotaBytes: quotaBytes,
			MaxFiles:   *maxFiles,
			Owner:      *owner,
			ReadList:   splitTokens(*read),
			WriteList:  splitTokens(*write),
			DeleteList: splitTokens(*del),
			CreateList: splitTokens(*create),
		}
		if err := store.Put(ctx, m); err != nil {
			log.Fatalf("Failed to store mount: %v", err)
		}
		fmt.Printf("stored mount %s -> %s\n", m.URLPrefix, m.LocalRoot)

	case "remove":
		fs := flag.NewFlagSet("mount remove", flag.ExitOnError)
		prefix := fs.String("prefix", "", "URL prefix of the mount to remove (required)")
		fs.Parse(args)

		if *prefix == "" {
			log.Fatal("mount remove: -prefix is required")
		}

		store := openStore(storePath)
		defer store.Close()

		if err := store.Remove(ctx, *prefix); err != nil {
			log.Fatalf("Failed to remove mount: %v", err)
		}
		fmt.Printf("removed mount %s\n", *prefix)

	default:
		usage()
	}
}

func listMounts(ctx context.Context, store mounts.Store) {
	list, err := store.List(ctx)
	if err != nil {
		log.Fatalf("Failed to list mounts: %v", err)
	}
	if len(list) == 0 {
		fmt.Println("no mounts stored")
		return
	}
	for _, m := range list {
		quota := "unlimited"
		if m.QuotaBytes > 0 {
			quota = humanize.IBytes(m.QuotaBytes)
		}
		fmt.Printf("%-20s %-40s quota=%s max_files=%d owner=%s\n",
			m.URLPrefix, m.LocalRoot, quota, m.MaxFiles, m.Owner)
	}
}

// runHashPassword reads a password from stdin and prints the bcrypt hash for
// the users file. Reading from stdin keeps the password out of shell history.
func runHashPassword() {
	fmt.Fprint(os.Stderr, "Password: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		log.Fatalf("Failed to read password: %v", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		log.Fatal("empty password")
	}

	hash, err := users.HashPassword(password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}
	fmt.Println(hash)
}

func splitTokens(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
