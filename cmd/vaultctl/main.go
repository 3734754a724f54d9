// Command vaultctl is a one-subcommand-per-operation CLI over the vault
// core, grounded on the teacher's cmd/starterkit/main.go (its
// usage()/check()/require() pattern and flag.NewFlagSet-per-subcommand
// shape). Unlike starterkit's single JSON file, vaultctl opens a bbolt
// file per invocation: every subcommand is independent, and state
// (Locked/Unlocked) only exists for the lifetime of one process.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mozilla-lockbox/lockbox-vault/internal/genpass"
	"github.com/mozilla-lockbox/lockbox-vault/internal/item"
	"github.com/mozilla-lockbox/lockbox-vault/internal/vault"
)

func usage() {
	fmt.Print(`Usage:
  vaultctl --help
  vaultctl init    --file vault.db --master MASTER [--iterations N]
  vaultctl add     --file vault.db --master MASTER --username U (--password P | --generate) [--title T] [--origins a,b] [--tags x,y]
  vaultctl list    --file vault.db --master MASTER
  vaultctl show    --file vault.db --master MASTER --id ID
  vaultctl update  --file vault.db --master MASTER --id ID [--title T] [--username U] [--password P]
  vaultctl touch   --file vault.db --master MASTER --id ID
  vaultctl remove  --file vault.db --master MASTER --id ID
  vaultctl rebase  --file vault.db --master OLD --new-master NEW
  vaultctl reset   --file vault.db
`)
}

func main() {
	if len(os.Args) < 2 || os.Args[1] == "--help" || os.Args[1] == "-h" {
		usage()
		return
	}
	switch os.Args[1] {
	case "init":
		cmdInit(os.Args[2:])
	case "add":
		cmdAdd(os.Args[2:])
	case "list":
		cmdList(os.Args[2:])
	case "show":
		cmdShow(os.Args[2:])
	case "update":
		cmdUpdate(os.Args[2:])
	case "touch":
		cmdTouch(os.Args[2:])
	case "remove":
		cmdRemove(os.Args[2:])
	case "rebase":
		cmdRebase(os.Args[2:])
	case "reset":
		cmdReset(os.Args[2:])
	default:
		usage()
	}
}

func openUnlocked(file, master string, iterations int) *vault.Vault {
	v, err := vault.Open(file, vault.Config{Iterations: iterations})
	check(err, "open")
	err = v.Unlock([]byte(master))
	check(err, "unlock (check master)")
	return v
}

func cmdInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	file := fs.String("file", "vault.db", "path to vault database")
	master := fs.String("master", "", "master secret")
	iterations := fs.Int("iterations", 0, "PBKDF2 iteration override (0 = default)")
	fs.Parse(args)
	require(*master != "", "master")

	v, err := vault.Open(*file, vault.Config{Iterations: *iterations})
	check(err, "open")
	defer v.Close()

	check(v.Initialize([]byte(*master), nil, *iterations, false), "initialize")
	fmt.Println("vault initialized at", *file)
}

func cmdAdd(args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	file := fs.String("file", "vault.db", "path to vault database")
	master := fs.String("master", "", "master secret")
	title := fs.String("title", "", "title")
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "password")
	generate := fs.Bool("generate", false, "generate a random password instead of --password")
	origins := fs.String("origins", "", "comma-separated origins")
	tags := fs.String("tags", "", "comma-separated tags")
	fs.Parse(args)
	require(*master != "", "master")

	if *generate {
		pw, err := genpass.Generate(genpass.DefaultOptions())
		check(err, "generate password")
		*password = pw
		fmt.Println("generated password:", pw)
	}
	require(*password != "", "password")

	v := openUnlocked(*file, *master, 0)
	defer v.Close()

	in := item.Input{
		Title:   title,
		Origins: splitCSV(*origins),
		Tags:    splitCSV(*tags),
		Entry:   &item.Entry{Kind: item.KindLogin, Username: *username, Password: *password},
	}
	added, err := v.Add(in)
	check(err, "add")
	fmt.Println("added item id:", added.ID)
}

func cmdList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	file := fs.String("file", "vault.db", "path to vault database")
	master := fs.String("master", "", "master secret")
	fs.Parse(args)
	require(*master != "", "master")

	v := openUnlocked(*file, *master, 0)
	defer v.Close()

	items, err := v.List()
	check(err, "list")
	if len(items) == 0 {
		fmt.Println("(empty)")
		return
	}
	fmt.Println("ID                                   | Title         | Modified")
	fmt.Println(strings.Repeat("-", 88))
	for _, it := range items {
		fmt.Printf("%-36s | %-13s | %s\n", it.ID, it.Title, it.Modified)
	}
}

func cmdShow(args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	file := fs.String("file", "vault.db", "path to vault database")
	master := fs.String("master", "", "master secret")
	id := fs.String("id", "", "item id")
	fs.Parse(args)
	require(*master != "", "master")
	require(*id != "", "id")

	v := openUnlocked(*file, *master, 0)
	defer v.Close()

	it, err := v.Get(*id)
	check(err, "get")
	if it == nil {
		fmt.Println("no item with id", *id)
		os.Exit(1)
	}
	printItem(*it)
}

func cmdUpdate(args []string) {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	file := fs.String("file", "vault.db", "path to vault database")
	master := fs.String("master", "", "master secret")
	id := fs.String("id", "", "item id")
	title := fs.String("title", "", "new title (leave empty to keep)")
	username := fs.String("username", "", "new username (leave empty to keep)")
	password := fs.String("password", "", "new password (leave empty to keep)")
	fs.Parse(args)
	require(*master != "", "master")
	require(*id != "", "id")

	v := openUnlocked(*file, *master, 0)
	defer v.Close()

	existing, err := v.Get(*id)
	check(err, "get")
	if existing == nil {
		fmt.Println("no item with id", *id)
		os.Exit(1)
	}

	in := item.Input{ID: *id}
	if *title != "" {
		in.Title = title
	}
	if *username != "" || *password != "" {
		entry := existing.Entry
		if *username != "" {
			entry.Username = *username
		}
		if *password != "" {
			entry.Password = *password
		}
		in.Entry = &entry
	}

	updated, err := v.Update(in)
	check(err, "update")
	fmt.Println("updated item", updated.ID, "changed fields:", item.Diff(*existing, updated))
}

func cmdTouch(args []string) {
	fs := flag.NewFlagSet("touch", flag.ExitOnError)
	file := fs.String("file", "vault.db", "path to vault database")
	master := fs.String("master", "", "master secret")
	id := fs.String("id", "", "item id")
	fs.Parse(args)
	require(*master != "", "master")
	require(*id != "", "id")

	v := openUnlocked(*file, *master, 0)
	defer v.Close()

	touched, err := v.Touch(*id)
	check(err, "touch")
	fmt.Println("touched item", touched.ID, "last_used:", touched.LastUsed)
}

func cmdRemove(args []string) {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	file := fs.String("file", "vault.db", "path to vault database")
	master := fs.String("master", "", "master secret")
	id := fs.String("id", "", "item id")
	fs.Parse(args)
	require(*master != "", "master")
	require(*id != "", "id")

	v := openUnlocked(*file, *master, 0)
	defer v.Close()

	removed, err := v.Remove(*id)
	check(err, "remove")
	fmt.Println("removed item", removed.ID)
}

func cmdRebase(args []string) {
	fs := flag.NewFlagSet("rebase", flag.ExitOnError)
	file := fs.String("file", "vault.db", "path to vault database")
	master := fs.String("master", "", "current master secret")
	newMaster := fs.String("new-master", "", "new master secret")
	fs.Parse(args)
	require(*master != "", "master")
	require(*newMaster != "", "new-master")

	v := openUnlocked(*file, *master, 0)
	defer v.Close()

	check(v.Initialize([]byte(*newMaster), nil, 0, true), "rebase")
	fmt.Println("vault rebased under new master")
}

func cmdReset(args []string) {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	file := fs.String("file", "vault.db", "path to vault database")
	fs.Parse(args)

	v, err := vault.Open(*file, vault.Config{})
	check(err, "open")
	defer v.Close()

	check(v.Reset(), "reset")
	fmt.Println("vault reset at", *file)
}

func printItem(it item.Item) {
	fmt.Println("ID:      ", it.ID)
	fmt.Println("Title:   ", it.Title)
	fmt.Println("Username:", it.Entry.Username)
	fmt.Println("Password:", it.Entry.Password)
	if it.Entry.Notes != "" {
		fmt.Println("Notes:   ", it.Entry.Notes)
	}
	if len(it.Origins) > 0 {
		fmt.Println("Origins: ", strings.Join(it.Origins, ", "))
	}
	if len(it.Tags) > 0 {
		fmt.Println("Tags:    ", strings.Join(it.Tags, ", "))
	}
	fmt.Println("Modified:", it.Modified)
	if len(it.History) > 0 {
		raw, _ := json.MarshalIndent(it.History, "", "  ")
		fmt.Println("History: ", string(raw))
	}
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func require(ok bool, name string) {
	if !ok {
		fmt.Printf("missing --%s\n", name)
		os.Exit(1)
	}
}

func check(err error, where string) {
	if err != nil {
		fmt.Printf("%s error: %v\n", where, err)
		os.Exit(1)
	}
}
