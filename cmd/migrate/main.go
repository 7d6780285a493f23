package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"opsfloww.io/internal/audit"
	"opsfloww.io/internal/migrate"
	"opsfloww.io/internal/obs"
)

func main() {
	log := obs.Logger()
	var (
		dsn       = flag.String("dsn", os.Getenv("AUDIT_PG_DSN"), "PostgreSQL DSN of the audit database")
		seedsPath = flag.String("seeds", "", "Directory with SQL seed files")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or AUDIT_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := audit.OpenPG(*dsn)
	if err != nil {
		log.WithError(err).Fatal("open db")
	}
	defer db.Close()

	var opts []migrate.Option
	if *seedsPath != "" {
		var seeds fs.FS = os.DirFS(*seedsPath)
		opts = append(opts, migrate.WithSeeds(seeds))
	}
	mgr := migrate.NewManager(db, audit.Migrations, opts...)

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.WithError(err).Fatalf("migrate %s", flag.Arg(0))
	}
}
