// Command migrate applies or rolls back the users schema.
//
//	migrate up
//	migrate down [version]
//	migrate status
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/geocoder89/userhub/internal/config"
	"github.com/geocoder89/userhub/internal/db"
	"github.com/geocoder89/userhub/internal/observability"
)

func main() {
	cfg := config.Load()
	log := observability.NewLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: migrate up | down [version] | status")
		os.Exit(2)
	}

	migrator, err := db.NewMigrator(cfg.DBURL, log)
	if err != nil {
		log.Error("migrator init failed", "err", err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "up":
		err = migrator.Up(ctx)
	case "down":
		var target int64
		if len(os.Args) > 2 {
			target, err = strconv.ParseInt(os.Args[2], 10, 64)
			if err != nil {
				log.Error("invalid target version", "value", os.Args[2], "err", err)
				os.Exit(2)
			}
		}
		err = migrator.Down(ctx, target)
	case "status":
		err = migrator.Status(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}

	if err != nil {
		log.Error("migration command failed", "cmd", os.Args[1], "err", err)
		os.Exit(1)
	}
}
