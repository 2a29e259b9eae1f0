package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/eringen/pubfront"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			log.Fatal(err)
		}
	case "build":
		if err := runBuild(os.Args[2:]); err != nil {
			log.Fatal(err)
		}
	case "version":
		fmt.Printf("pubfront %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func loadApp() (*pubfront.App, error) {
	cfg, err := pubfront.LoadConfig(pubfront.EnvOr("PUBFRONT_CONFIG", "pubfront.yaml"))
	if err != nil {
		return nil, err
	}
	return pubfront.New(cfg)
}

func runServe() error {
	app, err := loadApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return app.Start(ctx)
}

func runBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	out := fs.String("out", "dist", "output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	app, err := loadApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	stats, err := app.Export(ctx, *out)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d posts, %d listing pages and %d banners to %s\n",
		stats.Posts, stats.ListingPages, stats.Banners, *out)
	return nil
}

func printUsage() {
	fmt.Println(`pubfront - A blog front-end for a headless content API

Usage:
  pubfront <command> [arguments]

Commands:
  serve              Serve the site, regenerating pages in the background
  build [-out dir]   Write the whole site as static files (default dir "dist")
  version            Print the pubfront version
  help               Show this help message

Configuration is read from pubfront.yaml (or $PUBFRONT_CONFIG) and the
environment, e.g. CONTENT_API_ENDPOINT, SESSION_SECRET, SITE_URL.`)
}
