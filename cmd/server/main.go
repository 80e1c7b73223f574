package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shinyes/vidstore/internal/app"
	"github.com/shinyes/vidstore/internal/config"
	"github.com/shinyes/vidstore/internal/models"
	"github.com/shinyes/vidstore/internal/service"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		runServe(nil)
		return
	}

	switch args[0] {
	case "serve":
		runServe(args[1:])
	case "video", "storage":
		if err := runCommand(args); err != nil {
			log.Fatal(err)
		}
	case "help", "-h", "--help":
		printUsage()
	default:
		printUsage()
		os.Exit(2)
	}
}

func runServe(args []string) {
	serveFlagSet := flag.NewFlagSet("serve", flag.ContinueOnError)
	serveFlagSet.SetOutput(io.Discard)
	consoleMode := serveFlagSet.Bool("console", false, "enable runtime console")
	if err := serveFlagSet.Parse(args); err != nil {
		log.Fatalf("parse serve args: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	container, cleanup, err := app.Build(context.Background(), cfg)
	if err != nil {
		log.Fatalf("build app: %v", err)
	}
	defer cleanup() //nolint:errcheck

	log.Printf("vidstore listening on %s (storage=%s quota=%d)", cfg.Addr, cfg.Storage, cfg.QuotaBytes)
	if cfg.APITokenHash == "" {
		log.Printf("API_TOKEN_HASH not set, video API is unauthenticated")
	}
	if *consoleMode {
		log.Printf("runtime console enabled")
		go runRuntimeConsole(container)
	}
	log.Fatal(container.Router.Listen(cfg.Addr))
}

func runCommand(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	container, cleanup, err := app.Build(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer cleanup() //nolint:errcheck

	return executeCommand(context.Background(), container, args, os.Stdout)
}

func executeCommand(ctx context.Context, container *app.Container, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("missing command")
	}
	if err := container.VideoService.Ready(ctx); err != nil {
		return err
	}

	switch args[0] {
	case "video":
		return runVideoCommand(ctx, container, args[1:], out)
	case "storage":
		if len(args) < 2 || args[1] != "usage" {
			return fmt.Errorf("usage: storage usage")
		}
		usage, err := container.FileStore.Usage(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "backend=%s quota=%d used=%d remaining=%d entries=%d\n",
			container.FileStore.Backend(), usage.QuotaBytes, usage.UsedBytes, usage.RemainingBytes(), usage.Entries)
		return nil
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func runVideoCommand(ctx context.Context, container *app.Container, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("missing video subcommand")
	}

	switch args[0] {
	case "save":
		if len(args) != 3 {
			return fmt.Errorf("usage: video save <url> <filename>")
		}
		accessURL, err := container.VideoService.DownloadVideo(ctx, args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, accessURL)
		return nil
	case "url":
		if len(args) != 2 {
			return fmt.Errorf("usage: video url <filename>")
		}
		accessURL, err := container.VideoService.GetVideoURL(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, accessURL)
		return nil
	case "list":
		filter, err := service.CompileEntryFilter(strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		entries, err := container.FileStore.List(ctx, service.VideoPathPrefix, filter)
		if err != nil {
			return err
		}
		printEntries(out, entries)
		return nil
	case "delete":
		if len(args) != 2 {
			return fmt.Errorf("usage: video delete <filename>")
		}
		p, err := service.VideoPath(args[1])
		if err != nil {
			return err
		}
		if err := container.FileStore.Delete(ctx, p); err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted %s\n", p)
		return nil
	default:
		return fmt.Errorf("unknown video subcommand: %s", args[0])
	}
}

func printEntries(out io.Writer, entries []models.FileEntry) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tUPDATED\tSOURCE")
	for _, entry := range entries {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", entry.Name(), entry.Size, entry.UpdateTime.UTC().Format(time.RFC3339), entry.SourceURL)
	}
	_ = w.Flush()
}

func runRuntimeConsole(container *app.Container) {
	fmt.Println("Runtime Console: enter a command, e.g. video save https://cdn.example/a.mp4 a.mp4")
	fmt.Println("Runtime Console: type help for commands, exit to close the console (the server keeps running)")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("vidstore> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				fmt.Printf("console read error: %v\n", err)
			}
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parsed, err := parseConsoleLine(line)
		if err != nil {
			fmt.Printf("parse command error: %v\n", err)
			continue
		}
		if len(parsed) == 0 {
			continue
		}

		switch strings.ToLower(parsed[0]) {
		case "help":
			printRuntimeConsoleUsage()
			continue
		case "exit", "quit":
			fmt.Println("runtime console closed")
			return
		}

		if err := executeCommand(context.Background(), container, parsed, os.Stdout); err != nil {
			fmt.Printf("command failed: %v\n", err)
		}
	}
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  go run ./cmd/server")
	fmt.Println("  go run ./cmd/server serve [--console]")
	fmt.Println("  go run ./cmd/server video save <url> <filename>")
	fmt.Println("  go run ./cmd/server video url <filename>")
	fmt.Println("  go run ./cmd/server video list [cel_filter]")
	fmt.Println("  go run ./cmd/server video delete <filename>")
	fmt.Println("  go run ./cmd/server storage usage")
}

func printRuntimeConsoleUsage() {
	fmt.Println("Runtime Console Commands:")
	fmt.Println("  video save <url> <filename>")
	fmt.Println("  video url <filename>")
	fmt.Println("  video list [cel_filter]      e.g. video list content_type == \"video/mp4\"")
	fmt.Println("  video delete <filename>")
	fmt.Println("  storage usage")
	fmt.Println("  help")
	fmt.Println("  exit")
}

// parseConsoleLine splits a console line into command args. The filter of
// "video list" is kept verbatim so CEL string literals keep their quotes; a
// filter wrapped whole in one pair of quotes is unwrapped.
func parseConsoleLine(line string) ([]string, error) {
	cmd, rest := cutWord(line)
	sub, filter := cutWord(rest)
	if !strings.EqualFold(cmd, "video") || sub != "list" {
		return parseCommandLine(line)
	}

	args := []string{"video", "list"}
	if filter == "" {
		return args, nil
	}
	if filter[0] == '\'' || filter[0] == '"' {
		if tokens, err := parseCommandLine(filter); err == nil && len(tokens) == 1 {
			filter = tokens[0]
		}
	}
	return append(args, filter), nil
}

func cutWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}

func parseCommandLine(input string) ([]string, error) {
	var args []string
	var current strings.Builder
	var quote rune

	for _, r := range input {
		switch r {
		case '\'', '"':
			if quote == 0 {
				// Quotes only wrap a token when they open it; mid-token
				// quotes such as it's are literals.
				if current.Len() == 0 {
					quote = r
					continue
				}
				current.WriteRune(r)
				continue
			}
			if quote == r {
				quote = 0
				continue
			}
			current.WriteRune(r)
		case ' ', '\t':
			if quote != 0 {
				current.WriteRune(r)
				continue
			}
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote")
	}
	if current.Len() > 0 {
		args = append(args, current.String())
	}
	return args, nil
}
