package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/splax/stackgen/internal/generator"
	apiclient "github.com/splax/stackgen/pkg/api/client"
	"github.com/splax/stackgen/pkg/config"
)

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "generate":
		err = commandGenerate(args)
	case "render":
		err = commandRender(args, os.Stdout)
	case "history":
		err = commandHistory(args, os.Stdout)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandGenerate(args []string) error {
	cfg := config.LoadCLIConfig()
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	kind := fs.String("type", "", "Artifact type (dockerfile, docker-compose, prisma, sequelize)")
	owner := fs.String("owner", "", "Repository owner")
	repo := fs.String("repo", "", "Repository name")
	optionsPath := fs.String("options", "", "Options file (JSON or YAML)")
	commit := fs.Bool("commit", true, "Commit the file to the repository")
	gitToken := fs.String("git-token", "", "GitHub access token (default $GITHUB_TOKEN)")
	prompt := fs.Bool("prompt-token", false, "Prompt for the GitHub access token")
	apiBase := fs.String("api", cfg.APIBaseURL, "API base URL")
	fs.Parse(args)

	if strings.TrimSpace(*kind) == "" {
		return errors.New("--type is required")
	}
	if strings.TrimSpace(*owner) == "" || strings.TrimSpace(*repo) == "" {
		return errors.New("--owner and --repo are required")
	}
	options, err := loadOptions(*optionsPath)
	if err != nil {
		return err
	}

	token := strings.TrimSpace(*gitToken)
	if token == "" {
		token = cfg.GitToken
	}
	if *commit && (token == "" || *prompt) {
		fmt.Print("GitHub token: ")
		bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Print("\n")
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
		token = strings.TrimSpace(string(bytes))
	}

	client, err := apiclient.New(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	resp, err := client.Generate(ctx, cfg.AuthToken, apiclient.GenerateInput{
		Type:    *kind,
		Owner:   *owner,
		Repo:    *repo,
		Token:   token,
		Options: options,
		Commit:  commit,
	})
	if resp.Output != "" {
		fmt.Fprintln(os.Stderr, strings.TrimRight(resp.Output, "\n"))
	}
	if err != nil {
		return err
	}
	fmt.Println(resp.Message)
	if resp.GitHubURL != "" {
		fmt.Printf("url: %s\n", resp.GitHubURL)
	}
	if resp.HistoryID != "" {
		fmt.Printf("history: %s\n", resp.HistoryID)
	}
	return nil
}

func commandRender(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	kind := fs.String("type", "", "Artifact type (dockerfile, docker-compose, prisma, sequelize)")
	optionsPath := fs.String("options", "", "Options file (JSON or YAML)")
	out := fs.String("out", "", "Write into this directory instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*kind) == "" {
		return errors.New("--type is required")
	}
	options, err := loadOptions(*optionsPath)
	if err != nil {
		return err
	}
	artifact, err := generator.GenerateRaw(*kind, options)
	if err != nil {
		return err
	}
	if strings.TrimSpace(*out) == "" {
		_, err := io.WriteString(stdout, artifact.Content)
		return err
	}
	target := filepath.Join(*out, filepath.FromSlash(artifact.FileName))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(target, []byte(artifact.Content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", artifact.FileName, err)
	}
	fmt.Fprintf(stdout, "wrote %s\n", target)
	return nil
}

func commandHistory(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New("history subcommand required (list, show, create, update, delete)")
	}
	cfg := config.LoadCLIConfig()
	sub := args[0]
	fs := flag.NewFlagSet("history "+sub, flag.ContinueOnError)
	apiBase := fs.String("api", cfg.APIBaseURL, "API base URL")
	connect := func() (*apiclient.Client, context.Context, context.CancelFunc, error) {
		client, err := apiclient.New(*apiBase)
		if err != nil {
			return nil, nil, nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		return client, ctx, cancel, nil
	}

	switch sub {
	case "list":
		limit := fs.Int("limit", 20, "Maximum number of entries")
		owner := fs.String("owner", "", "Filter by owner")
		repo := fs.String("repo", "", "Filter by repository")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		client, ctx, cancel, err := connect()
		if err != nil {
			return err
		}
		defer cancel()
		records, err := client.ListHistory(ctx, apiclient.HistoryQuery{Limit: *limit, Owner: *owner, Repo: *repo})
		if err != nil {
			return err
		}
		printHistory(stdout, records)
		return nil
	case "show":
		id := fs.String("id", "", "History entry ID")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if strings.TrimSpace(*id) == "" {
			return errors.New("--id is required")
		}
		client, ctx, cancel, err := connect()
		if err != nil {
			return err
		}
		defer cancel()
		record, err := client.GetHistory(ctx, *id)
		if err != nil {
			return err
		}
		printRecord(stdout, record)
		return nil
	case "create":
		username := fs.String("username", "stackgen", "User recorded with the entry")
		owner := fs.String("owner", "", "Repository owner")
		repo := fs.String("repo", "", "Repository name")
		command := fs.String("command", "", "Command that was run")
		output := fs.String("output", "", "Command output")
		status := fs.String("status", "", "Status (pending, generated, success, failed)")
		gitToken := fs.String("git-token", "", "Access token to store sealed with the entry")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if strings.TrimSpace(*owner) == "" || strings.TrimSpace(*repo) == "" || strings.TrimSpace(*command) == "" {
			return errors.New("--owner, --repo and --command are required")
		}
		client, ctx, cancel, err := connect()
		if err != nil {
			return err
		}
		defer cancel()
		record, err := client.CreateHistory(ctx, cfg.AuthToken, apiclient.CreateHistoryInput{
			Username: *username,
			Token:    *gitToken,
			Owner:    *owner,
			Repo:     *repo,
			Command:  *command,
			Output:   *output,
			Status:   *status,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "created %s\n", record.ID)
		return nil
	case "update":
		id := fs.String("id", "", "History entry ID")
		command := fs.String("command", "", "New command")
		output := fs.String("output", "", "New output")
		status := fs.String("status", "", "New status")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if strings.TrimSpace(*id) == "" {
			return errors.New("--id is required")
		}
		var patch apiclient.UpdateHistoryInput
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "command":
				patch.Command = command
			case "output":
				patch.Output = output
			case "status":
				patch.Status = status
			}
		})
		if patch.Command == nil && patch.Output == nil && patch.Status == nil {
			return errors.New("nothing to update: pass --command, --output or --status")
		}
		client, ctx, cancel, err := connect()
		if err != nil {
			return err
		}
		defer cancel()
		record, err := client.UpdateHistory(ctx, cfg.AuthToken, *id, patch)
		if err != nil {
			return err
		}
		printRecord(stdout, record)
		return nil
	case "delete":
		id := fs.String("id", "", "History entry ID")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if strings.TrimSpace(*id) == "" {
			return errors.New("--id is required")
		}
		client, ctx, cancel, err := connect()
		if err != nil {
			return err
		}
		defer cancel()
		if err := client.DeleteHistory(ctx, cfg.AuthToken, *id); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "deleted %s\n", *id)
		return nil
	default:
		return fmt.Errorf("unknown history subcommand: %s", sub)
	}
}

func printRecord(w io.Writer, record apiclient.HistoryRecord) {
	fmt.Fprintf(w, "id:       %s\nrepo:     %s/%s\ncommand:  %s\nstatus:   %s\ncreated:  %s\nupdated:  %s\n",
		record.ID, record.Owner, record.Repo, record.Command, record.Status, record.CreatedAt, record.UpdatedAt)
	if record.Output != "" {
		fmt.Fprintf(w, "\n%s\n", strings.TrimRight(record.Output, "\n"))
	}
}

func printHistory(w io.Writer, records []apiclient.HistoryRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "no history entries")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tREPO\tSTATUS\tCOMMAND\tCREATED")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s/%s\t%s\t%s\t%s\n", r.ID, r.Owner, r.Repo, r.Status, r.Command, r.CreatedAt)
	}
	tw.Flush()
}

func printUsage() {
	fmt.Println(`stackgen CLI

Usage:
  stackgen generate --type dockerfile --owner <owner> --repo <repo> [--options file] [--commit=false]
  stackgen render --type prisma [--options file] [--out dir]
  stackgen history list [--limit 20] [--owner o] [--repo r]
  stackgen history show --id <id>
  stackgen history create --owner <owner> --repo <repo> --command <cmd> [--output text] [--status pending]
  stackgen history update --id <id> [--command cmd] [--output text] [--status success]
  stackgen history delete --id <id>
  stackgen version

Environment:
  STACKGEN_API_URL     API base URL (default http://localhost:4080)
  STACKGEN_AUTH_TOKEN  bearer token for mutating API calls
  GITHUB_TOKEN         access token used when committing`)
}

func printVersion() {
	fmt.Printf("stackgen version %s\n", buildVersion)
}
