package main

import (
	"bufio"
	"context"
	"encoding/json"
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

	apiclient "github.com/splax/bookreview/pkg/api/client"
	"github.com/splax/bookreview/pkg/config"
)

type cliConfig struct {
	APIBaseURL  string `json:"api_base_url"`
	AccessToken string `json:"access_token"`
	Email       string `json:"email,omitempty"`
}

var buildVersion = "dev"

var errNotLoggedIn = errors.New("please login first using 'bookreview login'")

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "register":
		err = commandRegister(args)
	case "login":
		err = commandLogin(args)
	case "logout":
		err = commandLogout()
	case "books":
		err = commandBooks()
	case "book":
		err = commandBook(args)
	case "review":
		err = commandReview(args)
	case "my-reviews":
		err = commandMyReviews()
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
		if apiclient.IsUnauthorized(err) && cmd != "login" {
			fmt.Fprintln(os.Stderr, "error: session expired or invalid; run 'bookreview login'")
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandRegister(args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	name := fs.String("name", "", "Display name")
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL")
	fs.Parse(args)

	if strings.TrimSpace(*name) == "" || strings.TrimSpace(*email) == "" {
		return errors.New("--name and --email are required")
	}
	secret, err := resolvePassword(*password, true)
	if err != nil {
		return err
	}

	cfg, client, err := session(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()
	resp, err := client.Register(ctx, *name, *email, secret)
	if err != nil {
		return err
	}
	cfg.AccessToken = resp.Token
	cfg.Email = resp.User.Email
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Printf("registered %s (%s)\n", resp.User.Name, resp.User.Email)
	return nil
}

func commandLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret, err := resolvePassword(*password, false)
	if err != nil {
		return err
	}

	cfg, client, err := session(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()
	resp, err := client.Login(ctx, *email, secret)
	if err != nil {
		return err
	}
	cfg.AccessToken = resp.Token
	cfg.Email = resp.User.Email
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Println("login successful")
	return nil
}

func commandLogout() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.AccessToken = ""
	cfg.Email = ""
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Println("logged out")
	return nil
}

func commandBooks() error {
	_, client, err := session("")
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()
	books, err := client.ListBooks(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tAUTHOR")
	for _, b := range books {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", b.ID, b.Title, b.Author)
	}
	return tw.Flush()
}

func commandBook(args []string) error {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return errors.New("usage: bookreview book <book-id>")
	}
	_, client, err := session("")
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()
	detail, err := client.GetBook(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s\nby %s\n", detail.Book.Title, detail.Book.Author)
	if detail.Book.Description != "" {
		fmt.Printf("\n%s\n", detail.Book.Description)
	}
	fmt.Printf("\nReviews (%d)\n", len(detail.Reviews))
	printReviews(os.Stdout, detail.Reviews, func(r apiclient.Review) string {
		if r.User != nil {
			return r.User.Name
		}
		return r.UserID
	})
	return nil
}

func commandReview(args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return errors.New("usage: bookreview review <book-id> --rating N [--comment text]")
	}
	bookID := args[0]
	fs := flag.NewFlagSet("review", flag.ExitOnError)
	rating := fs.Int("rating", 0, "Rating from 1 to 5")
	comment := fs.String("comment", "", "Optional comment")
	fs.Parse(args[1:])

	if *rating < 1 || *rating > 5 {
		return errors.New("--rating must be between 1 and 5")
	}
	cfg, client, err := session("")
	if err != nil {
		return err
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return errNotLoggedIn
	}
	ctx, cancel := requestContext()
	defer cancel()
	review, err := client.AddReview(ctx, token, bookID, *rating, *comment)
	if err != nil {
		return err
	}
	fmt.Printf("review added (%s)\n", review.ID)
	return nil
}

func commandMyReviews() error {
	cfg, client, err := session("")
	if err != nil {
		return err
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return errNotLoggedIn
	}
	ctx, cancel := requestContext()
	defer cancel()
	reviews, err := client.ListMyReviews(ctx, token)
	if err != nil {
		return err
	}
	printReviews(os.Stdout, reviews, func(r apiclient.Review) string {
		if r.Book != nil {
			return r.Book.Title
		}
		return r.BookID
	})
	return nil
}

func printReviews(w io.Writer, reviews []apiclient.Review, label func(apiclient.Review) string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range reviews {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.CreatedAt.Format(time.DateOnly), stars(r.Rating), label(r), r.Comment)
	}
	_ = tw.Flush()
}

func stars(rating int) string {
	if rating < 0 {
		rating = 0
	}
	if rating > 5 {
		rating = 5
	}
	return strings.Repeat("*", rating) + strings.Repeat(".", 5-rating)
}

// resolvePassword returns flagValue or prompts without echo. Registration
// asks twice.
func resolvePassword(flagValue string, confirm bool) (string, error) {
	if secret := strings.TrimSpace(flagValue); secret != "" {
		return secret, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	fmt.Print("Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Print("\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if confirm {
		fmt.Print("Confirm password: ")
		second, err := term.ReadPassword(fd)
		fmt.Print("\n")
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		if string(first) != string(second) {
			return "", errors.New("passwords do not match")
		}
	}
	return string(first), nil
}

func session(apiOverride string) (cliConfig, *apiclient.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cliConfig{}, nil, err
	}
	if strings.TrimSpace(apiOverride) != "" {
		cfg.APIBaseURL = strings.TrimSpace(apiOverride)
	}
	client, err := apiclient.New(cfg.APIBaseURL, apiclient.WithTimeout(config.LoadClientConfig().RequestTimeout))
	if err != nil {
		return cliConfig{}, nil, err
	}
	return cfg, client, nil
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), config.LoadClientConfig().RequestTimeout)
}

func loadConfig() (cliConfig, error) {
	defaults := config.LoadClientConfig()
	data, err := os.ReadFile(configPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: defaults.APIBaseURL}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, fmt.Errorf("parse %s: %w", configPath(), err)
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaults.APIBaseURL
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path := configPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() string {
	return filepath.Join(config.LoadClientConfig().ConfigDir, "config.json")
}

func printUsage() {
	fmt.Printf("bookreview CLI %s\n\n", buildVersion)
	fmt.Print(`Usage:
	bookreview register --name "Ada" --email ada@example.com [--password secret] [--api http://localhost:3000]
	bookreview login --email ada@example.com [--password secret] [--api http://localhost:3000]
	bookreview logout
	bookreview books
	bookreview book <book-id>
	bookreview review <book-id> --rating 1-5 [--comment text]
	bookreview my-reviews
	bookreview version

Environment:
	BOOKREVIEW_API              API base URL when no login has been saved
	BOOKREVIEW_CONFIG_DIR       where the session is stored (default ~/.bookreview)
	BOOKREVIEW_TIMEOUT_SECONDS  request timeout
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
