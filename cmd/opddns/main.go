// Command opddns keeps one Openprovider A record pointed at this machine's
// public IP address.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/joho/godotenv"
	"golang.org/x/term"

	updater "github.com/bert-willekens/openprovider-home-ip-updater"
	"github.com/bert-willekens/openprovider-home-ip-updater/openprovider"
)

var config = struct {
	Domain    string
	Subdomain string
	IP        string
	CredFile  string
	Interval  time.Duration
	Verbose   bool
}{}

var logger = logr.Discard()

func init() {
	flag.StringVar(&config.Domain, "d", config.Domain, "Domain whose zone holds the record (defaults to DDNS_DOMAIN)")
	flag.StringVar(&config.Subdomain, "s", config.Subdomain, "Subdomain of the record to update (defaults to DDNS_SUBDOMAIN)")
	flag.StringVar(&config.IP, "ip", config.IP, "IP address to set instead of resolving the public IP")
	flag.StringVar(&config.CredFile, "c", filepath.Join(os.Getenv("HOME"), ".openprovider"), "Path to Openprovider credentials file")
	flag.DurationVar(&config.Interval, "i", 0, "Duration to wait between IP checks; 0 runs once and exits")
	flag.BoolVar(&config.Verbose, "v", false, "Enable verbose logging")
	flag.Parse()

	if config.Verbose {
		logger = funcr.New(func(prefix, args string) {
			log.Println(prefix, args)
		}, funcr.Options{Verbosity: 1})
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {

	if err := validate(); err != nil {
		return err
	}

	username, password, err := readCredentials(config.CredFile)
	if err != nil {
		return fmt.Errorf("error reading credentials: %w", err)
	}
	logger.Info("config is valid", "domain", config.Domain, "subdomain", config.Subdomain)

	opts := []updater.Option{
		updater.UsingOpenprovider(username, password),
		updater.WithLogger(logger),
	}
	if config.IP != "" {
		opts = append(opts, updater.UsingStaticIP(config.IP))
	}

	client, err := updater.New(config.Domain, config.Subdomain, opts...)
	if err != nil {
		return fmt.Errorf("error creating updater client: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outcome, err := client.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s.%s: %s\n", config.Subdomain, config.Domain, outcome)

	if config.Interval > 0 {
		updater.RunDaemon(client, ctx, config.Interval, logger)
		<-ctx.Done()
	}
	return nil
}

func validate() error {

	if config.Domain == "" {
		config.Domain = os.Getenv("DDNS_DOMAIN")
	}
	if config.Subdomain == "" {
		config.Subdomain = os.Getenv("DDNS_SUBDOMAIN")
	}

	if config.Domain == "" {
		return errors.New("error: domain cannot be empty - use -d or DDNS_DOMAIN")
	}
	if !strings.Contains(config.Domain, ".") {
		return errors.New("error: domain must have at least one dot")
	}
	if config.Subdomain == "" {
		return errors.New("error: subdomain cannot be empty - use -s or DDNS_SUBDOMAIN")
	}

	_, err := os.Stat(config.CredFile)
	if os.IsNotExist(err) && os.Getenv("OPENPROVIDER_USERNAME") == "" {
		logger.Info("credentials file does not exist", "path", config.CredFile)
		if err := runSetup(); err != nil {
			return fmt.Errorf("setup: %w", err)
		}
	}

	return nil
}

// readCredentials loads the credentials file (when present) into the
// environment and returns the account pair. Values already set in the
// environment win over the file.
func readCredentials(path string) (username, password string, err error) {
	if _, statErr := os.Stat(path); statErr == nil {
		if err := verifyPermissions(path); err != nil {
			return "", "", err
		}
		if err := godotenv.Load(path); err != nil {
			return "", "", fmt.Errorf("error loading \"%s\": %w", path, err)
		}
	}

	username = os.Getenv("OPENPROVIDER_USERNAME")
	password = os.Getenv("OPENPROVIDER_PASSWORD")
	if username == "" || password == "" {
		return "", "", errors.New("OPENPROVIDER_USERNAME and OPENPROVIDER_PASSWORD must be set")
	}
	return username, password, nil
}

func runSetup() error {
	logger.Info("running setup")
	time.Sleep(200 * time.Millisecond) // dirty timer hack to try to get stderr and stdout output lines to display in order
	fmt.Printf("Enter Openprovider username: \n")
	r := bufio.NewReader(os.Stdin)
	username, err := r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("runSetup: error reading from stdin: %w", err)
	}
	username = strings.TrimSpace(username)

	fmt.Printf("Enter Openprovider password: \n")
	bytepass, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return fmt.Errorf("runSetup: error reading from stdin: %w", err)
	}
	password := string(bytepass)

	api := openprovider.NewClient(username, password)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	logger.Info("verifying credentials...")
	if err := api.Login(ctx); err != nil {
		return fmt.Errorf("unable to verify credentials: %w", err)
	}
	logger.Info("credentials verified successfully")

	logger.Info("creating credentials file", "path", config.CredFile)
	f, err := os.OpenFile(config.CredFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("unable to create \"%s\": %w", config.CredFile, err)
	}
	defer f.Close()
	fmt.Fprintf(f, "OPENPROVIDER_USERNAME=%s\n", username)
	fmt.Fprintf(f, "OPENPROVIDER_PASSWORD=%s\n", password)
	logger.Info("credentials written", "path", config.CredFile)
	return nil
}

func verifyPermissions(path string) error {

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("error checking credentials file permissions: %w", err)
	}

	perms := info.Mode().Perm()
	// Error messages will state that we want 0600,
	// but we'll also accept 0400 which is even more restricted.
	// The file might be provided by some secrets managing software as readonly.
	if perms != 0600 && perms != 0400 {
		return fmt.Errorf("invalid permissions for \"%s\": expected file permissions \"-rw-------\"; found \"%s\"", path, fs.FileMode(perms))
	}

	return nil
}
