package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/mattpollicove/p1person/core"
)

// prompter drives the interactive configuration dialog. Secret input is
// read without echo when stdin is a terminal.
type prompter struct {
	in         *bufio.Reader
	out        io.Writer
	readSecret func() (string, error)
}

func newPrompter() *prompter {
	p := &prompter{
		in:  bufio.NewReader(os.Stdin),
		out: os.Stdout,
	}
	p.readSecret = func() (string, error) {
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return p.readLine()
		}
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return "", err
		}
		return string(secret), nil
	}
	return p
}

func (p *prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// ask prompts with an optional default shown in brackets.
func (p *prompter) ask(label, current string) (string, error) {
	if current != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, current)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	value, err := p.readLine()
	if err != nil {
		return "", err
	}
	if value == "" {
		return current, nil
	}
	return value, nil
}

// askRequired re-prompts until a non-empty value is entered.
func (p *prompter) askRequired(label, current string) (string, error) {
	for {
		value, err := p.ask(label, current)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value), nil
		}
		fmt.Fprintf(p.out, "%s is required.\n", label)
	}
}

func (p *prompter) askSecret(label string) (string, error) {
	for {
		fmt.Fprintf(p.out, "%s: ", label)
		value, err := p.readSecret()
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value), nil
		}
		fmt.Fprintf(p.out, "%s is required.\n", label)
	}
}

// confirm accepts yes/y; anything else declines.
func (p *prompter) confirm(question string) (bool, error) {
	fmt.Fprintf(p.out, "%s (yes/no): ", question)
	value, err := p.readLine()
	if err != nil {
		return false, err
	}
	value = strings.ToLower(strings.TrimSpace(value))
	return value == "yes" || value == "y", nil
}

// collectConnection runs the connection dialog, pre-filling from the
// current configuration when one exists.
func (p *prompter) collectConnection(current core.Config) (core.Config, core.Credential, error) {
	cfg := current
	if cfg.Region == "" {
		cfg = core.DefaultConfig()
	}

	fmt.Fprintln(p.out, "Enter the PingOne worker application details.")

	friendly, err := p.ask("Friendly name", cfg.FriendlyName)
	if err != nil {
		return core.Config{}, core.Credential{}, err
	}
	region, err := p.ask("Region (NA, EU, ASIA, CA)", cfg.Region)
	if err != nil {
		return core.Config{}, core.Credential{}, err
	}
	envID, err := p.askRequired("Environment ID", cfg.EnvironmentID)
	if err != nil {
		return core.Config{}, core.Credential{}, err
	}
	clientID, err := p.askRequired("Client ID", cfg.ClientID)
	if err != nil {
		return core.Config{}, core.Credential{}, err
	}
	secret, err := p.askSecret("Client secret")
	if err != nil {
		return core.Config{}, core.Credential{}, err
	}

	cfg.FriendlyName = strings.TrimSpace(friendly)
	cfg.Region = string(core.NormalizeRegion(region))
	cfg.EnvironmentID = envID
	cfg.ClientID = clientID

	cred := core.Credential{
		FriendlyName:  cfg.FriendlyName,
		EnvironmentID: envID,
		ClientID:      clientID,
		ClientSecret:  secret,
	}
	return cfg, cred, nil
}
