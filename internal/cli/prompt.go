package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// errNoInput means stdin ended before a prompt was answered.
var errNoInput = errors.New("no input")

// prompter reads answers line by line. The shell and the prompts share one
// scanner so scripted input is consumed in order.
type prompter struct {
	scanner *bufio.Scanner
	out     io.Writer
	// ttyFD is the descriptor of a terminal stdin, -1 otherwise.
	ttyFD int
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	p := &prompter{scanner: bufio.NewScanner(in), out: out, ttyFD: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.ttyFD = int(f.Fd())
	}
	return p
}

// line prints label and returns the trimmed answer.
func (p *prompter) line(label string) (string, error) {
	fmt.Fprint(p.out, label)
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", errNoInput
	}
	return strings.TrimSpace(p.scanner.Text()), nil
}

// secret reads a password without echo on a terminal. Scripted input is
// read as a plain line.
func (p *prompter) secret(label string) (string, error) {
	if p.ttyFD < 0 {
		return p.line(label)
	}
	fmt.Fprint(p.out, label)
	b, err := term.ReadPassword(p.ttyFD)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

// valueOr returns v when set, otherwise prompts for it.
func (p *prompter) valueOr(v, label string) (string, error) {
	if v != "" {
		return v, nil
	}
	return p.line(label)
}

type credentials struct {
	Name     string
	Email    string
	Password string
	Confirm  string
}

// PromptLogin asks for the missing login fields.
func (p *prompter) PromptLogin(email string) (credentials, error) {
	var c credentials
	var err error
	if c.Email, err = p.valueOr(email, "Email: "); err != nil {
		return c, err
	}
	if c.Password, err = p.secret("Password: "); err != nil {
		return c, err
	}
	return c, nil
}

// PromptRegister asks for the missing registration fields, including the
// password confirmation.
func (p *prompter) PromptRegister(name, email string) (credentials, error) {
	var c credentials
	var err error
	if c.Name, err = p.valueOr(name, "Name: "); err != nil {
		return c, err
	}
	if c.Email, err = p.valueOr(email, "Email: "); err != nil {
		return c, err
	}
	if c.Password, err = p.secret("Password: "); err != nil {
		return c, err
	}
	if c.Confirm, err = p.secret("Confirm password: "); err != nil {
		return c, err
	}
	return c, nil
}
