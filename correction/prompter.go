package correction

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Question describes one rejected address shown to the operator
type Question struct {
	Index      int
	Total      int
	RecordName string
	RawValue   string
}

// Prompter obtains a replacement address; an empty answer declines
type Prompter interface {
	Prompt(ctx context.Context, q Question) (string, error)
}

// TerminalPrompter asks on a line-oriented terminal
type TerminalPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: bufio.NewReader(in), out: out}
}

// Prompt reads one line; end of input counts as declining
func (t *TerminalPrompter) Prompt(ctx context.Context, q Question) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprintf(t.out, "\n[%d/%d] Agencia: %s\n", q.Index, q.Total, q.RecordName)
	fmt.Fprintf(t.out, "Correo inválido: %s\n", q.RawValue)
	fmt.Fprint(t.out, "Ingrese el correo corregido (o Enter para dejarlo en blanco): ")

	line, err := t.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Confirm asks a yes/no question; only "s" or "si" is yes
func (t *TerminalPrompter) Confirm(question string) (bool, error) {
	fmt.Fprintf(t.out, "\n%s (s/n): ", question)
	line, err := t.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "s", "si", "sí":
		return true, nil
	}
	return false, nil
}

// ReadLine returns the next trimmed input line
func (t *TerminalPrompter) ReadLine() (string, error) {
	line, err := t.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
