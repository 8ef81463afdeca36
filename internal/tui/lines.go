package tui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/onedevai/ai-chatbot/internal/model/chat"
	"github.com/onedevai/ai-chatbot/internal/service/dispatch"
)

// RunLines drives the conversation from newline separated prompts on in and
// writes each reply to out. It is used when stdout is not a terminal.
func RunLines(ctx context.Context, in io.Reader, out io.Writer, d *dispatch.Dispatcher) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}

		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}

		reply, err := d.Submit(ctx, text)
		if err != nil {
			return errors.Wrap(err, "submit prompt")
		}
		if _, err := fmt.Fprintln(out, FormatLine(reply)); err != nil {
			return errors.Wrap(err, "write reply")
		}
	}
	return errors.Wrap(scanner.Err(), "read prompts")
}

// FormatLine renders an entry as a single plain-text line.
func FormatLine(msg chat.Message) string {
	avatar := avatarUser
	if msg.IsBot() {
		avatar = avatarBot
	}
	return fmt.Sprintf("%s [%s] %s", avatar, msg.Time, msg.Text)
}
