package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// terminalConfirmer asks for tool approval on the terminal. The gateway
// serializes calls, so only one prompt is ever shown at a time.
type terminalConfirmer struct {
	in  *bufio.Reader
	out *os.File
}

func newTerminalConfirmer() *terminalConfirmer {
	return &terminalConfirmer{
		in:  bufio.NewReader(os.Stdin),
		out: os.Stderr,
	}
}

// Confirm prompts for a y/N answer. Anything other than y or yes denies.
func (c *terminalConfirmer) Confirm(ctx context.Context, action string) (bool, error) {
	fmt.Fprintf(c.out, "\n[approval required]\n%s\nAllow? [y/N]: ", action)

	type answer struct {
		text string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := c.in.ReadString('\n')
		ch <- answer{text: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-ch:
		if a.err != nil {
			return false, a.err
		}
		reply := strings.ToLower(strings.TrimSpace(a.text))
		return reply == "y" || reply == "yes", nil
	}
}
