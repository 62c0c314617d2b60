package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cexll/agentsdk-go/pkg/api"
)

// Ask sends a single prompt and writes the final answer to out.
func Ask(ctx context.Context, rt Runtime, prompt string, out io.Writer) error {
	resp, err := rt.Run(ctx, api.Request{Prompt: prompt, SessionID: "cli"})
	if err != nil {
		return fmt.Errorf("agent error: %w", err)
	}
	writeOutput(out, resp)
	return nil
}

// REPL reads prompts line by line until EOF, "exit" or "quit". Errors from
// a single turn are reported on errOut and do not end the session.
func REPL(ctx context.Context, rt Runtime, in io.Reader, out, errOut io.Writer) {
	fmt.Fprintln(out, "atlastools agent (type 'exit' to quit)")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			return
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return
		}

		resp, err := rt.Run(ctx, api.Request{Prompt: input, SessionID: "cli-repl"})
		if err != nil {
			fmt.Fprintf(errOut, "Error: %v\n", err)
			continue
		}
		writeOutput(out, resp)
	}
}

func writeOutput(out io.Writer, resp *api.Response) {
	if resp != nil && resp.Result != nil {
		fmt.Fprintln(out, resp.Result.Output)
	}
}
