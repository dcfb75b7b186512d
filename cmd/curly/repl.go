package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chazu/curly/engine"
	"github.com/chazu/curly/vm"
)

// runREPL reads chunks from in and evaluates each in one session, so
// bindings persist between them. A chunk ends at the first line where
// every bracket opened so far has been closed.
func runREPL(ctx context.Context, e *engine.Engine, in io.Reader, out io.Writer) {
	fmt.Fprintln(out, "curly REPL (type 'exit' to quit, ':help' for commands)")

	host := &vm.WriterHost{W: out}
	session := e.NewSession(host)
	scanner := bufio.NewScanner(in)
	var buf strings.Builder

	for {
		if buf.Len() == 0 {
			fmt.Fprint(out, ">> ")
		} else {
			fmt.Fprint(out, ".. ")
		}
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()

		if buf.Len() == 0 {
			trimmed := strings.TrimSpace(line)
			if trimmed == "exit" || trimmed == "quit" {
				break
			}
			if strings.HasPrefix(trimmed, ":") {
				if trimmed == ":reset" {
					session = e.NewSession(host)
					fmt.Fprintln(out, "Session reset")
				} else {
					replCommand(session, trimmed, out)
				}
				continue
			}
		}

		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(line)
		if openBrackets(buf.String()) > 0 {
			continue
		}

		input := buf.String()
		buf.Reset()
		if strings.TrimSpace(input) == "" {
			continue
		}
		evalAndPrint(ctx, session, input, out)
	}

	fmt.Fprintln(out)
}

func replCommand(session *engine.Session, cmd string, out io.Writer) {
	switch cmd {
	case ":help", ":h", ":?":
		fmt.Fprintln(out, "REPL Commands:")
		fmt.Fprintln(out, "  :help, :h, :?     Show this help")
		fmt.Fprintln(out, "  :dis              Disassemble the code loaded so far")
		fmt.Fprintln(out, "  :steps            Show the instruction count of the session")
		fmt.Fprintln(out, "  :reset            Start a fresh session")
		fmt.Fprintln(out, "  exit, quit        Exit REPL")
	case ":dis":
		fmt.Fprintln(out, vm.Disassemble(session.VM().Program()))
	case ":steps":
		fmt.Fprintf(out, "%d steps\n", session.VM().Steps())
	default:
		fmt.Fprintf(out, "Unknown command: %s (type :help for commands)\n", cmd)
	}
}

// evalAndPrint runs one chunk and prints its value unless it is undefined.
func evalAndPrint(ctx context.Context, session *engine.Session, input string, out io.Writer) {
	res, err := session.Eval(ctx, input)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	if _, ok := vm.Unwrap(res.Value).(vm.Undefined); ok {
		return
	}
	fmt.Fprintln(out, display(res.Value))
}

// display renders a value for the REPL; strings are quoted.
func display(v vm.Value) string {
	if s, ok := vm.Unwrap(v).(vm.String); ok {
		return "'" + string(s) + "'"
	}
	return vm.ToString(v)
}

// openBrackets returns how many (, [ and { in source are still unclosed,
// ignoring string literals and comments.
func openBrackets(source string) int {
	depth := 0
	for i := 0; i < len(source); i++ {
		switch c := source[i]; c {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case '\'', '"':
			for i++; i < len(source) && source[i] != c; i++ {
			}
		case '/':
			if i+1 >= len(source) {
				break
			}
			switch source[i+1] {
			case '/':
				for i < len(source) && source[i] != '\n' {
					i++
				}
			case '*':
				end := strings.Index(source[i+2:], "*/")
				if end < 0 {
					return depth + 1
				}
				i += end + 3
			}
		}
	}
	return depth
}
