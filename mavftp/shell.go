/*
MIT License

Copyright (c) 2024 The Mavftp Authors.

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

package mavftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"github.com/trzsz/go-arg"
	"github.com/trzsz/promptui"
)

type promptWriter struct {
	writer io.Writer
}

func (w *promptWriter) Write(p []byte) (int, error) {
	if len(p) == 1 && p[0] == readline.CharBell { // no bell ringing
		return 1, nil
	}
	return w.writer.Write(p)
}

func (w *promptWriter) Close() error {
	return nil
}

var confirmFunc = func(stdin io.ReadCloser, stdout io.Writer, label string) bool {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
		Stdin:     stdin,
		Stdout:    &promptWriter{stdout},
	}
	_, err := prompt.Run()
	return err == nil
}

func confirm(stdin io.ReadCloser, stdout io.Writer, label string) bool {
	return confirmFunc(stdin, stdout, label)
}

type cdCmd struct {
	Path string `arg:"positional" help:"remote directory. (default: /)"`
}

type shellArgs struct {
	fileCommands
	Cd   *cdCmd    `arg:"subcommand:cd" help:"change the remote directory"`
	Pwd  *emptyCmd `arg:"subcommand:pwd" help:"print the remote directory"`
	Exit *emptyCmd `arg:"subcommand:exit" help:"leave the shell"`
}

var shellCommandNames = []string{
	"ls", "get", "put", "rm", "mkdir", "rmdir", "mv", "truncate", "crc", "reset", "cd", "pwd", "exit",
}

func newShellCompleter() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(shellCommandNames))
	for _, name := range shellCommandNames {
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}

func shellHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".mavftp_history")
}

// execLine runs one shell line. It returns false when the shell should exit.
func (s *cliSession) execLine(ctx context.Context, line string) bool {
	words, err := shlex.Split(line)
	if err != nil {
		fmt.Fprintf(s.stdout, "Parse [%s] failed: %v\n", line, err)
		return true
	}
	if len(words) == 0 {
		return true
	}
	if words[0] == "quit" {
		return false
	}

	var args shellArgs
	parser, err := arg.NewParser(arg.Config{Program: "", Out: s.stdout}, &args)
	if err != nil {
		fmt.Fprintln(s.stdout, err)
		return true
	}
	if err := parser.Parse(words); err != nil {
		if errors.Is(err, arg.ErrHelp) || words[0] == "help" {
			parser.WriteHelp(s.stdout)
		} else {
			fmt.Fprintf(s.stdout, "error: %v\n", err)
		}
		return true
	}

	switch {
	case args.Exit != nil:
		return false
	case args.Pwd != nil:
		fmt.Fprintln(s.stdout, s.cwd)
	case args.Cd != nil:
		target := "/"
		if args.Cd.Path != "" {
			target = s.resolve(args.Cd.Path)
		}
		if _, result := s.client.ListDirectory(ctx, target, 0); !s.report(result) {
			return true
		}
		s.cwd = target
	default:
		if parser.Subcommand() == nil {
			parser.WriteHelp(s.stdout)
			return true
		}
		s.runFileCommand(ctx, &args.fileCommands)
	}
	return true
}

func (s *cliSession) shellPrompt() string {
	return fmt.Sprintf("mavftp:%s> ", s.cwd)
}

// runShell reads commands until exit or EOF.
func (s *cliSession) runShell() int {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.shellPrompt(),
		HistoryFile:     shellHistoryFile(),
		AutoComplete:    newShellCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Start shell failed: %v\n", err)
		return 2
	}
	defer rl.Close()
	s.stdout = rl.Stdout()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			return 0
		}
		if !s.execLine(context.Background(), strings.TrimSpace(line)) {
			return 0
		}
		rl.SetPrompt(s.shellPrompt())
	}
}
