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
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/ncruces/zenity"
	"github.com/trzsz/go-arg"
	"golang.org/x/term"
)

type lsCmd struct {
	Path string `arg:"positional" help:"remote directory. (default: /, or the shell directory)"`
	Long bool   `arg:"-l" help:"show type and size of each entry"`
}

type getCmd struct {
	Remote string `arg:"positional,required" help:"remote file"`
	Local  string `arg:"positional" help:"local file or directory. (default: DefaultDownloadPath or current directory)"`
	Dialog bool   `arg:"-d" help:"choose the local directory with a dialog"`
}

type putCmd struct {
	Local  string `arg:"positional" help:"local file"`
	Remote string `arg:"positional" help:"remote file, a trailing / keeps the local name. (default: /<local name>)"`
	Dialog bool   `arg:"-d" help:"choose the local file with a dialog"`
}

type pathCmd struct {
	Path string `arg:"positional,required" help:"remote path"`
}

type removeCmd struct {
	Path string `arg:"positional,required" help:"remote path"`
	Yes  bool   `arg:"-y" help:"yes, remove without asking"`
}

type mvCmd struct {
	Old string `arg:"positional,required" help:"remote path to rename"`
	New string `arg:"positional,required" help:"new remote path"`
}

type truncateCmd struct {
	Path string `arg:"positional,required" help:"remote file"`
	Size uint32 `arg:"positional,required" help:"new size in bytes"`
}

type crcCmd struct {
	Path string `arg:"positional,required" help:"remote file"`
	Copy bool   `arg:"-C,--copy" help:"copy the checksum to the clipboard"`
}

type emptyCmd struct{}

// fileCommands are available both on the command line and in the shell.
type fileCommands struct {
	Ls       *lsCmd       `arg:"subcommand:ls" help:"list a remote directory"`
	Get      *getCmd      `arg:"subcommand:get" help:"download a remote file"`
	Put      *putCmd      `arg:"subcommand:put" help:"upload a local file"`
	Rm       *removeCmd   `arg:"subcommand:rm" help:"remove a remote file"`
	Mkdir    *pathCmd     `arg:"subcommand:mkdir" help:"create a remote directory"`
	Rmdir    *removeCmd   `arg:"subcommand:rmdir" help:"remove an empty remote directory"`
	Mv       *mvCmd       `arg:"subcommand:mv" help:"rename a remote file or directory"`
	Truncate *truncateCmd `arg:"subcommand:truncate" help:"truncate a remote file"`
	Crc      *crcCmd      `arg:"subcommand:crc" help:"print the CRC32 of a remote file"`
	Reset    *emptyCmd    `arg:"subcommand:reset" help:"close every session on the vehicle"`
}

type mavftpArgs struct {
	fileCommands
	Shell     *emptyCmd     `arg:"subcommand:shell" help:"interactive shell"`
	Ports     *emptyCmd     `arg:"subcommand:ports" help:"list serial ports"`
	Endpoint  string        `arg:"-e" placeholder:"URL" help:"serial:<device>[:<baud>], udp:<host>:<port>, udpin:<addr>:<port>,\ntcp:<host>:<port> or tcpin:<addr>:<port>. (default: DefaultEndpoint)"`
	System    uint8         `arg:"-s" placeholder:"ID" default:"1" help:"target system id. (default: 1)"`
	Component uint8         `arg:"-c" placeholder:"ID" default:"1" help:"target component id. (default: 1)"`
	Timeout   time.Duration `arg:"-t" placeholder:"T" default:"2s" help:"reply timeout of each request. (default: 2s)"`
	Retries   int           `arg:"-r" placeholder:"N" default:"5" help:"retransmissions before giving up. (default: 5)"`
	Chunk     chunkSize     `arg:"-B" placeholder:"N" default:"max" help:"data bytes per request (1<=N<=239). (default: max)"`
	NoBurst   bool          `arg:"--no-burst" help:"download with ReadFile instead of BurstReadFile"`
	Quiet     bool          `arg:"-q" help:"quiet (hide progress bar)"`
	Verbose   bool          `arg:"-v" help:"print protocol events"`
	TraceLog  bool          `arg:"--tracelog" help:"write every record to a trace log in the temp directory"`
}

func (mavftpArgs) Description() string {
	return "File transfer with a MAVLink vehicle over MAVFTP.\n"
}

func (mavftpArgs) Version() string {
	return fmt.Sprintf("mavftp go %s", kMavftpVersion)
}

func parseMavftpArgs(osArgs []string) (*mavftpArgs, *arg.Parser) {
	var args mavftpArgs
	parser, err := arg.NewParser(arg.Config{Out: os.Stderr, Exit: os.Exit}, &args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
		return nil, nil
	}
	var flags []string
	if len(osArgs) > 0 {
		flags = osArgs[1:]
	}
	parser.MustParse(flags)
	return &args, parser
}

// cliSession bundles what a command needs to run against the vehicle.
type cliSession struct {
	client   *Client
	logger   Logger
	progress *textProgressBar
	stdout   io.Writer
	stdin    io.ReadCloser
	color    bool
	columns  int
	cwd      string
}

func (s *cliSession) resolve(p string) string {
	if p == "" {
		return s.cwd
	}
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, "@") {
		return p
	}
	return path.Join(s.cwd, p)
}

func (s *cliSession) report(result *Result) bool {
	if !result.OK() {
		s.logger.Error("%s", result.Message())
		return false
	}
	return true
}

func (s *cliSession) beginTransfer() {
	s.progress.onNum(1)
}

func (s *cliSession) endTransfer() {
	s.progress.done()
	s.progress.finish()
}

func defaultDownloadPath() string {
	if p := getMavftpConfig("DefaultDownloadPath"); p != nil {
		if strings.HasPrefix(*p, "~/") {
			if home, err := os.UserHomeDir(); err == nil {
				return filepath.Join(home, (*p)[2:])
			}
		}
		return *p
	}
	return "."
}

func chooseDownloadDir() (string, error) {
	return zenity.SelectFile(
		zenity.Title("Choose a folder to save the file"),
		zenity.Directory(),
		zenity.ShowHidden(),
	)
}

func chooseUploadFile() (string, error) {
	return zenity.SelectFile(
		zenity.Title("Choose a file to upload"),
		zenity.ShowHidden(),
	)
}

func localTarget(remote, local string) string {
	if local == "" {
		local = defaultDownloadPath()
	}
	if info, err := os.Stat(local); err == nil && info.IsDir() {
		return filepath.Join(local, path.Base(remote))
	}
	return local
}

func remoteTarget(local, remote string) string {
	name := filepath.Base(local)
	if remote == "" {
		return "/" + name
	}
	if strings.HasSuffix(remote, "/") {
		return remote + name
	}
	return remote
}

// runFileCommand runs one of the shared commands and reports whether it succeeded.
func (s *cliSession) runFileCommand(ctx context.Context, cmd *fileCommands) bool {
	c := s.client
	switch {
	case cmd.Ls != nil:
		entries, result := c.ListDirectory(ctx, s.resolve(cmd.Ls.Path), 0)
		if !s.report(result) {
			return false
		}
		printListing(s.stdout, entries, cmd.Ls.Long, s.color, s.columns)
		return true
	case cmd.Get != nil:
		local := cmd.Get.Local
		if cmd.Get.Dialog {
			dir, err := chooseDownloadDir()
			if err == zenity.ErrCanceled {
				return true
			}
			if err != nil {
				s.logger.Error("Choose a folder failed: %v", err)
				return false
			}
			local = dir
		}
		local = localTarget(cmd.Get.Remote, local)
		s.beginTransfer()
		result := c.Get(ctx, s.resolve(cmd.Get.Remote), local)
		s.endTransfer()
		if !s.report(result) {
			return false
		}
		fmt.Fprintf(s.stdout, "Saved to %s\n", local)
		return true
	case cmd.Put != nil:
		local := cmd.Put.Local
		if cmd.Put.Dialog {
			file, err := chooseUploadFile()
			if err == zenity.ErrCanceled {
				return true
			}
			if err != nil {
				s.logger.Error("Choose a file failed: %v", err)
				return false
			}
			local = file
		}
		if local == "" {
			s.logger.Error("%s", FormatMessage("Put", ErrInvalidArguments, 0))
			return false
		}
		s.beginTransfer()
		result := c.Put(ctx, local, s.resolve(remoteTarget(local, cmd.Put.Remote)))
		s.endTransfer()
		return s.report(result)
	case cmd.Rm != nil:
		target := s.resolve(cmd.Rm.Path)
		if !cmd.Rm.Yes && !confirm(s.stdin, s.stdout, fmt.Sprintf("Remove file %s", target)) {
			return true
		}
		return s.report(c.RemoveFile(ctx, target))
	case cmd.Mkdir != nil:
		return s.report(c.CreateDirectory(ctx, s.resolve(cmd.Mkdir.Path)))
	case cmd.Rmdir != nil:
		target := s.resolve(cmd.Rmdir.Path)
		if !cmd.Rmdir.Yes && !confirm(s.stdin, s.stdout, fmt.Sprintf("Remove directory %s", target)) {
			return true
		}
		return s.report(c.RemoveDirectory(ctx, target))
	case cmd.Mv != nil:
		return s.report(c.Rename(ctx, s.resolve(cmd.Mv.Old), s.resolve(cmd.Mv.New)))
	case cmd.Truncate != nil:
		return s.report(c.TruncateFile(ctx, s.resolve(cmd.Truncate.Path), cmd.Truncate.Size))
	case cmd.Crc != nil:
		crc, result := c.CalcFileCRC32(ctx, s.resolve(cmd.Crc.Path))
		if !s.report(result) {
			return false
		}
		text := fmt.Sprintf("%08x", crc)
		fmt.Fprintln(s.stdout, text)
		if cmd.Crc.Copy {
			if err := clipboard.WriteAll(text); err != nil {
				s.logger.Error("Copy to clipboard failed: %v", err)
				return false
			}
		}
		return true
	case cmd.Reset != nil:
		return s.report(c.ResetSessions(ctx))
	}
	return false
}

func printPorts(w io.Writer) int {
	ports, err := listSerialPorts()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if len(ports) == 0 {
		fmt.Fprintln(w, "No serial port found")
		return 0
	}
	for _, port := range ports {
		fmt.Fprintln(w, port)
	}
	return 0
}

func newSessionConfig(args *mavftpArgs, logger Logger) *Config {
	cfg := DefaultConfig()
	cfg.Timeout = args.Timeout
	cfg.MaxRetries = args.Retries
	cfg.BurstRead = !args.NoBurst
	cfg.ChunkSize = args.Chunk.Size
	cfg.Logger = logger
	return cfg
}

func terminalColumns() (int, bool) {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0, false
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width <= 0 {
		return 80, true
	}
	return width, true
}

// MavftpMain is the main function of `mavftp` binary.
func MavftpMain() (code int) {
	args, parser := parseMavftpArgs(os.Args)

	defer func() {
		if err := recover(); err != nil {
			fmt.Fprintf(os.Stderr, "mavftp panic: %v\n", err)
			code = -3
		}
	}()

	if args.Ports != nil {
		return printPorts(os.Stdout)
	}
	if parser.Subcommand() == nil {
		parser.WriteHelp(os.Stderr)
		return 2
	}

	endpoint := args.Endpoint
	if endpoint == "" {
		if value := getMavftpConfig("DefaultEndpoint"); value != nil {
			endpoint = *value
		}
	}
	if endpoint == "" {
		fmt.Fprintln(os.Stderr, "No endpoint, use -e or set DefaultEndpoint in ~/.mavftp.conf")
		return 2
	}

	var logger Logger = newConsoleLogger(os.Stderr, args.Verbose)
	if args.TraceLog {
		traceLogger, err := newTraceLogger("", logger)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		traceFile := traceLogger.fileName()
		defer func() {
			traceLogger.close()
			fmt.Fprintf(os.Stderr, "Trace log saved to %s\n", traceFile)
		}()
		logger = traceLogger
	}

	columns, isTerminal := terminalColumns()
	var progress *textProgressBar
	if isTerminal && !args.Quiet {
		colorPair := ""
		if value := getMavftpConfig("ProgressColorPair"); value != nil {
			colorPair = *value
		}
		progress = newTextProgressBar(os.Stdout, int32(columns), colorPair)
	}

	cfg := newSessionConfig(args, logger)
	if progress != nil {
		cfg.OnProgress = progress.update
	}

	var client atomic.Pointer[Client]
	link, err := NewMavlinkLink(LinkConfig{
		Endpoint:        endpoint,
		TargetSystem:    args.System,
		TargetComponent: args.Component,
	}, logger, func(buf []byte) {
		if c := client.Load(); c != nil {
			c.OnReceive(buf)
		}
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer link.Close()
	client.Store(NewClient(link, cfg))

	// ctrl + c cancels the running operation
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			client.Load().Cancel()
		}
	}()

	s := &cliSession{
		client:   client.Load(),
		logger:   logger,
		progress: progress,
		stdout:   os.Stdout,
		stdin:    os.Stdin,
		color:    isTerminal,
		columns:  columns,
		cwd:      "/",
	}
	if args.Shell != nil {
		return s.runShell()
	}
	if !s.runFileCommand(context.Background(), &args.fileCommands) {
		return 1
	}
	return 0
}
