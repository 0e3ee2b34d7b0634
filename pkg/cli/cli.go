// Package cli implements the erctl interactive shell over the snapshot
// archive and the router's load-balance status.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/psaab/erconf/pkg/api"
	"github.com/psaab/erconf/pkg/cmdtree"
	"github.com/psaab/erconf/pkg/config"
	"github.com/psaab/erconf/pkg/poll"
)

// Backend supplies the data the shell shows. *api.Client talks to a
// running erscraped; Local reads an archive directly.
type Backend interface {
	History(ctx context.Context) ([]api.SnapshotInfo, error)
	Snapshot(ctx context.Context, n int) (string, error)
	Compare(ctx context.Context, from, to int, unified bool) (*api.CompareResponse, error)
	LoadBalance(ctx context.Context) (*poll.LoadBalance, error)
	Events(ctx context.Context, n int) ([]api.EventEntry, error)
}

// CLI is the interactive command-line interface.
type CLI struct {
	rl       *readline.Instance
	backend  Backend
	policy   config.Policy
	out      io.Writer
	hostname string
	username string
	timeout  time.Duration
}

// New creates a new CLI writing command output to out. policy parses
// snapshots for "show configuration <section>".
func New(backend Backend, policy config.Policy, out io.Writer) *CLI {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "erctl"
	}
	username := os.Getenv("USER")
	if username == "" {
		username = "root"
	}
	return &CLI{
		backend:  backend,
		policy:   policy,
		out:      out,
		hostname: hostname,
		username: username,
		timeout:  time.Minute,
	}
}

// Run starts the interactive CLI loop.
func (c *CLI) Run() error {
	var err error
	c.rl, err = readline.NewEx(&readline.Config{
		Prompt:          c.prompt(),
		HistoryFile:     "/tmp/erctl_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    &completer{cli: c},
		Listener:        readline.FuncListener(c.helpListener),
	})
	if err != nil {
		return fmt.Errorf("readline init: %w", err)
	}
	defer c.rl.Close()
	c.out = c.rl.Stdout()

	fmt.Fprintln(c.out, "erctl - EdgeRouter configuration archive")
	fmt.Fprintln(c.out, "Type '?' for help")
	fmt.Fprintln(c.out)

	for {
		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				break
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := c.Execute(line); err != nil {
			if err == errExit {
				return nil
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	return nil
}

func (c *CLI) prompt() string {
	return fmt.Sprintf("%s@%s> ", c.username, c.hostname)
}

var errExit = errors.New("exit")

// Execute runs one command line, applying any "| filter" to its output.
// It returns errExit for exit and quit.
func (c *CLI) Execute(line string) error {
	cmd, pipe, _ := strings.Cut(line, "|")
	filter, err := parsePipe(pipe)
	if err != nil {
		return err
	}

	out := c.out
	var buf strings.Builder
	if filter != nil {
		c.out = &buf
	}
	err = c.dispatch(strings.Fields(cmd))
	c.out = out
	if filter != nil {
		io.WriteString(out, filter(buf.String()))
	}
	return err
}

func (c *CLI) dispatch(parts []string) error {
	if len(parts) == 0 {
		return nil
	}

	switch parts[0] {
	case "show":
		return c.handleShow(parts[1:])

	case "quit", "exit":
		return errExit

	case "?", "help":
		c.showHelp()
		return nil

	default:
		return fmt.Errorf("unknown command: %s", parts[0])
	}
}

func (c *CLI) handleShow(args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "show: specify what to show")
		cmdtree.WriteHelp(c.out, candidates(cmdtree.OperationalTree["show"].Children))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	switch args[0] {
	case "history":
		return c.showHistory(ctx)
	case "configuration":
		return c.showConfiguration(ctx, args[1:])
	case "compare":
		return c.showCompare(ctx, args[1:])
	case "load-balance":
		return c.showLoadBalance(ctx)
	case "events":
		return c.showEvents(ctx, args[1:])
	default:
		return fmt.Errorf("unknown show target: %s", args[0])
	}
}

func (c *CLI) showHistory(ctx context.Context) error {
	list, err := c.backend.History(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(c.out, "No snapshots archived")
		return nil
	}
	fmt.Fprintf(c.out, "%-4s %-26s %s\n", "#", "Snapshot", "Size")
	for _, s := range list {
		fmt.Fprintf(c.out, "%-4d %-26s %d\n", s.Index, s.Name, s.Size)
	}
	return nil
}

// showConfiguration handles "show configuration [n] [section ...]".
func (c *CLI) showConfiguration(ctx context.Context, args []string) error {
	n := 0
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil {
			n = v
			args = args[1:]
		}
	}
	text, err := c.backend.Snapshot(ctx, n)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		io.WriteString(c.out, text)
		return nil
	}

	cfg, err := config.Parse(text, c.policy)
	if err != nil {
		return err
	}
	node, err := lookupWords(cfg, args)
	if err != nil {
		return err
	}
	for _, line := range node.Render("") {
		fmt.Fprintln(c.out, line)
	}
	return nil
}

// lookupWords resolves a path typed as words. Section names may contain
// spaces ("ethernet eth0"), so at each level the longest run of words that
// names a child wins.
func lookupWords(cfg *config.Config, words []string) (config.Node, error) {
	var path []string
	var node config.Node = cfg
	for len(words) > 0 {
		var firstErr error
		found := false
		for k := len(words); k >= 1; k-- {
			n, err := cfg.Lookup(append(path, strings.Join(words[:k], " "))...)
			if err == nil {
				path = append(path, strings.Join(words[:k], " "))
				node, words, found = n, words[k:], true
				break
			}
			if k == 1 {
				firstErr = err
			}
		}
		if !found {
			return nil, firstErr
		}
	}
	return node, nil
}

// showCompare handles "show compare [n [m]] [unified]": the diff from
// snapshot n (default 1) to snapshot m (default 0).
func (c *CLI) showCompare(ctx context.Context, args []string) error {
	unified := false
	var nums []int
	for _, a := range args {
		if a == "unified" {
			unified = true
			continue
		}
		v, err := strconv.Atoi(a)
		if err != nil || v < 0 {
			return fmt.Errorf("show compare: invalid snapshot %q", a)
		}
		nums = append(nums, v)
	}
	if len(nums) > 2 {
		return fmt.Errorf("show compare: too many arguments")
	}
	from, to := 1, 0
	if len(nums) > 0 {
		from = nums[0]
	}
	if len(nums) > 1 {
		to = nums[1]
	}

	resp, err := c.backend.Compare(ctx, from, to, unified)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "# %s -> %s (+%d -%d)\n", resp.From.Name, resp.To.Name, resp.Added, resp.Removed)
	io.WriteString(c.out, resp.Diff)
	return nil
}

func (c *CLI) showLoadBalance(ctx context.Context) error {
	lb, err := c.backend.LoadBalance(ctx)
	if err != nil {
		return err
	}
	io.WriteString(c.out, lb.String())
	return nil
}

func (c *CLI) showEvents(ctx context.Context, args []string) error {
	n := 20
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 {
			return fmt.Errorf("show events: invalid count %q", args[0])
		}
		n = v
	}
	events, err := c.backend.Events(ctx, n)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(c.out, "No events")
		return nil
	}
	for _, e := range events {
		fmt.Fprintf(c.out, "%s %-7s %s\n", e.Time, e.Severity, e.Message)
	}
	return nil
}

func (c *CLI) showHelp() {
	fmt.Fprintln(c.out, "Commands:")
	fmt.Fprintln(c.out, "  show history                          List archived snapshots (0 = latest)")
	fmt.Fprintln(c.out, "  show configuration [n] [section ...]  Show snapshot n")
	fmt.Fprintln(c.out, "  show compare [n [m]] [unified]        Diff snapshot n (default 1) to m (default 0)")
	fmt.Fprintln(c.out, "  show load-balance                     Show WAN load-balance status")
	fmt.Fprintln(c.out, "  show events [n]                       Show recent scraper events")
	fmt.Fprintln(c.out, "  exit | quit                           Leave the shell")
	fmt.Fprintln(c.out, "Output filters: | match <re>, | except <re>, | count, | last <n>")
}

// parsePipe compiles a "| filter arg" clause into an output transform.
// An empty clause yields nil.
func parsePipe(pipe string) (func(string) string, error) {
	fields := strings.Fields(pipe)
	if len(fields) == 0 {
		return nil, nil
	}
	name := fields[0]
	arg := strings.Join(fields[1:], " ")

	switch name {
	case "match", "except":
		if arg == "" {
			return nil, fmt.Errorf("%s: missing pattern", name)
		}
		re, err := regexp.Compile(arg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		keep := name == "match"
		return func(s string) string {
			var b strings.Builder
			for _, line := range splitLines(s) {
				if re.MatchString(line) == keep {
					b.WriteString(line)
					b.WriteByte('\n')
				}
			}
			return b.String()
		}, nil

	case "count":
		return func(s string) string {
			return fmt.Sprintf("Count: %d lines\n", len(splitLines(s)))
		}, nil

	case "last":
		n := 10
		if arg != "" {
			v, err := strconv.Atoi(arg)
			if err != nil || v < 1 {
				return nil, fmt.Errorf("last: invalid count %q", arg)
			}
			n = v
		}
		return func(s string) string {
			lines := splitLines(s)
			if len(lines) > n {
				lines = lines[len(lines)-n:]
			}
			if len(lines) == 0 {
				return ""
			}
			return strings.Join(lines, "\n") + "\n"
		}, nil

	default:
		return nil, fmt.Errorf("unknown pipe filter: %s", name)
	}
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
