// Command pagectl indexes pages and asks questions about them from the
// command line, sharing the cache and configuration of the MCP server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dshills/pagecontext-mcp/internal/config"
	"github.com/dshills/pagecontext-mcp/internal/extract"
	"github.com/dshills/pagecontext-mcp/internal/logging"
	"github.com/dshills/pagecontext-mcp/internal/pageqa"
	"github.com/dshills/pagecontext-mcp/internal/retry"
	"github.com/dshills/pagecontext-mcp/internal/storage"
	"github.com/dshills/pagecontext-mcp/pkg/types"
)

const usage = `Usage: pagectl [global flags] <command> [flags] [args]

Commands:
  index    -key KEY [file]        index a page from file or stdin, reusing the cache
  reindex  -key KEY [file]        rebuild a page index, ignoring the cache
  ask      -key KEY <question>    answer a question about a page
  search   -key KEY <query>       list the most relevant chunks of a page
  clear    [-key KEY]             remove one cached page, or all of them
  status   [-key KEY]             show page state or overall status

Global flags:
`

type app struct {
	service *pageqa.Service
	retry   retry.Config
	out     io.Writer
}

func main() {
	global := flag.NewFlagSet("pagectl", flag.ExitOnError)
	configPath := global.String("config", "", "path to a TOML config file (default $PAGECONTEXT_CONFIG)")
	envFile := global.String("env", ".env", "dotenv file with API keys")
	retries := global.Int("retries", 0, "retry provider and storage failures this many times")
	global.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		global.PrintDefaults()
	}
	_ = global.Parse(os.Args[1:])

	if global.NArg() == 0 {
		global.Usage()
		os.Exit(2)
	}

	if err := run(*configPath, *envFile, *retries, global.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "pagectl: %v\n", err)
		if category := types.Classify(err); category != "" {
			fmt.Fprintf(os.Stderr, "category: %s\n", category)
		}
		os.Exit(1)
	}
}

func run(configPath, envFile string, retries int, args []string) error {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return err
	}
	logging.Setup(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache, err := storage.Open(cfg.Cache.Backend, cfg.Cache.Path)
	if err != nil {
		return err
	}
	defer func() { _ = cache.Close() }()

	service, err := pageqa.NewFromConfig(ctx, cfg, cache)
	if err != nil {
		return err
	}
	defer func() { _ = service.Close() }()

	a := &app{
		service: service,
		retry:   retry.DefaultConfig(retries + 1),
		out:     os.Stdout,
	}

	command, rest := args[0], args[1:]
	switch command {
	case "index":
		return a.index(ctx, rest, false)
	case "reindex":
		return a.index(ctx, rest, true)
	case "ask":
		return a.ask(ctx, rest)
	case "search":
		return a.search(ctx, rest)
	case "clear":
		return a.clear(ctx, rest)
	case "status":
		return a.status(ctx, rest)
	default:
		return fmt.Errorf("%w: unknown command %q", types.ErrInvalidInput, command)
	}
}

// contentFlags are shared by the commands that accept page content
type contentFlags struct {
	contentType string
	format      string
	baseURL     string
}

func (c *contentFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.contentType, "type", "", "content MIME type (default: from file extension, text/plain for stdin)")
	fs.StringVar(&c.format, "format", extract.FormatText, "extraction format for HTML: text or markdown")
	fs.StringVar(&c.baseURL, "base-url", "", "base URL for resolving links in markdown output")
}

// read loads page content from path, or stdin when path is "-"
func (c *contentFlags) read(path string) (string, error) {
	contentType := c.contentType
	var r io.Reader = os.Stdin

	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("%w: %w", types.ErrInvalidInput, err)
		}
		defer f.Close()
		r = f

		if contentType == "" {
			contentType = mime.TypeByExtension(filepath.Ext(path))
		}
	}
	if contentType == "" {
		contentType = "text/plain"
	}

	return extract.FromReader(r, contentType, c.baseURL, c.format)
}

func (a *app) index(ctx context.Context, args []string, force bool) error {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	key := fs.String("key", "", "page key (required)")
	var content contentFlags
	content.register(fs)
	_ = fs.Parse(args)

	if *key == "" {
		return fmt.Errorf("%w: -key is required", types.ErrInvalidInput)
	}

	path := "-"
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	text, err := content.read(path)
	if err != nil {
		return err
	}

	fn := a.service.IndexPage
	if force {
		fn = a.service.ReindexPage
	}
	res, err := retry.Do(ctx, a.retry, func(ctx context.Context) (*indexResult, error) {
		r, err := fn(ctx, *key, text)
		if err != nil {
			return nil, err
		}
		return &indexResult{
			PageKey:     *key,
			Chunks:      r.Chunks,
			Dimension:   r.Store.Dimension(),
			FromCache:   r.FromCache,
			Persisted:   r.Persisted,
			OperationID: r.OperationID,
			DurationMS:  r.Duration.Milliseconds(),
		}, nil
	})
	if err != nil {
		return err
	}
	return a.print(res)
}

type indexResult struct {
	PageKey     string `json:"page_key"`
	Chunks      int    `json:"chunks"`
	Dimension   int    `json:"dimension"`
	FromCache   bool   `json:"from_cache"`
	Persisted   bool   `json:"persisted"`
	OperationID string `json:"operation_id"`
	DurationMS  int64  `json:"duration_ms"`
}

func (a *app) ask(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	key := fs.String("key", "", "page key (required)")
	topK := fs.Int("top-k", 0, "number of chunks to ground the answer on (default from config)")
	file := fs.String("file", "", "page content to index when the page is not cached (- for stdin)")
	var content contentFlags
	content.register(fs)
	_ = fs.Parse(args)

	if *key == "" {
		return fmt.Errorf("%w: -key is required", types.ErrInvalidInput)
	}

	var text string
	if *file != "" {
		var err error
		if text, err = content.read(*file); err != nil {
			return err
		}
	}

	answer, err := retry.Do(ctx, a.retry, func(ctx context.Context) (*pageqa.Answer, error) {
		return a.service.AskQuestion(ctx, pageqa.AskRequest{
			PageKey:  *key,
			Question: strings.Join(fs.Args(), " "),
			RawText:  text,
			TopK:     *topK,
		})
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, answer.Text)
	fmt.Fprintf(a.out, "\n(%s/%s, %d sources, %v)\n", answer.Provider, answer.Model, len(answer.Sources), answer.Duration)
	return nil
}

func (a *app) search(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	key := fs.String("key", "", "page key (required)")
	limit := fs.Int("limit", 0, "maximum number of results (default from config)")
	_ = fs.Parse(args)

	if *key == "" {
		return fmt.Errorf("%w: -key is required", types.ErrInvalidInput)
	}

	resp, err := retry.Do(ctx, a.retry, func(ctx context.Context) ([]types.SearchResult, error) {
		r, err := a.service.Search(ctx, *key, strings.Join(fs.Args(), " "), *limit)
		if err != nil {
			return nil, err
		}
		return r.Results, nil
	})
	if err != nil {
		return err
	}

	for _, r := range resp {
		fmt.Fprintf(a.out, "%d. [%.4f] chunk %d\n%s\n\n", r.Rank, r.Score, r.Chunk.SequenceIndex, r.Chunk.Text)
	}
	if len(resp) == 0 {
		fmt.Fprintln(a.out, "no results")
	}
	return nil
}

func (a *app) clear(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	key := fs.String("key", "", "remove only this page")
	_ = fs.Parse(args)

	if *key != "" {
		removed, err := a.service.ClearCacheEntry(ctx, *key)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("%w: page %q is not cached", types.ErrNotIndexed, *key)
		}
		fmt.Fprintf(a.out, "removed %s\n", *key)
		return nil
	}

	n, err := a.service.ClearCache(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "removed %d pages\n", n)
	return nil
}

func (a *app) status(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	key := fs.String("key", "", "report only this page")
	_ = fs.Parse(args)

	if *key != "" {
		return a.print(a.service.State(*key))
	}

	status, err := a.service.Status(ctx)
	if err != nil {
		return err
	}
	return a.print(status)
}

func (a *app) print(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
