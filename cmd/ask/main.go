package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/crosscheck/internal/app"
	"github.com/OFFIS-RIT/crosscheck/internal/config"
	"github.com/OFFIS-RIT/crosscheck/internal/queue"
	"github.com/OFFIS-RIT/crosscheck/internal/util"
	"github.com/OFFIS-RIT/crosscheck/pkg/common"
	"github.com/OFFIS-RIT/crosscheck/pkg/logger"
	"github.com/OFFIS-RIT/crosscheck/pkg/logger/console"
	"github.com/OFFIS-RIT/crosscheck/pkg/pipeline"
)

// asker runs one question. The local variant calls the pipeline in process,
// the remote one goes through the answer-all queue.
type asker func(ctx context.Context, question string) (pipeline.Consensus, error)

func main() {
	cfgPath := flag.String("config", "", "Path to config YAML (default $CONFIG_PATH or config.yaml)")
	backends := flag.String("backends", "", "Comma separated backend ids, empty for all")
	evidence := flag.Bool("evidence", false, "Attach stored facts to every answer")
	summarize := flag.String("summarize", "", "Summarize the document with this backend before asking")
	remote := flag.Bool("remote", false, "Send questions to the worker over RabbitMQ")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: ask [flags] <source>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	source := flag.Arg(0)

	util.LoadEnv()
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: *debug || util.GetEnvBool("DEBUG", false),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := pipeline.AnswerAllOptions{WithEvidence: *evidence}
	for _, b := range strings.Split(*backends, ",") {
		if b = strings.TrimSpace(b); b != "" {
			opts.Backends = append(opts.Backends, common.BackendID(b))
		}
	}

	var (
		ask     asker
		release func()
	)
	if *remote {
		ask, release = remoteAsker(ctx, source, opts)
	} else {
		ask, release = localAsker(ctx, *cfgPath, source, *summarize, opts)
	}
	defer release()

	if err := repl(ctx, os.Stdin, os.Stdout, ask); err != nil {
		release()
		logger.Fatal("[Ask] Session failed", "err", err)
	}
}

// closeOnce returns a func running closeFn at most once, either when the
// caller invokes it or when ctx is done.
func closeOnce(ctx context.Context, closeFn func(context.Context) error) func() {
	release := sync.OnceFunc(func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := closeFn(closeCtx); err != nil {
			logger.Warn("[Ask] Close failed", "err", err)
		}
	})
	context.AfterFunc(ctx, release)
	return release
}

func localAsker(ctx context.Context, cfgPath, source, summarize string, opts pipeline.AnswerAllOptions) (asker, func()) {
	var (
		cfg *config.Config
		err error
	)
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		logger.Fatal("[Ask] Failed to load config", "err", err)
	}

	// The CLI reads whatever the local user can read.
	a, err := app.New(ctx, cfg, app.WithTrustedSources())
	if err != nil {
		logger.Fatal("[Ask] Failed to build pipeline", "err", err)
	}
	release := closeOnce(ctx, a.Close)

	doc, err := a.Pipeline.Load(ctx, source)
	if err != nil {
		release()
		logger.Fatal("[Ask] Failed to load document", "source", source, "err", err)
	}
	logger.Info("[Ask] Loaded document", "source", source, "chars", doc.Len())

	if summarize != "" {
		res, err := a.Pipeline.Summarize(ctx, doc, common.BackendID(summarize))
		if err != nil {
			release()
			logger.Fatal("[Ask] Failed to summarize", "backend", summarize, "err", err)
		}
		renderResponse(os.Stdout, res)
	}

	return func(ctx context.Context, question string) (pipeline.Consensus, error) {
		return a.Pipeline.AnswerAll(ctx, doc, question, opts)
	}, release
}

func remoteAsker(ctx context.Context, source string, opts pipeline.AnswerAllOptions) (asker, func()) {
	conn, err := queue.Init(ctx)
	if err != nil {
		logger.Fatal("[Ask] Failed to connect to RabbitMQ", "err", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("[Ask] Failed to open channel", "err", err)
	}
	release := closeOnce(ctx, func(context.Context) error {
		return errors.Join(ch.Close(), conn.Close())
	})

	job := queue.AnswerAllJob{Source: source, Evidence: opts.WithEvidence}
	for _, b := range opts.Backends {
		job.Backends = append(job.Backends, string(b))
	}

	return func(ctx context.Context, question string) (pipeline.Consensus, error) {
		job.Question = question
		return queue.CallAnswerAll(ctx, ch, job)
	}, release
}

// repl reads one question per line until EOF, "exit" or "quit".
func repl(ctx context.Context, in io.Reader, out io.Writer, ask asker) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		switch question {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		res, err := ask(ctx, question)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(out, warnStyle.Render("error: "+err.Error()))
			continue
		}
		renderConsensus(out, res)
	}
}
