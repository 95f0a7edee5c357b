// Command cristaline manages a todo list stored in an event log.
//
// Usage:
//
//	cristaline add <title>
//	cristaline done <id>
//	cristaline rename <id> <title>
//	cristaline remove <id>
//	cristaline clear
//	cristaline list
//	cristaline events
//	cristaline snapshot
//	cristaline serve
//
// The storage backend and everything else is configured through
// CRISTALINE_* environment variables, see Config.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	promadapter "github.com/aminnairi/cristaline/adapters/prometheus"
	"github.com/aminnairi/cristaline/core/es"
	"github.com/aminnairi/cristaline/examples/todo"
)

var errUsage = errors.New("usage: cristaline add|done|rename|remove|clear|list|events|snapshot|serve [args]")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "cristaline:", err)
		os.Exit(1)
	}
}

type app struct {
	cfg       Config
	log       *slog.Logger
	out       io.Writer
	engine    *todo.Engine
	compactor *es.Compactor[todo.State]
	registry  *prometheus.Registry
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	return build(ctx, out, func(a *app) error {
		return a.dispatch(ctx, args[0], args[1:])
	})
}

// build wires an initialized app from the environment, hands it to fn and
// releases the adapter once fn returns.
func build(ctx context.Context, out io.Writer, fn func(*app) error) error {
	cfg, err := parseConfig()
	if err != nil {
		return err
	}
	level, _ := cfg.level()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	adapter, closeAdapter, err := openAdapter(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open %s adapter: %w", cfg.Adapter, err)
	}
	defer closeAdapter()

	engine, err := todo.NewEngine(adapter,
		es.WithName("todo"),
		es.WithLog(log),
		es.WithMetrics(promadapter.NewESMetrics(registry)),
	)
	if err != nil {
		return err
	}
	if err := engine.Initialize(ctx); err != nil {
		return fmt.Errorf("load todos: %w", err)
	}

	return fn(&app{
		cfg:       cfg,
		log:       log,
		out:       out,
		engine:    engine,
		compactor: es.NewCompactor(engine, es.WithThreshold(cfg.SnapshotEvery), es.WithLog(log)),
		registry:  registry,
	})
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "add":
		if len(args) == 0 {
			return errUsage
		}
		id, err := todo.Add(ctx, a.engine, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, id)
		return a.maybeCompact(ctx)

	case "done":
		if len(args) != 1 {
			return errUsage
		}
		return a.write(ctx, todo.Complete(ctx, a.engine, args[0]))

	case "rename":
		if len(args) < 2 {
			return errUsage
		}
		return a.write(ctx, todo.Rename(ctx, a.engine, args[0], strings.Join(args[1:], " ")))

	case "remove":
		if len(args) != 1 {
			return errUsage
		}
		return a.write(ctx, todo.Remove(ctx, a.engine, args[0]))

	case "clear":
		n, err := todo.ClearDone(ctx, a.engine)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "removed %d\n", n)
		return a.maybeCompact(ctx)

	case "list":
		return a.list()

	case "events":
		return a.events()

	case "snapshot":
		return a.compactor.Trigger(ctx)

	case "serve":
		return a.serve(ctx)

	default:
		return errUsage
	}
}

func (a *app) write(ctx context.Context, err error) error {
	if err != nil {
		return err
	}
	return a.maybeCompact(ctx)
}

func (a *app) maybeCompact(ctx context.Context) error {
	took, err := a.compactor.MaybeCompact(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if took {
		a.log.Info("snapshot taken")
	}
	return nil
}

func (a *app) list() error {
	s, err := a.engine.State()
	if err != nil {
		return err
	}
	for _, t := range s.Todos {
		mark := " "
		if t.Done {
			mark = "x"
		}
		fmt.Fprintf(a.out, "[%s] %s %s\n", mark, t.ID, t.Title)
	}
	fmt.Fprintf(a.out, "%d pending, %d total\n", s.Pending(), len(s.Todos))
	return nil
}

func (a *app) events() error {
	events, err := a.engine.Events()
	if err != nil {
		return err
	}
	codec := a.engine.Codec()
	for _, ev := range events {
		rec, err := codec.Encode(ev)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, string(rec))
	}
	return nil
}
