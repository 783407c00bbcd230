package process

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/usibridge/internal/engine"
	"github.com/zjrosen/usibridge/internal/log"
	"github.com/zjrosen/usibridge/internal/usi"
)

// Config describes one engine launch.
type Config struct {
	// Path is the engine executable.
	Path string
	// Options are sent with setoption after the handshake. Buttons and
	// options without a resolvable value are skipped.
	Options engine.Options
	// Timeout bounds the handshake. Zero waits until ctx is done.
	Timeout     time.Duration
	QuitGrace   time.Duration
	EventBuffer int
	// WorkDir defaults to the directory of Path.
	WorkDir string
	// Env holds "KEY=VALUE" pairs added to the inherited environment.
	Env            []string
	StderrLines    int
	Name           string
	CommandFactory CommandFactoryFunc
}

// Handshake is what the engine announced between "usi" and "usiok".
type Handshake struct {
	Name    string
	Author  string
	Options engine.Options
}

// Descriptor builds an engine descriptor for path from the announcement.
func (h *Handshake) Descriptor(path string) *engine.Descriptor {
	d := engine.NewDescriptor()
	d.Name = h.Name
	d.DefaultName = h.Name
	d.Author = h.Author
	d.Path = path
	d.Options = h.Options.Clone()
	return d
}

// Launch starts the engine and runs the handshake: "usi", collect identity
// and option declarations until "usiok", then send the configured options.
// On failure the process is killed and a *LaunchError is returned.
//
// The process outlives ctx; only the handshake is bound to it.
func Launch(ctx context.Context, cfg Config) (*Channel, *Handshake, error) {
	ch, err := NewSpawnBuilder(context.WithoutCancel(ctx)).
		WithExecutable(cfg.Path, nil).
		WithWorkDir(cfg.WorkDir).
		WithEnv(cfg.Env).
		WithStderrLines(cfg.StderrLines).
		WithName(cfg.Name).
		WithQuitGrace(cfg.QuitGrace).
		WithEventBuffer(cfg.EventBuffer).
		WithCommandFactory(cfg.CommandFactory).
		Build()
	if err != nil {
		return nil, nil, &LaunchError{Path: cfg.Path, Err: err}
	}

	hsCtx, cancel := ctx, context.CancelFunc(func() {})
	if cfg.Timeout > 0 {
		hsCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
	}
	defer cancel()

	hs, err := handshake(hsCtx, ch)
	if err == nil {
		err = applyOptions(ch, cfg.Options)
	}
	if err != nil {
		ch.Kill()
		log.Warn(log.CatProc, "Engine launch failed", "path", cfg.Path, "error", err)
		return nil, nil, &LaunchError{Path: cfg.Path, Stderr: ch.StderrLines(), Err: err}
	}

	log.Info(log.CatProc, "Engine ready",
		"name", hs.Name,
		"author", hs.Author,
		"options", len(hs.Options),
		"pid", ch.PID())
	return ch, hs, nil
}

func handshake(ctx context.Context, ch *Channel) (*Handshake, error) {
	if err := ch.Send(usi.Handshake()); err != nil {
		return nil, err
	}
	hs := &Handshake{Options: engine.Options{}}
	order := 0
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrHandshakeTimeout
			}
			return nil, ctx.Err()
		case ev, ok := <-ch.Events():
			if !ok {
				select {
				case <-ch.Exited():
				case <-ctx.Done():
				}
				if err := ch.Err(); err != nil {
					return nil, err
				}
				return nil, ErrChannelClosed
			}
			switch e := ev.(type) {
			case usi.IDName:
				hs.Name = e.Name
			case usi.IDAuthor:
				hs.Author = e.Author
			case usi.OptionDecl:
				order++
				opt := withOrder(e.Option, order)
				hs.Options[opt.Declared().Name] = opt
			case usi.USIOK:
				return hs, nil
			default:
				log.Debug(log.CatProc, "ignoring line during handshake", "event", fmt.Sprintf("%T", ev))
			}
		}
	}
}

func withOrder(option engine.Option, order int) engine.Option {
	switch o := option.(type) {
	case *engine.CheckOption:
		o.Order = order
	case *engine.SpinOption:
		o.Order = order
	case *engine.ComboOption:
		o.Order = order
	case *engine.ButtonOption:
		o.Order = order
	case *engine.StringOption:
		o.Order = order
	}
	return option
}

func applyOptions(ch *Channel, options engine.Options) error {
	for _, opt := range options.Sorted() {
		value, ok := engine.CurrentValue(opt)
		if !ok {
			continue
		}
		if err := ch.Send(usi.SetOption(opt.Declared().Name, value)); err != nil {
			return err
		}
	}
	return nil
}
