package publishers

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Fanout delivers each event to every publisher subscribed to its kind.
// Publishers are called concurrently; one slow or failing sink does not hold
// back the others.
type Fanout struct {
	publishers []Publisher
}

// NewFanout builds a fanout over pubs, ignoring nil entries.
func NewFanout(pubs []Publisher) *Fanout {
	cp := make([]Publisher, 0, len(pubs))
	for _, p := range pubs {
		if p != nil {
			cp = append(cp, p)
		}
	}
	return &Fanout{publishers: cp}
}

// Publish sends evt to the subscribed publishers and returns how many
// accepted it. Errors from individual sinks are joined in publisher order.
// An event no publisher subscribes to is delivered nowhere and is not an
// error.
func (f *Fanout) Publish(ctx context.Context, evt Event) (int, error) {
	if f == nil {
		return 0, nil
	}
	targets := f.subscribers(evt.Kind)
	if len(targets) == 0 {
		return 0, nil
	}

	errs := make([]error, len(targets))
	var g errgroup.Group
	for i, p := range targets {
		g.Go(func() error {
			if err := p.Publish(ctx, evt); err != nil {
				errs[i] = fmt.Errorf("%s publisher[%s]: %w", p.Type(), p.ID(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	delivered := 0
	for _, err := range errs {
		if err == nil {
			delivered++
		}
	}
	return delivered, errors.Join(errs...)
}

// Accepts reports whether any publisher subscribes to kind.
func (f *Fanout) Accepts(kind string) bool {
	return f != nil && len(f.subscribers(kind)) > 0
}

// Size returns the number of publishers.
func (f *Fanout) Size() int {
	if f == nil {
		return 0
	}
	return len(f.publishers)
}

// Close releases every publisher that holds connections.
func (f *Fanout) Close() error {
	if f == nil {
		return nil
	}
	return closeAll(f.publishers)
}

func (f *Fanout) subscribers(kind string) []Publisher {
	out := make([]Publisher, 0, len(f.publishers))
	for _, p := range f.publishers {
		if s, ok := p.(Subscriber); ok && !s.Accepts(kind) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func closeAll(pubs []Publisher) error {
	var errs []error
	for _, p := range pubs {
		if c, ok := p.(Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s publisher[%s]: %w", p.Type(), p.ID(), err))
			}
		}
	}
	return errors.Join(errs...)
}
