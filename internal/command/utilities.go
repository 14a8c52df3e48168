package command

import (
	"context"
	"errors"
	"log"
)

var (
	ErrArgumentRequired   = errors.New("argument required")
	ErrArgumentNotAllowed = errors.New("argument not allowed")
)

// Utilities returns the extension that loads, unloads and reloads the
// extensions of d.
func Utilities(d *Dispatcher) Extension {
	op := func(verb string, fn func(string) error) Handler {
		return func(ctx context.Context, req *Request) error {
			if req.Args == "" {
				return ErrArgumentRequired
			}
			if err := fn(req.Args); err != nil {
				return err
			}
			log.Printf("%s %s", verb, req.Args)
			req.Reply(verb + " " + req.Args)
			return nil
		}
	}

	return Extension{
		Name: "utilities",
		Commands: []Command{
			{Name: "load", Handler: op("Loaded", d.Load)},
			{Name: "unload", Handler: op("Unloaded", d.Unload)},
			{Name: "reload", Handler: op("Reloaded", d.Reload)},
		},
	}
}
