package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/arismoko/strudelprobe/chrome"
	"github.com/arismoko/strudelprobe/probe"
)

// newClient builds the devtools client for the configured endpoint.
func newClient(gs *globalState) (*chrome.Client, error) {
	endpoint, err := chrome.NewEndpoint(gs.flags.host, gs.flags.port)
	if err != nil {
		return nil, err
	}
	return chrome.NewClient(endpoint, gs.logger), nil
}

// withProbeSession connects to the endpoint, selects the target tab and runs
// fn inside a scoped evaluation session. The session is released and the
// connection closed on every exit path.
func withProbeSession(gs *globalState, fn func(ctx context.Context, s *probe.Session) error) error {
	ctx := gs.ctx

	client, err := newClient(gs)
	if err != nil {
		return err
	}
	defer client.Close()

	pages, err := client.ListPages(ctx)
	if err != nil {
		return err
	}
	page, err := probe.Select(pages, gs.flags.tab)
	if err != nil {
		return err
	}
	gs.logger.Debugf("cmd", "using page %s (%s)", page.ID, page.URL)

	sess, err := client.Attach(ctx, page)
	if err != nil {
		return probe.NewAttachError(page.ID, err)
	}

	return probe.WithSession(ctx, sess, gs.logger, func(s *probe.Session) error {
		return fn(ctx, s)
	})
}

func jsonPrint(w io.Writer, v interface{}) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(buf))
	return err
}
