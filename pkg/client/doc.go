// Package client is the guestchain Go SDK.
//
// It talks to a guestchain node's HTTP API: submitting entries, reading
// the reconciled view, tracking submissions, inspecting the ledger chain,
// and streaming coordinator events over a websocket.
//
// # Posting an entry
//
// Post dispatches the write and returns immediately with a correlation
// handle; settlement happens asynchronously:
//
//	c, err := client.New("http://localhost:8080")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := c.Post(ctx, "alice", "hello from the SDK")
//	fmt.Println(res.Handle) // track it with c.Submission(ctx, res.Handle)
//
// # Reading the guestbook
//
// View returns the node's current local view without forcing a ledger
// read; Refresh forces one first:
//
//	entries, _ := c.View(ctx)
//	entries, _ = c.Refresh(ctx) // picks up other clients' entries
//
// # Watching events
//
// Watch streams status and view changes until ctx is cancelled:
//
//	err = c.Watch(ctx, func(e client.Event) {
//	    fmt.Printf("%s %s\n", e.Kind, e.Handle)
//	})
package client
