package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/san-kum/trinity/internal/trinity"
	"github.com/san-kum/trinity/internal/wire"
)

var ErrConnClosed = errors.New("client: websocket closed")

type wsReply struct {
	resp wire.WSResponse
	err  error
}

// WSFetcher multiplexes render requests over one websocket. Replies may
// arrive in any order and are matched to requests by id.
type WSFetcher struct {
	conn *websocket.Conn
	opts options

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan wsReply
	err     error
	done    chan struct{}
}

// WSURL maps an http(s) endpoint onto the websocket render URL.
func WSURL(endpoint string) (string, error) {
	u, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if !strings.HasSuffix(u.Path, wire.WSPath) {
		u.Path += wire.WSPath
	}
	return u.String(), nil
}

func DialWS(ctx context.Context, endpoint string, opts ...Option) (*WSFetcher, error) {
	target, err := WSURL(endpoint)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	f := &WSFetcher{
		conn:    conn,
		opts:    buildOptions(opts),
		pending: make(map[string]chan wsReply),
		done:    make(chan struct{}),
	}
	go f.readLoop()
	return f, nil
}

func (f *WSFetcher) Fetch(ctx context.Context, req trinity.Request) (*trinity.Result, error) {
	id := f.opts.newID()
	ch := make(chan wsReply, 1)

	f.mu.Lock()
	if f.err != nil {
		err := f.err
		f.mu.Unlock()
		return nil, err
	}
	f.pending[id] = ch
	f.mu.Unlock()
	defer f.forget(id)

	msg := wire.WSRequest{ID: id, Preset: req.Snapshot.Preset().String(), CustomDamp: dampingPtr(req.Snapshot)}
	f.writeMu.Lock()
	err := f.conn.WriteJSON(msg)
	f.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	f.opts.log.Debug("ws request", "seq", req.Seq, "request_id", id)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		if r.resp.Error != "" || r.resp.Payload == nil {
			return nil, &StatusError{Message: r.resp.Error}
		}
		return DecodePayload(req, r.resp.Payload, f.opts.log)
	}
}

func (f *WSFetcher) forget(id string) {
	f.mu.Lock()
	delete(f.pending, id)
	f.mu.Unlock()
}

func (f *WSFetcher) readLoop() {
	defer close(f.done)
	for {
		var resp wire.WSResponse
		if err := f.conn.ReadJSON(&resp); err != nil {
			f.fail(err)
			return
		}
		f.mu.Lock()
		ch, ok := f.pending[resp.ID]
		delete(f.pending, resp.ID)
		f.mu.Unlock()
		if !ok {
			f.opts.log.Debug("ws reply for unknown request", "request_id", resp.ID)
			continue
		}
		ch <- wsReply{resp: resp}
	}
}

func (f *WSFetcher) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = fmt.Errorf("%w: %v", ErrConnClosed, err)
	}
	for id, ch := range f.pending {
		ch <- wsReply{err: f.err}
		delete(f.pending, id)
	}
}

// Close shuts the connection and fails pending fetches.
func (f *WSFetcher) Close() error {
	f.writeMu.Lock()
	_ = f.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	f.writeMu.Unlock()
	err := f.conn.Close()
	<-f.done
	return err
}
