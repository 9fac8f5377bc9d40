package introspect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/chromedp"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/mailru/easyjson"
)

var (
	// errSkippedFrame marks a frame that was read and drained but carried no message.
	errSkippedFrame = errors.New("skipped non-text frame")
	// errUnparseableFrame marks a text frame that is not a protocol message.
	errUnparseableFrame = errors.New("unparseable frame")
	errTargetClosed     = errors.New("target closed the connection")
)

// frameConn is a chromedp.Transport over a client-side websocket. Unlike
// chromedp.Conn it drains every frame it rejects, so the stream stays in
// sync after binary or control frames.
type frameConn struct {
	conn net.Conn
	r    *wsutil.Reader

	wmu sync.Mutex
}

var _ chromedp.Transport = (*frameConn)(nil)

func dialTarget(ctx context.Context, url string) (*frameConn, error) {
	conn, br, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	src := io.Reader(conn)
	if br != nil {
		src = br
	}
	return &frameConn{
		conn: conn,
		r:    &wsutil.Reader{Source: src, State: ws.StateClientSide, CheckUTF8: true},
	}, nil
}

// Read reads the next frame into msg. Non-text frames are drained and
// reported as errSkippedFrame; text that is not a message as errUnparseableFrame.
func (c *frameConn) Read(_ context.Context, msg *cdproto.Message) error {
	hdr, err := c.r.NextFrame()
	if err != nil {
		return err
	}
	if hdr.OpCode == ws.OpClose {
		c.r.Discard()
		return errTargetClosed
	}
	if hdr.OpCode != ws.OpText {
		if err := c.r.Discard(); err != nil {
			return err
		}
		return fmt.Errorf("%w: opcode %d", errSkippedFrame, hdr.OpCode)
	}

	data, err := io.ReadAll(c.r)
	if err != nil {
		return err
	}
	if err := easyjson.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("%w: %v", errUnparseableFrame, err)
	}
	return nil
}

// Write sends msg as one text frame.
func (c *frameConn) Write(_ context.Context, msg *cdproto.Message) error {
	data, err := easyjson.Marshal(msg)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return wsutil.WriteClientText(c.conn, data)
}

func (c *frameConn) Close() error {
	return c.conn.Close()
}
