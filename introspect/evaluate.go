package introspect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/mailru/easyjson"
	"github.com/tidwall/gjson"
)

type readResult struct {
	msg *cdproto.Message
	err error
}

// FetchFingerprint evaluates the header script in the client's main window
// on port and returns the captured header.
func (c *Client) FetchFingerprint(ctx context.Context, port int) (Fingerprint, error) {
	c.Logger.Info().Int("port", port).Msg("Fetching fingerprint over DevTools")

	targets, err := c.ListTargets(ctx, port)
	if err != nil {
		return Fingerprint{}, err
	}
	target, ok := SelectTarget(targets)
	if !ok {
		return Fingerprint{}, ErrNoTargetFound
	}
	if target.WebSocketDebuggerURL == "" {
		return Fingerprint{}, fmt.Errorf("%w: target %q has no control endpoint", ErrConnectFailed, target.Title)
	}

	conn, err := dialTarget(ctx, target.WebSocketDebuggerURL)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	defer conn.Close()
	c.Logger.Debug().Str("target", target.Title).Msg("Connected to debug target")

	result, err := c.evaluate(ctx, conn)
	if err != nil {
		return Fingerprint{}, err
	}
	fp, err := parsePayload(result)
	if err != nil {
		return Fingerprint{}, err
	}
	c.Logger.Info().Uint64("build_number", gjson.GetBytes(fp.Decoded, "client_build_number").Uint()).Msg("Fingerprint captured")
	return fp, nil
}

// evaluate sends one Runtime.evaluate request and returns the evaluation's
// returned value, waiting at most EvaluateTimeout for the matching response.
func (c *Client) evaluate(ctx context.Context, conn chromedp.Transport) (easyjson.RawMessage, error) {
	params, err := easyjson.Marshal(runtime.Evaluate(c.Script).
		WithReturnByValue(true).
		WithAwaitPromise(false))
	if err != nil {
		return nil, fmt.Errorf("failed to encode evaluate params: %w", err)
	}

	id := c.nextID.Add(1)
	req := &cdproto.Message{
		ID:     id,
		Method: runtime.CommandEvaluate,
		Params: params,
	}
	if err := conn.Write(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	results := make(chan readResult, 1)
	go c.awaitResponse(ctx, conn, id, results)

	timer := time.NewTimer(c.EvaluateTimeout)
	defer timer.Stop()

	var msg *cdproto.Message
	select {
	case r := <-results:
		if r.err != nil {
			return nil, fmt.Errorf("%w: connection lost: %v", ErrMalformedResponse, r.err)
		}
		msg = r.msg
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}

	if msg.Error != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, msg.Error)
	}
	var ret runtime.EvaluateReturns
	if err := easyjson.Unmarshal(msg.Result, &ret); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if ret.ExceptionDetails != nil {
		return nil, &ScriptError{Message: ret.ExceptionDetails.Error()}
	}
	if ret.Result == nil {
		return nil, fmt.Errorf("%w: no evaluation result", ErrMalformedResponse)
	}
	return ret.Result.Value, nil
}

// awaitResponse reads until the response for id arrives or the connection
// fails. Non-text and unparseable frames are skipped.
func (c *Client) awaitResponse(ctx context.Context, conn chromedp.Transport, id int64, results chan<- readResult) {
	for {
		msg := new(cdproto.Message)
		err := conn.Read(ctx, msg)
		if err != nil {
			if errors.Is(err, errSkippedFrame) || errors.Is(err, errUnparseableFrame) {
				c.Logger.Debug().Err(err).Msg("Skipping frame")
				continue
			}
			results <- readResult{err: err}
			return
		}
		if msg.ID != id {
			continue
		}
		results <- readResult{msg: msg}
		return
	}
}

// parsePayload decodes the script's stringified JSON result.
func parsePayload(value easyjson.RawMessage) (Fingerprint, error) {
	outer := gjson.ParseBytes(value)
	if outer.Type != gjson.String {
		return Fingerprint{}, fmt.Errorf("%w: evaluation result is not a string", ErrMalformedResponse)
	}
	payload := outer.String()
	if !gjson.Valid(payload) {
		return Fingerprint{}, fmt.Errorf("%w: script returned invalid JSON", ErrMalformedResponse)
	}

	if msg := gjson.Get(payload, "error"); msg.Exists() {
		return Fingerprint{}, &ScriptError{Message: msg.String()}
	}

	encoded := gjson.Get(payload, "base64")
	decoded := gjson.Get(payload, "decoded")
	if encoded.Type != gjson.String || encoded.String() == "" || !decoded.IsObject() {
		return Fingerprint{}, fmt.Errorf("%w: payload lacks base64 and decoded fields", ErrMalformedResponse)
	}
	return Fingerprint{
		Encoded: encoded.String(),
		Decoded: []byte(decoded.Raw),
	}, nil
}
