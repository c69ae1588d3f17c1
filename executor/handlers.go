package executor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/mailru/easyjson"
)

// dispatch routes an action to its handler. The kind set is closed;
// anything else is unsupported.
func (e *Executor) dispatch(ctx context.Context, session Session, action Action) (easyjson.RawMessage, error) {
	switch action.Kind {
	case KindNavigate:
		return e.navigate(ctx, session, action)
	case KindClick:
		return e.click(ctx, session, action)
	case KindTypeText:
		return e.typeText(ctx, session, action)
	case KindWaitForCondition:
		return e.waitForCondition(ctx, session, action)
	case KindEvaluateScript:
		return e.evaluateScript(ctx, session, action)
	case KindScreenshot:
		return e.screenshot(ctx, session, action)
	case KindRunNative:
		return e.runNative(ctx, action)
	default:
		return nil, &UnsupportedActionError{Kind: action.Kind}
	}
}

func marshalParams(v interface{}) (easyjson.RawMessage, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling params: %w", err)
	}
	return buf, nil
}

func (e *Executor) navigate(ctx context.Context, session Session, action Action) (easyjson.RawMessage, error) {
	url, ok := action.StringParam("url")
	if !ok {
		return nil, &ActionError{Kind: action.Kind, Msg: "missing url parameter"}
	}

	params, err := marshalParams(map[string]string{"url": url})
	if err != nil {
		return nil, err
	}
	raw, err := session.Send(ctx, string(cdproto.CommandPageNavigate), params)
	if err != nil {
		return nil, err
	}

	var reply struct {
		FrameID   string `json:"frameId"`
		ErrorText string `json:"errorText"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, &ActionError{Kind: action.Kind, Msg: "decoding navigate reply", Err: err}
	}
	// A resolved command with errorText set means the navigation itself
	// failed, e.g. net::ERR_NAME_NOT_RESOLVED.
	if reply.ErrorText != "" {
		return nil, &ActionError{Kind: action.Kind, Msg: fmt.Sprintf("navigation to %q failed: %s", url, reply.ErrorText)}
	}
	return raw, nil
}

func (e *Executor) click(ctx context.Context, session Session, action Action) (easyjson.RawMessage, error) {
	sel, ok := action.StringParam("selector")
	if !ok {
		return nil, &ActionError{Kind: action.Kind, Msg: "missing selector parameter"}
	}

	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		el.click();
		return true;
	})()`, sel)
	value, err := e.evaluate(ctx, session, expr)
	if err != nil {
		return nil, &ActionError{Kind: action.Kind, Msg: "click script failed", Err: err}
	}
	if !bytes.Equal(value, []byte("true")) {
		return nil, &ActionError{Kind: action.Kind, Msg: fmt.Sprintf("no element matches selector %q", sel)}
	}
	return value, nil
}

func (e *Executor) typeText(ctx context.Context, session Session, action Action) (easyjson.RawMessage, error) {
	sel, ok := action.StringParam("selector")
	if !ok {
		return nil, &ActionError{Kind: action.Kind, Msg: "missing selector parameter"}
	}
	text, ok := action.StringParam("text")
	if !ok {
		return nil, &ActionError{Kind: action.Kind, Msg: "missing text parameter"}
	}

	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		el.focus();
		return true;
	})()`, sel)
	value, err := e.evaluate(ctx, session, expr)
	if err != nil {
		return nil, &ActionError{Kind: action.Kind, Msg: "focus script failed", Err: err}
	}
	if !bytes.Equal(value, []byte("true")) {
		return nil, &ActionError{Kind: action.Kind, Msg: fmt.Sprintf("no element matches selector %q", sel)}
	}

	params, err := marshalParams(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}
	return session.Send(ctx, string(cdproto.CommandInputInsertText), params)
}

// waitForCondition polls the condition at Policy.PollInterval until it
// holds or ctx (carrying the kind timeout) expires. The condition is
// either a selector existence check or an arbitrary expression.
func (e *Executor) waitForCondition(ctx context.Context, session Session, action Action) (easyjson.RawMessage, error) {
	var expr string
	if sel, ok := action.StringParam("selector"); ok {
		expr = fmt.Sprintf("!!document.querySelector(%q)", sel)
	} else if raw, ok := action.StringParam("expression"); ok {
		expr = fmt.Sprintf("!!(%s)", raw)
	} else {
		return nil, &ActionError{Kind: action.Kind, Msg: "missing selector or expression parameter"}
	}

	interval := e.policy.PollInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	for {
		value, err := e.evaluate(ctx, session, expr)
		if err != nil && !retryable(err) {
			return nil, err
		}
		if err == nil && bytes.Equal(value, []byte("true")) {
			return value, nil
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (e *Executor) evaluateScript(ctx context.Context, session Session, action Action) (easyjson.RawMessage, error) {
	expr, ok := action.StringParam("expression")
	if !ok {
		return nil, &ActionError{Kind: action.Kind, Msg: "missing expression parameter"}
	}
	value, err := e.evaluate(ctx, session, expr)
	if err != nil {
		return nil, &ActionError{Kind: action.Kind, Msg: "script failed", Err: err}
	}
	return value, nil
}

func (e *Executor) screenshot(ctx context.Context, session Session, action Action) (easyjson.RawMessage, error) {
	params, err := marshalParams(map[string]string{"format": "png"})
	if err != nil {
		return nil, err
	}
	raw, err := session.Send(ctx, string(cdproto.CommandPageCaptureScreenshot), params)
	if err != nil {
		return nil, err
	}

	var reply struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, &ActionError{Kind: action.Kind, Msg: "decoding screenshot reply", Err: err}
	}
	data, err := base64.StdEncoding.DecodeString(reply.Data)
	if err != nil {
		return nil, &ActionError{Kind: action.Kind, Msg: "decoding screenshot data", Err: err}
	}

	path, ok := action.StringParam("path")
	if !ok {
		path = filepath.Join(e.screenshotDir, fmt.Sprintf("screenshot-%d.png", action.ID))
	}
	if err := e.persister.Persist(ctx, path, bytes.NewReader(data)); err != nil {
		return nil, &ActionError{Kind: action.Kind, Msg: fmt.Sprintf("persisting to %q", path), Err: err}
	}
	e.logger.Debugf("Executor:screenshot", "wrote %d bytes to %s", len(data), path)

	return marshalParams(map[string]interface{}{"path": path, "bytes": len(data)})
}

func (e *Executor) runNative(ctx context.Context, action Action) (easyjson.RawMessage, error) {
	name, ok := action.StringParam("name")
	if !ok {
		return nil, &ActionError{Kind: action.Kind, Msg: "missing name parameter"}
	}
	args, _ := action.StringsParam("args")

	if e.native == nil {
		return nil, &ActionError{Kind: action.Kind, Msg: "no native bridge configured"}
	}
	res, err := e.native.Run(ctx, name, args)
	if err != nil {
		return nil, &ActionError{Kind: action.Kind, Msg: fmt.Sprintf("running %q", name), Err: err}
	}
	return marshalParams(map[string]interface{}{"exitStatus": res.ExitStatus, "output": res.Output})
}

// evalReply is the subset of Runtime.evaluate's reply we consume.
type evalReply struct {
	Result struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	} `json:"result"`
	ExceptionDetails *struct {
		Text      string `json:"text"`
		Exception *struct {
			Description string `json:"description"`
		} `json:"exception"`
	} `json:"exceptionDetails"`
}

// evaluate runs an expression in the page and returns its JSON value.
// Script exceptions come back as errors with the page-side description.
func (e *Executor) evaluate(ctx context.Context, session Session, expression string) (easyjson.RawMessage, error) {
	params, err := marshalParams(map[string]interface{}{
		"expression":    expression,
		"returnByValue": true,
		"awaitPromise":  true,
	})
	if err != nil {
		return nil, err
	}
	raw, err := session.Send(ctx, string(cdproto.CommandRuntimeEvaluate), params)
	if err != nil {
		return nil, err
	}

	var reply evalReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("decoding evaluate reply: %w", err)
	}
	if reply.ExceptionDetails != nil {
		desc := reply.ExceptionDetails.Text
		if reply.ExceptionDetails.Exception != nil && reply.ExceptionDetails.Exception.Description != "" {
			desc = reply.ExceptionDetails.Exception.Description
		}
		return nil, fmt.Errorf("exception in page: %s", desc)
	}
	return easyjson.RawMessage(reply.Result.Value), nil
}
