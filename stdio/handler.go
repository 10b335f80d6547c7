package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ggoodman/candid-explorer-go/internal/jsonrpc"
	"github.com/ggoodman/candid-explorer-go/internal/logctx"
	"github.com/ggoodman/candid-explorer-go/mcp"
	"github.com/ggoodman/candid-explorer-go/mcpservice"
)

const defaultMaxLine = 4 << 20

var errCancelled = errors.New("stdio: request cancelled by client")

// Handler is a single-connection stdio transport. It owns framing and the
// initialize lifecycle; everything else is delegated to the server
// capabilities.
type Handler struct {
	srv     mcpservice.ServerCapabilities
	r       io.Reader
	w       io.Writer
	log     *slog.Logger
	maxLine int

	writeMu sync.Mutex

	mu          sync.Mutex
	initialized bool
	listening   bool
	inflight    map[string]context.CancelCauseFunc
	wg          sync.WaitGroup
}

// NewHandler builds a Handler reading os.Stdin and writing os.Stdout.
func NewHandler(srv mcpservice.ServerCapabilities, opts ...Option) *Handler {
	h := &Handler{
		srv:      srv,
		r:        os.Stdin,
		w:        os.Stdout,
		log:      slog.Default(),
		maxLine:  defaultMaxLine,
		inflight: make(map[string]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = logctx.Wrap(h.log)
	return h
}

// Serve runs until the input reaches EOF or ctx is cancelled. EOF is a clean
// shutdown and returns nil once in-flight requests have answered. Serve may
// be called once per Handler.
func (h *Handler) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(h.r)
		sc.Buffer(make([]byte, 0, 64<<10), h.maxLine)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	h.log.InfoContext(ctx, "stdio.serve.start")
	for {
		select {
		case <-ctx.Done():
			h.wg.Wait()
			return ctx.Err()
		case err := <-readErr:
			h.wg.Wait()
			if err != nil {
				return fmt.Errorf("stdio: read: %w", err)
			}
			h.log.InfoContext(ctx, "stdio.serve.eof")
			return nil
		case line := <-lines:
			h.handleLine(ctx, line)
		}
	}
}

func (h *Handler) handleLine(ctx context.Context, line []byte) {
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}
	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		var syn *json.SyntaxError
		code := jsonrpc.ErrorCodeInvalidRequest
		if errors.As(err, &syn) {
			code = jsonrpc.ErrorCodeParseError
		}
		h.log.InfoContext(ctx, "stdio.message.invalid", slog.String("err", err.Error()))
		h.write(ctx, jsonrpc.NewErrorResponse(nil, code, "invalid message", nil))
		return
	}

	switch msg.Type() {
	case "response":
		// The server never sends requests, so responses have no waiter.
		h.log.DebugContext(ctx, "stdio.response.ignored", slog.String("id", msg.ID.String()))
	case "notification":
		h.handleNotification(ctx, msg.AsRequest())
	case "request":
		h.handleRequest(ctx, msg.AsRequest())
	}
}

func (h *Handler) handleRequest(ctx context.Context, req *jsonrpc.Request) {
	ctx = logctx.WithRequestData(ctx, &logctx.RequestData{RequestID: req.ID.String(), Codec: "stdio"})

	switch mcp.Method(req.Method) {
	case mcp.InitializeMethod:
		h.write(ctx, h.handleInitialize(ctx, req))
		return
	case mcp.PingMethod:
		res, _ := jsonrpc.NewResultResponse(req.ID, &mcp.EmptyResult{})
		h.write(ctx, res)
		return
	}

	h.mu.Lock()
	ready := h.initialized
	key := req.ID.String()
	_, dup := h.inflight[key]
	var reqCtx context.Context
	if ready && !dup {
		var cancel context.CancelCauseFunc
		reqCtx, cancel = context.WithCancelCause(ctx)
		h.inflight[key] = cancel
		h.wg.Add(1)
	}
	h.mu.Unlock()

	switch {
	case !ready:
		h.write(ctx, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "server not initialized", nil))
		return
	case dup:
		h.write(ctx, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "duplicate request id", nil))
		return
	}

	go func() {
		defer h.wg.Done()
		res := h.dispatch(reqCtx, req)

		h.mu.Lock()
		cancel := h.inflight[key]
		delete(h.inflight, key)
		h.mu.Unlock()
		if cancel != nil {
			cancel(context.Canceled)
		}

		// A cancelled request gets no response.
		if errors.Is(context.Cause(reqCtx), errCancelled) {
			return
		}
		h.write(ctx, res)
	}()
}

func (h *Handler) handleNotification(ctx context.Context, note *jsonrpc.Request) {
	switch mcp.Method(note.Method) {
	case mcp.InitializedNotificationMethod:
		h.mu.Lock()
		start := h.initialized && !h.listening
		h.listening = true
		h.mu.Unlock()
		if start {
			h.forwardListChanged(ctx)
		}
	case mcp.CancelledNotificationMethod:
		var params mcp.CancelledNotification
		if err := json.Unmarshal(note.Params, &params); err != nil {
			h.log.InfoContext(ctx, "stdio.cancel.invalid", slog.String("err", err.Error()))
			return
		}
		var id jsonrpc.RequestID
		if err := json.Unmarshal(params.RequestID, &id); err != nil {
			return
		}
		h.mu.Lock()
		cancel := h.inflight[id.String()]
		h.mu.Unlock()
		if cancel != nil {
			h.log.InfoContext(ctx, "stdio.cancel", slog.String("id", id.String()), slog.String("reason", params.Reason))
			cancel(errCancelled)
		}
	default:
		h.log.DebugContext(ctx, "stdio.notification.ignored", slog.String("method", note.Method))
	}
}

// forwardListChanged relays tool set changes to the client for as long as
// the connection lives.
func (h *Handler) forwardListChanged(ctx context.Context) {
	tools, ok, err := h.srv.GetToolsCapability(ctx)
	if err != nil || !ok {
		return
	}
	sub, ok := tools.(mcpservice.ChangeSubscriber)
	if !ok {
		return
	}
	ch := sub.Subscriber()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, open := <-ch:
				if !open {
					return
				}
				h.write(ctx, &jsonrpc.Request{JSONRPCVersion: jsonrpc.ProtocolVersion, Method: string(mcp.ToolsListChangedNotificationMethod)})
			}
		}
	}()
}

func (h *Handler) handleInitialize(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	log := h.log.With(slog.String("method", req.Method))
	var params mcp.InitializeRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		log.InfoContext(ctx, "stdio.handle_request.invalid", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
	}

	version := params.ProtocolVersion
	if !mcp.IsSupportedProtocolVersion(version) {
		version = mcp.LatestProtocolVersion
		if pref, ok, err := h.srv.GetPreferredProtocolVersion(ctx); err == nil && ok {
			version = pref
		}
	}

	info, err := h.srv.GetServerInfo(ctx)
	if err != nil {
		log.ErrorContext(ctx, "stdio.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	res := &mcp.InitializeResult{ProtocolVersion: version, ServerInfo: info}
	if instr, ok, err := h.srv.GetInstructions(ctx); err == nil && ok {
		res.Instructions = instr
	}
	if tools, ok, err := h.srv.GetToolsCapability(ctx); err != nil {
		log.ErrorContext(ctx, "stdio.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	} else if ok {
		_, changes := tools.(mcpservice.ChangeSubscriber)
		res.Capabilities.Tools = &struct {
			ListChanged bool `json:"listChanged"`
		}{ListChanged: changes}
	}
	if _, ok, err := h.srv.GetResourcesCapability(ctx); err != nil {
		log.ErrorContext(ctx, "stdio.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	} else if ok {
		res.Capabilities.Resources = &struct {
			ListChanged bool `json:"listChanged"`
			Subscribe   bool `json:"subscribe"`
		}{}
	}

	resp, err := jsonrpc.NewResultResponse(req.ID, res)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	h.mu.Lock()
	h.initialized = true
	h.mu.Unlock()
	log.InfoContext(ctx, "stdio.initialize.ok",
		slog.String("protocol_version", version),
		slog.String("client", params.ClientInfo.Name),
		slog.String("client_version", params.ClientInfo.Version))
	return resp
}

func (h *Handler) dispatch(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()
	log := h.log.With(slog.String("method", req.Method))

	var (
		result any
		code   jsonrpc.ErrorCode
		msg    string
	)
	switch mcp.Method(req.Method) {
	case mcp.ToolsListMethod:
		result, code, msg = h.listTools(ctx, req)
	case mcp.ToolsCallMethod:
		result, code, msg = h.callTool(ctx, req)
	case mcp.ResourcesListMethod:
		result, code, msg = h.listResources(ctx, req)
	case mcp.ResourcesReadMethod:
		result, code, msg = h.readResource(ctx, req)
	default:
		code, msg = jsonrpc.ErrorCodeMethodNotFound, "method not found"
	}

	if msg != "" {
		log.InfoContext(ctx, "stdio.handle_request.error", slog.Int("code", int(code)), slog.String("err", msg), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, code, msg, nil)
	}
	res, err := jsonrpc.NewResultResponse(req.ID, result)
	if err != nil {
		log.ErrorContext(ctx, "stdio.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	log.InfoContext(ctx, "stdio.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	return res
}

func cursorOf(p mcp.PaginatedRequest) *string {
	if p.Cursor == "" {
		return nil
	}
	return &p.Cursor
}

func (h *Handler) listTools(ctx context.Context, req *jsonrpc.Request) (any, jsonrpc.ErrorCode, string) {
	var params mcp.ListToolsRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, jsonrpc.ErrorCodeInvalidParams, "invalid params"
		}
	}
	tools, ok, err := h.srv.GetToolsCapability(ctx)
	if err != nil {
		return nil, jsonrpc.ErrorCodeInternalError, "internal error"
	}
	if !ok {
		return nil, jsonrpc.ErrorCodeMethodNotFound, "tools capability not supported"
	}
	page, err := tools.ListTools(ctx, cursorOf(params.PaginatedRequest))
	if err != nil {
		return nil, jsonrpc.ErrorCodeInternalError, "internal error"
	}
	res := &mcp.ListToolsResult{Tools: page.Items}
	if page.NextCursor != nil {
		res.NextCursor = *page.NextCursor
	}
	return res, 0, ""
}

func (h *Handler) callTool(ctx context.Context, req *jsonrpc.Request) (any, jsonrpc.ErrorCode, string) {
	var params mcp.CallToolRequestReceived
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return nil, jsonrpc.ErrorCodeInvalidParams, "invalid params"
	}
	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: params.Name})
	tools, ok, err := h.srv.GetToolsCapability(ctx)
	if err != nil {
		return nil, jsonrpc.ErrorCodeInternalError, "internal error"
	}
	if !ok {
		return nil, jsonrpc.ErrorCodeMethodNotFound, "tools capability not supported"
	}
	res, err := tools.CallTool(ctx, &params)
	switch {
	case errors.Is(err, mcpservice.ErrToolNotFound):
		return nil, jsonrpc.ErrorCodeInvalidParams, "unknown tool: " + params.Name
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, jsonrpc.ErrorCodeInternalError, "cancelled"
	case err != nil:
		h.log.ErrorContext(ctx, "stdio.tool.fail", slog.String("err", err.Error()))
		return nil, jsonrpc.ErrorCodeInternalError, "internal error"
	}
	return res, 0, ""
}

func (h *Handler) listResources(ctx context.Context, req *jsonrpc.Request) (any, jsonrpc.ErrorCode, string) {
	var params mcp.ListResourcesRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, jsonrpc.ErrorCodeInvalidParams, "invalid params"
		}
	}
	resources, ok, err := h.srv.GetResourcesCapability(ctx)
	if err != nil {
		return nil, jsonrpc.ErrorCodeInternalError, "internal error"
	}
	if !ok {
		return nil, jsonrpc.ErrorCodeMethodNotFound, "resources capability not supported"
	}
	page, err := resources.ListResources(ctx, cursorOf(params.PaginatedRequest))
	if err != nil {
		return nil, jsonrpc.ErrorCodeInternalError, "internal error"
	}
	res := &mcp.ListResourcesResult{Resources: page.Items}
	if page.NextCursor != nil {
		res.NextCursor = *page.NextCursor
	}
	return res, 0, ""
}

func (h *Handler) readResource(ctx context.Context, req *jsonrpc.Request) (any, jsonrpc.ErrorCode, string) {
	var params mcp.ReadResourceRequest
	if err := json.Unmarshal(req.Params, &params); err != nil || params.URI == "" {
		return nil, jsonrpc.ErrorCodeInvalidParams, "invalid params"
	}
	resources, ok, err := h.srv.GetResourcesCapability(ctx)
	if err != nil {
		return nil, jsonrpc.ErrorCodeInternalError, "internal error"
	}
	if !ok {
		return nil, jsonrpc.ErrorCodeMethodNotFound, "resources capability not supported"
	}
	contents, err := resources.ReadResource(ctx, params.URI)
	switch {
	case errors.Is(err, mcpservice.ErrResourceNotFound):
		return nil, jsonrpc.ErrorCodeResourceNotFound, "resource not found: " + params.URI
	case err != nil:
		h.log.ErrorContext(ctx, "stdio.resource.fail", slog.String("uri", params.URI), slog.String("err", err.Error()))
		return nil, jsonrpc.ErrorCodeInternalError, "internal error"
	}
	return &mcp.ReadResourceResult{Contents: contents}, 0, ""
}

// write serializes one message per line. Write failures are logged; the
// read loop notices a closed peer through EOF.
func (h *Handler) write(ctx context.Context, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.ErrorContext(ctx, "stdio.write.encode", slog.String("err", err.Error()))
		return
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if _, err := h.w.Write(append(b, '\n')); err != nil {
		h.log.WarnContext(ctx, "stdio.write.fail", slog.String("err", err.Error()))
	}
}
