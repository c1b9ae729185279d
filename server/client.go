package server

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// Client is a typed client for the debug service.
type Client struct {
	load             *connect.Client[LoadRequest, LoadResponse]
	start            *connect.Client[Empty, StartResponse]
	execute          *connect.Client[Empty, ExecuteResponse]
	vsync            *connect.Client[Empty, Empty]
	listSelect       *connect.Client[ListSelectRequest, Empty]
	halt             *connect.Client[Empty, Empty]
	setBreakpoint    *connect.Client[BreakpointRequest, BreakpointResponse]
	removeBreakpoint *connect.Client[BreakpointRequest, BreakpointResponse]
	toggleBreakpoint *connect.Client[BreakpointRequest, BreakpointResponse]
	clearBreakpoints *connect.Client[Empty, BreakpointResponse]
	resume           *connect.Client[Empty, Empty]
	stepOver         *connect.Client[Empty, Empty]
	stepIn           *connect.Client[Empty, Empty]
	stepOut          *connect.Client[Empty, Empty]
	threads          *connect.Client[Empty, ThreadsResponse]
	selectThread     *connect.Client[SelectThreadRequest, ThreadsResponse]
	registers        *connect.Client[Empty, RegistersResponse]
}

// NewClient creates a client for the debug service at baseURL
// (e.g. "http://localhost:7878").
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(newCBORCodec())}, opts...)
	return &Client{
		load:             connect.NewClient[LoadRequest, LoadResponse](httpClient, baseURL+LoadProcedure, opts...),
		start:            connect.NewClient[Empty, StartResponse](httpClient, baseURL+StartProcedure, opts...),
		execute:          connect.NewClient[Empty, ExecuteResponse](httpClient, baseURL+ExecuteProcedure, opts...),
		vsync:            connect.NewClient[Empty, Empty](httpClient, baseURL+VsyncProcedure, opts...),
		listSelect:       connect.NewClient[ListSelectRequest, Empty](httpClient, baseURL+ListSelectProcedure, opts...),
		halt:             connect.NewClient[Empty, Empty](httpClient, baseURL+HaltProcedure, opts...),
		setBreakpoint:    connect.NewClient[BreakpointRequest, BreakpointResponse](httpClient, baseURL+SetBreakpointProcedure, opts...),
		removeBreakpoint: connect.NewClient[BreakpointRequest, BreakpointResponse](httpClient, baseURL+RemoveBreakpointProcedure, opts...),
		toggleBreakpoint: connect.NewClient[BreakpointRequest, BreakpointResponse](httpClient, baseURL+ToggleBreakpointProcedure, opts...),
		clearBreakpoints: connect.NewClient[Empty, BreakpointResponse](httpClient, baseURL+ClearBreakpointsProcedure, opts...),
		resume:           connect.NewClient[Empty, Empty](httpClient, baseURL+ResumeProcedure, opts...),
		stepOver:         connect.NewClient[Empty, Empty](httpClient, baseURL+StepOverProcedure, opts...),
		stepIn:           connect.NewClient[Empty, Empty](httpClient, baseURL+StepInProcedure, opts...),
		stepOut:          connect.NewClient[Empty, Empty](httpClient, baseURL+StepOutProcedure, opts...),
		threads:          connect.NewClient[Empty, ThreadsResponse](httpClient, baseURL+ThreadsProcedure, opts...),
		selectThread:     connect.NewClient[SelectThreadRequest, ThreadsResponse](httpClient, baseURL+SelectThreadProcedure, opts...),
		registers:        connect.NewClient[Empty, RegistersResponse](httpClient, baseURL+RegistersProcedure, opts...),
	}
}

func call[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], req *Req) (*Res, error) {
	resp, err := c.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) Load(ctx context.Context, objectCode []byte) (*LoadResponse, error) {
	return call(ctx, c.load, &LoadRequest{ObjectCode: objectCode})
}

func (c *Client) Start(ctx context.Context) (*StartResponse, error) {
	return call(ctx, c.start, &Empty{})
}

func (c *Client) Execute(ctx context.Context) (*ExecuteResponse, error) {
	return call(ctx, c.execute, &Empty{})
}

func (c *Client) Vsync(ctx context.Context) error {
	_, err := call(ctx, c.vsync, &Empty{})
	return err
}

func (c *Client) ListSelect(ctx context.Context, index uint32) error {
	_, err := call(ctx, c.listSelect, &ListSelectRequest{Index: index})
	return err
}

func (c *Client) Halt(ctx context.Context) error {
	_, err := call(ctx, c.halt, &Empty{})
	return err
}

func (c *Client) SetBreakpoint(ctx context.Context, line int) (*BreakpointResponse, error) {
	return call(ctx, c.setBreakpoint, &BreakpointRequest{Line: line})
}

func (c *Client) RemoveBreakpoint(ctx context.Context, line int) (*BreakpointResponse, error) {
	return call(ctx, c.removeBreakpoint, &BreakpointRequest{Line: line})
}

func (c *Client) ToggleBreakpoint(ctx context.Context, line int) (*BreakpointResponse, error) {
	return call(ctx, c.toggleBreakpoint, &BreakpointRequest{Line: line})
}

func (c *Client) ClearBreakpoints(ctx context.Context) (*BreakpointResponse, error) {
	return call(ctx, c.clearBreakpoints, &Empty{})
}

func (c *Client) Resume(ctx context.Context) error {
	_, err := call(ctx, c.resume, &Empty{})
	return err
}

func (c *Client) StepOver(ctx context.Context) error {
	_, err := call(ctx, c.stepOver, &Empty{})
	return err
}

func (c *Client) StepIn(ctx context.Context) error {
	_, err := call(ctx, c.stepIn, &Empty{})
	return err
}

func (c *Client) StepOut(ctx context.Context) error {
	_, err := call(ctx, c.stepOut, &Empty{})
	return err
}

func (c *Client) Threads(ctx context.Context) (*ThreadsResponse, error) {
	return call(ctx, c.threads, &Empty{})
}

func (c *Client) SelectThread(ctx context.Context, id int) (*ThreadsResponse, error) {
	return call(ctx, c.selectThread, &SelectThreadRequest{ID: id})
}

func (c *Client) Registers(ctx context.Context) (*RegistersResponse, error) {
	return call(ctx, c.registers, &Empty{})
}
