package server

// Request and response messages of the debug service.

type Empty struct{}

type LoadRequest struct {
	// ObjectCode is a CBOR object-code file as written by
	// asm.MarshalObjectCode.
	ObjectCode []byte `cbor:"object_code"`
}

type LoadResponse struct {
	Episode  string `cbor:"episode"`
	Segments int    `cbor:"segments"`
}

type StartResponse struct {
	ThreadIDs []int `cbor:"thread_ids"`
}

type ExecuteResponse struct {
	Result string `cbor:"result"`
	// Output holds the I/O callbacks made during the call, one per line.
	Output []string `cbor:"output,omitempty"`
	// Location is set when the VM paused.
	Location *Location `cbor:"location,omitempty"`
}

type Location struct {
	Line int `cbor:"line"`
	Col  int `cbor:"col"`
}

type ListSelectRequest struct {
	Index uint32 `cbor:"index"`
}

type BreakpointRequest struct {
	Line int `cbor:"line"`
}

type BreakpointInfo struct {
	Line   int  `cbor:"line"`
	Active bool `cbor:"active"`
}

type BreakpointResponse struct {
	// Changed reports whether the request added or removed a breakpoint.
	Changed     bool             `cbor:"changed"`
	Breakpoints []BreakpointInfo `cbor:"breakpoints"`
}

type ThreadInfo struct {
	ID       int       `cbor:"id"`
	AreaID   int       `cbor:"area_id"`
	Global   bool      `cbor:"global"`
	Frames   int       `cbor:"frames"`
	Location *Location `cbor:"location,omitempty"`
}

type ThreadsResponse struct {
	Threads   []ThreadInfo `cbor:"threads"`
	Current   int          `cbor:"current"`
	Debugging int          `cbor:"debugging"`
}

type SelectThreadRequest struct {
	ID int `cbor:"id"`
}

type RegistersResponse struct {
	// Values holds the 256 registers as unsigned integers.
	Values []uint32 `cbor:"values"`
}
