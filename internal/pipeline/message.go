package pipeline

// Message is one outbound payload for a client. The concrete types pin the
// wire shape: any number of status messages, exactly one transcript, and at
// most one terminal response or error per processed frame.
type Message interface {
	isMessage()
}

// Status is a free-text progress update preceding the terminal message.
type Status struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Transcript carries the recognized text for one frame.
type Transcript struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Response is the terminal success message; Data is null when the model
// produced no usable reply.
type Response struct {
	Type string  `json:"type"`
	Data *string `json:"data"`
}

// Error is the terminal failure message for one frame.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (Status) isMessage()     {}
func (Transcript) isMessage() {}
func (Response) isMessage()   {}
func (Error) isMessage()      {}

func NewStatus(message string) Status      { return Status{Type: "status", Message: message} }
func NewTranscript(text string) Transcript { return Transcript{Type: "transcript", Text: text} }
func NewResponse(data *string) Response    { return Response{Type: "response", Data: data} }
func NewError(message string) Error        { return Error{Type: "error", Message: message} }

// Emit delivers one outbound message to the originating connection. It must
// be safe to call after the connection is gone.
type Emit func(Message)
