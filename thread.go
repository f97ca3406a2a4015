package reagent

// Thread is the ordered conversation history of a run. Entries are only ever
// appended; nothing is edited, reordered, or removed. A Thread is owned
// exclusively by the State that holds it and is never accessed concurrently.
type Thread struct {
	Entries []ChatMessage `json:"entries"`
}

// NewThread creates a Thread, seeded with the system prompt as entry 0 when
// one is given.
func NewThread(systemPrompt string) Thread {
	var t Thread
	if systemPrompt != "" {
		t.AppendSystem(systemPrompt)
	}
	return t
}

func (t *Thread) AppendSystem(text string) {
	t.Entries = append(t.Entries, SystemMessage(text))
}

func (t *Thread) AppendUser(text string) {
	t.Entries = append(t.Entries, UserMessage(text))
}

// AppendAssistant records a model turn. toolCalls carries the requested tool
// calls when the turn demands a tool round; thinking is the captured
// reasoning content (empty unless enabled).
func (t *Thread) AppendAssistant(text string, toolCalls []ToolCall, thinking string) {
	t.Entries = append(t.Entries, ChatMessage{
		Role:      "assistant",
		Content:   text,
		Thinking:  thinking,
		ToolCalls: toolCalls,
	})
}

// AppendToolResult records the outcome of one tool call. callID must
// reference a requested call in a preceding assistant entry.
func (t *Thread) AppendToolResult(callID, name, content string) {
	t.Entries = append(t.Entries, ToolResultMessage(callID, name, content))
}

// LastEntry returns the most recent entry, or false when the thread is empty.
func (t *Thread) LastEntry() (ChatMessage, bool) {
	if len(t.Entries) == 0 {
		return ChatMessage{}, false
	}
	return t.Entries[len(t.Entries)-1], true
}

// Messages projects the thread into the flat list the provider accepts,
// re-inserting systemPrompt as the first message when the thread does not
// already start with a system entry. The returned slice is a copy; mutating
// it does not affect the thread.
func (t *Thread) Messages(systemPrompt string) []ChatMessage {
	needSystem := systemPrompt != "" && (len(t.Entries) == 0 || t.Entries[0].Role != "system")
	out := make([]ChatMessage, 0, len(t.Entries)+1)
	if needSystem {
		out = append(out, SystemMessage(systemPrompt))
	}
	return append(out, t.Entries...)
}

// clone deep-copies the thread so a checkpoint snapshot cannot share mutable
// state with the live run.
func (t *Thread) clone() Thread {
	cp := Thread{Entries: make([]ChatMessage, len(t.Entries))}
	for i, m := range t.Entries {
		cp.Entries[i] = m
		cp.Entries[i].ToolCalls = cloneToolCalls(m.ToolCalls)
		if len(m.Metadata) > 0 {
			cp.Entries[i].Metadata = append([]byte(nil), m.Metadata...)
		}
	}
	return cp
}

func cloneToolCalls(calls []ToolCall) []ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]ToolCall, len(calls))
	for i, tc := range calls {
		out[i] = tc
		if len(tc.Args) > 0 {
			out[i].Args = append([]byte(nil), tc.Args...)
		}
	}
	return out
}
