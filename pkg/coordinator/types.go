package coordinator

const (
	EventNewMessage  = "new_message"
	EventAgentStatus = "agent_status"
)

const timestampLayout = "2006-01-02 15:04"

// ClientMessageInput is the decoded client_message inbound event.
type ClientMessageInput struct {
	Message string `mapstructure:"message"`
	Image   string `mapstructure:"image"`
}

// AgentMessageInput is the decoded agent_message inbound event.
type AgentMessageInput struct {
	Message    string `mapstructure:"message"`
	Image      string `mapstructure:"image"`
	TargetLang string `mapstructure:"target_lang"`
}

// NewMessageEvent is the outbound new_message wire payload.
type NewMessageEvent struct {
	CID       string `json:"cid"`
	From      string `json:"from"`
	Original  string `json:"original,omitempty"`
	ClientZh  string `json:"client_zh,omitempty"`
	Translated string `json:"translated,omitempty"`
	BotReply  bool   `json:"bot_reply,omitempty"`
	ReplyZh   string `json:"reply_zh,omitempty"`
	ReplyFr   string `json:"reply_fr,omitempty"`
	Image     string `json:"image,omitempty"`
	SuggestZh string `json:"suggest_zh,omitempty"`
	Timestamp string `json:"timestamp"`
}

// AgentStatusEvent is the outbound agent_status wire payload.
type AgentStatusEvent struct {
	CID    string `json:"cid"`
	Online bool   `json:"online"`
}

func timestamp() string {
	return nowFunc().UTC().Format(timestampLayout)
}
