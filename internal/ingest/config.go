package ingest

import "time"

// Protocol holds the command-mode constants of the serial protocol.
type Protocol struct {
	EnterToken string
	ExitToken  string

	EnterMessage string
	ExitMessage  string
	WaitMessage  string
	// ErrorReply is played back in place of a reply when the responder fails.
	ErrorReply string

	PlaybackDelay    time.Duration
	ResponderTimeout time.Duration
}

// DefaultProtocol returns the stock tokens and status lines.
func DefaultProtocol() Protocol {
	return Protocol{
		EnterToken:       "##DEEPSEEK##",
		ExitToken:        "##EXIT##",
		EnterMessage:     "Enter DeepSeek mode...",
		ExitMessage:      "Exit DeepSeek mode...",
		WaitMessage:      "Message sent, please wait...",
		ErrorReply:       "[Error]",
		PlaybackDelay:    5 * time.Millisecond,
		ResponderTimeout: 60 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultProtocol. Empty tokens would
// match every line, so they are never allowed through.
func (p Protocol) withDefaults() Protocol {
	d := DefaultProtocol()
	if p.EnterToken == "" {
		p.EnterToken = d.EnterToken
	}
	if p.ExitToken == "" {
		p.ExitToken = d.ExitToken
	}
	if p.EnterMessage == "" {
		p.EnterMessage = d.EnterMessage
	}
	if p.ExitMessage == "" {
		p.ExitMessage = d.ExitMessage
	}
	if p.WaitMessage == "" {
		p.WaitMessage = d.WaitMessage
	}
	if p.ErrorReply == "" {
		p.ErrorReply = d.ErrorReply
	}
	if p.PlaybackDelay < 0 {
		p.PlaybackDelay = 0
	}
	if p.ResponderTimeout <= 0 {
		p.ResponderTimeout = d.ResponderTimeout
	}
	return p
}
