package trigger

import (
	"context"
	"log"
	"slices"
)

// Sender delivers a chat line. *session.Manager satisfies it.
type Sender interface {
	SendChat(message string) error
}

// Result is a decision plus what happened when acting on it.
type Result struct {
	Output
	Sent      bool   `json:"sent"`
	SendError string `json:"sendError,omitempty"`
}

// Act asks d about in and, when the answer is to reply, sends the chosen
// line through s. Only lines from in.AvailableMessages are ever sent. A
// refused or failed send is reported in the result, not as an error.
func Act(ctx context.Context, d Decider, s Sender, in Input) (Result, error) {
	out, err := d.Decide(ctx, in)
	if err != nil {
		return Result{}, err
	}
	res := Result{Output: out}
	if !out.ShouldSendMessage {
		log.Println("trigger: decided not to send a message")
		return res, nil
	}
	if !slices.Contains(in.AvailableMessages, out.MessageContent) {
		log.Printf("trigger: model chose %q, which was not offered; not sending", out.MessageContent)
		res.ShouldSendMessage = false
		res.SendError = ErrUnknownMessage.Error()
		return res, nil
	}
	if err := s.SendChat(out.MessageContent); err != nil {
		log.Printf("trigger: send %q: %v", out.MessageContent, err)
		res.SendError = err.Error()
		return res, nil
	}
	log.Printf("trigger: bot decided to say %q", out.MessageContent)
	res.Sent = true
	return res, nil
}
