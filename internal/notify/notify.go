// Package notify delivers one-time chat notifications to the table.
package notify

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Message types understood by hosts.
const (
	TypeOther = "other"
	TypeRoll  = "roll"
)

// ChatMessage is a chat entry created for the table.
type ChatMessage struct {
	ID       string `json:"id"`
	CombatID string `json:"combat_id,omitempty"`
	// Speaker is the display name the message is attributed to.
	Speaker string `json:"speaker"`
	Content string `json:"content"`
	// Sound is an optional sound cue path.
	Sound string `json:"sound,omitempty"`
	Type  string `json:"type"`
}

// NewChatMessage returns a message with a fresh id and TypeOther.
func NewChatMessage(speaker, content string) ChatMessage {
	return ChatMessage{ID: uuid.NewString(), Speaker: speaker, Content: content, Type: TypeOther}
}

// Sink receives chat messages.
type Sink interface {
	Send(ctx context.Context, msg ChatMessage) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, msg ChatMessage) error

// Send implements Sink.
func (f SinkFunc) Send(ctx context.Context, msg ChatMessage) error { return f(ctx, msg) }

// LogSink writes every message to a logger at info level.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink.
//
// Precondition: logger must be non-nil.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Send implements Sink.
func (s *LogSink) Send(_ context.Context, msg ChatMessage) error {
	s.logger.Info("chat message",
		zap.String("id", msg.ID),
		zap.String("combat_id", msg.CombatID),
		zap.String("speaker", msg.Speaker),
		zap.String("type", msg.Type),
		zap.String("content", msg.Content),
	)
	return nil
}

// FanOut delivers to every member sink. All members are tried; the joined
// error of the failing ones is returned.
type FanOut []Sink

// Send implements Sink.
func (f FanOut) Send(ctx context.Context, msg ChatMessage) error {
	var errs []error
	for _, s := range f {
		if err := s.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps every message it receives. Used by tests and replays.
type Recorder struct {
	Messages []ChatMessage
}

// Send implements Sink.
func (r *Recorder) Send(_ context.Context, msg ChatMessage) error {
	r.Messages = append(r.Messages, msg)
	return nil
}
