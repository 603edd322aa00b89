package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/raysh454/mailtrust/internal/logging"
	"github.com/raysh454/mailtrust/internal/model"
	"github.com/raysh454/mailtrust/internal/utils"
)

// EMLSource snapshots the .eml file at Path each time it is asked, so it
// always reflects the message currently on disk.
type EMLSource struct {
	path     string
	renderer Renderer
	logger   logging.Logger
}

func NewEMLSource(path string, renderer Renderer, logger logging.Logger) (*EMLSource, error) {
	if path == "" {
		return nil, errors.New("snapshot: path is required")
	}
	if renderer == nil {
		return nil, errors.New("snapshot: renderer is required")
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &EMLSource{
		path:     path,
		renderer: renderer,
		logger:   logger.With(logging.Field{Key: "component", Value: "eml_source"}, logging.Field{Key: "path", Value: path}),
	}, nil
}

func (s *EMLSource) Path() string { return s.path }

// SenderIdentity reads the sender of the message on disk.
func (s *EMLSource) SenderIdentity() (string, bool) {
	msg, err := ReadFile(s.path)
	if err != nil {
		s.logger.Debug("sender unavailable", logging.Field{Key: "error", Value: err})
		return "", false
	}
	return msg.Sender, msg.Sender != ""
}

// Snapshot parses and renders the message. A missing sender leaves
// SenderIdentity empty and a missing body leaves Body nil; neither is an
// error here.
func (s *EMLSource) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	msg, err := ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	return FromMessage(ctx, msg, s.renderer)
}

// FromMessage renders msg into a snapshot.
func FromMessage(ctx context.Context, msg *Message, renderer Renderer) (*model.Snapshot, error) {
	snap := &model.Snapshot{SenderIdentity: msg.Sender}
	if msg.HTML == "" {
		return snap, nil
	}

	doc, err := renderer.Render(ctx, msg.HTML)
	if err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}
	snap.Body = doc

	var hrefs []string
	for _, el := range doc.Elements {
		if el.Tag == "a" && el.Href != "" {
			hrefs = append(hrefs, el.Href)
		}
	}
	snap.Links = utils.ResolveLinks(BaseURL(msg.HTML), hrefs)
	return snap, nil
}
