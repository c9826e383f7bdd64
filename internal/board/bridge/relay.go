package bridge

import (
	"errors"

	"github.com/mschirtzinger/beadboard/internal/board/fault"
	"github.com/mschirtzinger/beadboard/internal/board/graph"
	"github.com/mschirtzinger/beadboard/internal/board/session"
	"github.com/mschirtzinger/beadboard/internal/board/settings"
)

// subscribe turns session changes into broadcasts.
func (s *Server) subscribe() {
	sess := s.session
	s.unsubscribe = append(s.unsubscribe,
		sess.Graph.Subscribe(s.onGraph),
		sess.Settings.Subscribe(s.onSettings),
		sess.Selection.Subscribe(s.onSelection),
		sess.Subscribe(s.onSession),
	)
}

func (s *Server) onGraph(ev graph.Event) {
	if ev.NodesChanged {
		s.publish(MessageTypeNodes, ev.Nodes)
	}
	if ev.EdgesChanged {
		s.publish(MessageTypeEdges, ev.Edges)
	}
}

func (s *Server) onSettings(v settings.BoardSettings) {
	s.publish(MessageTypeSettings, v)
}

func (s *Server) onSelection(ids []string) {
	s.publish(MessageTypeSelection, SelectionData{IDs: ids})
}

func (s *Server) onSession(ev session.Event) {
	switch ev.Kind {
	case session.EventNotification:
		s.publish(MessageTypeNotification, ev.Notification)
	case session.EventOpenEditor:
		s.publish(MessageTypeOpenEditor, OpenEditorData{CardID: ev.CardID})
	case session.EventFetchError:
		s.publish(MessageTypeError, errorData("", "", ev.Err))
	case session.EventLoaded:
		s.publish(MessageTypeInit, s.initData())
	}
}

func (s *Server) publish(typ MessageType, data any) {
	msg, err := NewMessage(typ, data)
	if err != nil {
		s.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	s.Broadcast(msg)
}

// initData snapshots the session for a new client.
func (s *Server) initData() InitData {
	sess := s.session
	nodes, edges, _ := sess.Graph.Snapshot()
	data := InitData{
		Nodes:     nodes,
		Edges:     edges,
		Settings:  sess.Settings.Current(),
		Selection: sess.Selection.Selected(),
		Viewport:  sess.Handlers.Viewport(),
		Unsaved:   sess.Graph.Unsaved(),
	}
	if err := sess.FetchError(); err != nil {
		ed := errorData("", "", err)
		data.Error = &ed
	}
	return data
}

func errorData(requestID, intent string, err error) ErrorData {
	return ErrorData{
		RequestID: requestID,
		Intent:    intent,
		Message:   err.Error(),
		Retryable: fault.IsRetryable(err) || errors.Is(err, fault.ErrSaveFailed),
	}
}
