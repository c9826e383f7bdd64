package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coder/websocket"

	"github.com/mschirtzinger/beadboard/internal/board/fault"
	"github.com/mschirtzinger/beadboard/internal/board/schema"
	"github.com/mschirtzinger/beadboard/internal/board/settings"
)

// ErrUnknownIntent is returned for a message type the server does not
// accept from clients.
var ErrUnknownIntent = errors.New("unknown intent")

func decode[T any](msg Message) (T, error) {
	var v T
	if len(msg.Data) == 0 {
		return v, fmt.Errorf("%w: %s needs data", fault.ErrInvalidPayload, msg.Type)
	}
	if err := json.Unmarshal(msg.Data, &v); err != nil {
		return v, fmt.Errorf("%w: %s: %v", fault.ErrInvalidPayload, msg.Type, err)
	}
	return v, nil
}

// dispatch applies one client intent. Results reach clients through the
// session subscriptions; only the error is returned to the sender.
func (s *Server) dispatch(ctx context.Context, msg Message) error {
	sess := s.session
	h := sess.Handlers

	switch msg.Type {
	case IntentNodeChanges:
		changes, err := decode[NodeChangesData](msg)
		if err != nil {
			return err
		}
		sess.Graph.ApplyNodeChanges(changes)
		return nil

	case IntentEdgeChanges:
		changes, err := decode[EdgeChangesData](msg)
		if err != nil {
			return err
		}
		sess.Graph.ApplyEdgeChanges(changes)
		return nil

	case IntentConnect:
		in, err := decode[ConnectData](msg)
		if err != nil {
			return err
		}
		_, err = h.Connect(in)
		return err

	case IntentDrop:
		in, err := decode[DropData](msg)
		if err != nil {
			return err
		}
		_, err = h.Drop(in.Payload, in.Position)
		return err

	case IntentEdgeDrop:
		in, err := decode[EdgeDropData](msg)
		if err != nil {
			return err
		}
		_, _, err = h.EdgeDrop(ctx, in)
		return err

	case IntentNodeClick:
		in, err := decode[NodeClickData](msg)
		if err != nil {
			return err
		}
		return h.NodeClick(ctx, in)

	case IntentPaneClick:
		var in PaneClickData
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &in); err != nil {
				return fmt.Errorf("%w: %s: %v", fault.ErrInvalidPayload, msg.Type, err)
			}
		}
		h.PaneClick(in.Additive)
		return nil

	case IntentSelectionChange:
		in, err := decode[SelectionData](msg)
		if err != nil {
			return err
		}
		sess.Selection.OnRendererSelectionChanged(in.IDs)
		return nil

	case IntentDelete:
		in, err := decode[DeleteData](msg)
		if err != nil {
			return err
		}
		h.Delete(in.Nodes, in.Edges)
		return nil

	case IntentViewport:
		v, err := decode[schema.Viewport](msg)
		if err != nil {
			return err
		}
		if err := h.ViewportChanged(v); err != nil {
			return err
		}
		s.publish(MessageTypeViewport, v)
		return nil

	case IntentSettingsPatch:
		patch, err := settings.ParsePatch(msg.Data)
		if err != nil {
			return err
		}
		_, err = sess.Settings.Patch(ctx, patch)
		return err

	case IntentGridSize:
		in, err := decode[GridSizeData](msg)
		if err != nil {
			return err
		}
		_, err = sess.Settings.SetGridSize(ctx, in.Size)
		return err

	case IntentSave:
		return sess.Autosave.Save()

	case IntentLayout:
		in, err := decode[LayoutData](msg)
		if err != nil {
			return err
		}
		return h.ApplyLayout(in.Kind)

	case IntentRetry:
		err := sess.Retry(ctx)
		if errors.Is(err, fault.ErrExternalFetch) {
			// Already broadcast as a fetch error.
			return nil
		}
		return err

	case IntentUnload:
		_, err := sess.Autosave.OnUnload()
		return err

	default:
		return fmt.Errorf("%w %q", ErrUnknownIntent, msg.Type)
	}
}

// reply reports a failed intent to its sender. Storage and integrity
// faults are logged only.
func (s *Server) reply(conn *websocket.Conn, msg Message, err error) {
	if fault.IsSilent(err) {
		s.logger.Printf("Warning: %s: %v", msg.Type, err)
		return
	}
	out, merr := NewMessage(MessageTypeError, errorData(msg.ID, string(msg.Type), err))
	if merr != nil {
		return
	}
	s.send(conn, out)
}
