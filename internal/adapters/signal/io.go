package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/studyroom/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ping := time.NewTicker(ctl.PingPeriod)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				c.Close()
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				c.Close()
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, s *session) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(s.sid)).Msg("readPump closing")
		s.conn.Close()
		cancel()
		ctl.disconnect(s)
	}()

	pongWait := 2 * ctl.PingPeriod
	c := s.conn.conn
	c.SetReadLimit(ctl.ReadLimit)
	_ = c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(s.sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn().Err(err).Str("module", "signal").Str("sid", string(s.sid)).Msg("readPump read error")
				}
				return
			}
			_ = c.SetReadDeadline(time.Now().Add(pongWait))
			ctl.handleSignal(ctx, s, data)
		}
	}
}

type handlerFunc func(ctx context.Context, s *session, data json.RawMessage) (any, error)

// handleSignal runs one event to completion. A panicking handler is turned
// into a failure ack; the connection stays up.
func (ctl *SignalWSController) handleSignal(ctx context.Context, s *session, frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(s.sid)).Msg("bad json")
		return
	}
	h, ok := ctl.routes[env.Type]
	if !ok {
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		if env.Ack != nil {
			ctl.reply(s, *env.Ack, protocol.NewFailure("unknown event "+env.Type))
		}
		return
	}

	var (
		reply  any
		herr   error
		catch  panics.Catcher
		logger = log.With().Str("module", "signal").Str("sid", string(s.sid)).Str("type", env.Type).Logger()
	)
	catch.Try(func() { reply, herr = h(ctx, s, env.Data) })
	if r := catch.Recovered(); r != nil {
		logger.Error().Str("panic", fmt.Sprint(r.Value)).Bytes("stack", r.Stack).Msg("handler panicked")
		herr = r.AsError()
	}
	if herr != nil {
		logger.Warn().Err(herr).Msg("event failed")
		reply = protocol.NewFailure(failureMessage(herr))
	}
	if env.Ack != nil {
		ctl.reply(s, *env.Ack, reply)
	}
}

func (ctl *SignalWSController) reply(s *session, ack int64, v any) {
	frame, err := protocol.EncodeAck(ack, v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(s.sid)).Msg("encode ack")
		return
	}
	if err := s.conn.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(s.sid)).Msg("ack not delivered")
	}
}

var errBadPayload = errors.New("bad payload")

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errBadPayload
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", errBadPayload, err)
	}
	return nil
}
