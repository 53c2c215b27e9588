package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/studyroom/internal/core"
	"github.com/dkeye/studyroom/internal/domain"
	"github.com/dkeye/studyroom/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) masterRoom(sid core.SessionID) (*core.Room, error) {
	room, peer, err := o.roomOf(sid)
	if err != nil {
		return nil, err
	}
	if peer.UID() != room.MasterID() {
		return nil, ErrNotAuthorized
	}
	return room, nil
}

// KickUser force-disconnects a member. Its peer is cleaned up by the
// ordinary disconnect path once the socket is gone.
func (o *Orchestrator) KickUser(sid core.SessionID, target domain.UserID) error {
	room, err := o.masterRoom(sid)
	if err != nil {
		return err
	}
	victim := room.FindPeerByUserID(target)
	if victim == nil {
		return fmt.Errorf("kick %s: %w", target, ErrTargetNotFound)
	}
	o.broadcast(room, core.Broadcast{Protocol: protocol.KickUser, Args: target})
	victim.Disconnect()
	log.Info().Str("module", "orch").Str("room", string(room.ID())).Str("user", string(target)).Msg("user kicked")
	return nil
}

// BlockUser persists the block before anyone hears of it, then
// disconnects the target.
func (o *Orchestrator) BlockUser(ctx context.Context, sid core.SessionID, target domain.UserID) error {
	room, err := o.masterRoom(sid)
	if err != nil {
		return err
	}
	victim := room.FindPeerByUserID(target)
	if victim == nil {
		return fmt.Errorf("block %s: %w", target, ErrTargetNotFound)
	}
	entry := domain.BlockedUser{ID: victim.UID(), Name: victim.Name()}
	if err := o.Store.BlockUser(ctx, room.ID(), entry); err != nil {
		return fmt.Errorf("persist block of %s: %w", target, err)
	}
	room.BlockUser(entry.ID, entry.Name)
	o.broadcast(room, core.Broadcast{Protocol: protocol.BlockUser, Args: target})
	victim.Disconnect()
	log.Info().Str("module", "orch").Str("room", string(room.ID())).Str("user", string(target)).Msg("user blocked")
	return nil
}

// UnblockUser does not require the target to be around.
func (o *Orchestrator) UnblockUser(ctx context.Context, sid core.SessionID, target domain.UserID) error {
	room, err := o.masterRoom(sid)
	if err != nil {
		return err
	}
	if err := o.Store.UnblockUser(ctx, room.ID(), target); err != nil {
		return fmt.Errorf("persist unblock of %s: %w", target, err)
	}
	room.UnblockUser(target)
	log.Info().Str("module", "orch").Str("room", string(room.ID())).Str("user", string(target)).Msg("user unblocked")
	return nil
}
