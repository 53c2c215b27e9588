// Package rtc implements the media engine on pion/webrtc: a router per
// room, one PeerConnection per transport and RTP relays between them.
package rtc

import (
	"context"
	"fmt"

	"github.com/dkeye/studyroom/internal/core"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AnnouncedIP string
	MinPort     uint16
	MaxPort     uint16
	ICEServers  []string
}

// Codecs are the only codecs negotiated with clients.
var Codecs = []webrtc.RTPCodecParameters{
	{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		PayloadType:        111,
	},
	{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000, SDPFmtpLine: "x-google-start-bitrate=1000"},
		PayloadType:        96,
	},
}

// Engine is the process-wide pion API shared by all routers.
type Engine struct {
	api       *webrtc.API
	pcConfig  webrtc.Configuration
	capsCache Capabilities
}

func NewEngine(cfg Config) (*Engine, error) {
	m := &webrtc.MediaEngine{}
	caps := Capabilities{}
	for _, c := range Codecs {
		kind := webrtc.RTPCodecTypeAudio
		if c.MimeType == webrtc.MimeTypeVP8 {
			kind = webrtc.RTPCodecTypeVideo
		}
		if err := m.RegisterCodec(c, kind); err != nil {
			return nil, fmt.Errorf("register codec %s: %w", c.MimeType, err)
		}
		caps.Codecs = append(caps.Codecs, CodecCapability{
			Kind:        kind.String(),
			MimeType:    c.MimeType,
			ClockRate:   c.ClockRate,
			Channels:    c.Channels,
			SDPFmtpLine: c.SDPFmtpLine,
			PayloadType: uint8(c.PayloadType),
		})
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	if cfg.MinPort > 0 && cfg.MaxPort >= cfg.MinPort {
		if err := se.SetEphemeralUDPPortRange(cfg.MinPort, cfg.MaxPort); err != nil {
			return nil, fmt.Errorf("udp port range %d-%d: %w", cfg.MinPort, cfg.MaxPort, err)
		}
	}
	if cfg.AnnouncedIP != "" {
		se.SetNAT1To1IPs([]string{cfg.AnnouncedIP}, webrtc.ICECandidateTypeHost)
	}

	pcConfig := webrtc.Configuration{}
	if len(cfg.ICEServers) > 0 {
		pcConfig.ICEServers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}

	log.Info().Str("module", "webrtc").Str("announced_ip", cfg.AnnouncedIP).Uint16("min_port", cfg.MinPort).Uint16("max_port", cfg.MaxPort).Msg("media engine ready")
	return &Engine{
		api:       webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(ir), webrtc.WithSettingEngine(se)),
		pcConfig:  pcConfig,
		capsCache: caps,
	}, nil
}

func (e *Engine) CreateRouter(context.Context) (core.Router, error) {
	return newRouter(e), nil
}

// CodecCapability is one entry of the router capabilities sent to clients.
type CodecCapability struct {
	Kind        string `json:"kind"`
	MimeType    string `json:"mimeType"`
	ClockRate   uint32 `json:"clockRate"`
	Channels    uint16 `json:"channels,omitempty"`
	SDPFmtpLine string `json:"sdpFmtpLine,omitempty"`
	PayloadType uint8  `json:"preferredPayloadType"`
}

type Capabilities struct {
	Codecs []CodecCapability `json:"codecs"`
}
