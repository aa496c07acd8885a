// Package bridge streams one session's engine audio output to a browser
// peer over WebRTC, per spec.md §4.8: pull raw blocks from the engine,
// normalize to stereo, resample to 48 kHz, slice into fixed-duration frames,
// and deliver them through a bounded, backlog-aware ring to a data channel.
package bridge

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/schollz/orchestron/internal/engine"
	"github.com/schollz/orchestron/internal/types"
)

const (
	iceGatherTimeout = 5 * time.Second
	dataChannelLabel = "pcm-audio"
)

// ConnectionState mirrors spec.md §4.8's connecting/live/error/off lifecycle.
type ConnectionState string

const (
	StateConnecting ConnectionState = "connecting"
	StateLive       ConnectionState = "live"
	StateError      ConnectionState = "error"
	StateOff        ConnectionState = "off"
)

// Bridge drives one session's audio pipeline out to a single WebRTC peer.
// Session-to-peer is 1:many over the Bridge's lifetime in the sense that a
// fresh Negotiate call replaces whichever peer is currently attached; only
// one peer is ever live at a time.
//
// Raw stereo PCM frames are carried over an ordered data channel rather than
// an Opus-encoded media track: the corpus this was built against carries no
// audio codec library, and the browser's Web Audio API can consume raw
// float32 frames directly without needing one.
type Bridge struct {
	sessionID string
	eng       engine.Adapter
	engCfg    types.EngineConfig
	cfg       Config
	emit      func(types.Event)

	queue *frameQueue

	mu       sync.Mutex
	pc       *webrtc.PeerConnection
	dc       *webrtc.DataChannel
	stopPump context.CancelFunc

	token uint64
}

// New constructs a Bridge for sessionID, pulling audio from eng. emit
// publishes EventBridgeStateChanged transitions; it may be nil in tests.
func New(sessionID string, eng engine.Adapter, engCfg types.EngineConfig, emit func(types.Event)) *Bridge {
	cfg := DefaultConfig()
	return &Bridge{
		sessionID: sessionID,
		eng:       eng,
		engCfg:    engCfg,
		cfg:       cfg,
		emit:      emit,
		queue:     newFrameQueue(cfg.QueueMaxFrames),
	}
}

func (b *Bridge) publish(state ConnectionState, detail string) {
	if b.emit == nil {
		return
	}
	b.emit(types.Event{
		Kind:    types.EventBridgeStateChanged,
		Message: detail,
		Data:    map[string]any{"state": string(state)},
	})
}

func (b *Bridge) peerConnectionConfig() webrtc.Configuration {
	servers := []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	if b.cfg.TURNExternalIP != "" {
		servers = append(servers, webrtc.ICEServer{
			URLs: []string{fmt.Sprintf("turn:%s:3478", b.cfg.TURNExternalIP)},
		})
	}
	return webrtc.Configuration{ICEServers: servers}
}

// Negotiate answers an SDP offer from a browser peer. It bumps the
// negotiation token first, per spec.md §9's "WebRTC negotiation races":
// any continuation of a superseded Negotiate call observes a stale token
// and discards its work instead of installing a second live peer.
func (b *Bridge) Negotiate(ctx context.Context, offerSDP string) (string, error) {
	myToken := atomic.AddUint64(&b.token, 1)

	b.mu.Lock()
	if b.pc != nil {
		_ = b.pc.Close()
		b.pc, b.dc = nil, nil
	}
	pc, err := webrtc.NewPeerConnection(b.peerConnectionConfig())
	if err != nil {
		b.mu.Unlock()
		return "", fmt.Errorf("bridge: failed to create peer connection: %w", err)
	}
	b.pc = pc
	b.mu.Unlock()

	b.publish(StateConnecting, "negotiation started")

	dcReady := make(chan *webrtc.DataChannel, 1)
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() == dataChannelLabel {
			select {
			case dcReady <- dc:
			default:
			}
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		b.handleConnectionState(myToken, s)
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}); err != nil {
		return "", fmt.Errorf("bridge: set remote description failed: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("bridge: create answer failed: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("bridge: set local description failed: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(iceGatherTimeout):
		log.Printf("[BRIDGE] session %s: ICE gathering exceeded %s, answering with partial candidates", b.sessionID, iceGatherTimeout)
	}

	if b.isStale(myToken) {
		return "", fmt.Errorf("bridge: negotiation superseded by a newer offer")
	}

	select {
	case dc := <-dcReady:
		b.mu.Lock()
		b.dc = dc
		b.mu.Unlock()
	case <-time.After(iceGatherTimeout):
		log.Printf("[BRIDGE] session %s: peer never opened %q data channel", b.sessionID, dataChannelLabel)
	}

	local := pc.LocalDescription()
	if local == nil {
		return "", fmt.Errorf("bridge: no local description after negotiation")
	}
	return local.SDP, nil
}

func (b *Bridge) handleConnectionState(token uint64, state webrtc.PeerConnectionState) {
	if b.isStale(token) {
		return
	}
	switch state {
	case webrtc.PeerConnectionStateConnected:
		b.publish(StateLive, "peer connected")
	case webrtc.PeerConnectionStateFailed:
		b.publish(StateError, "ice/dtls failure")
	case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateClosed:
		b.publish(StateOff, "peer disconnected")
	}
}

func (b *Bridge) isStale(token uint64) bool {
	return atomic.LoadUint64(&b.token) != token
}

// Attach starts the pull/normalize/resample/slice/enqueue/send pipeline.
// Satisfies session.AudioBridge; called once when a session starts in
// streaming mode, before any peer has necessarily negotiated.
func (b *Bridge) Attach(ctx context.Context) error {
	pumpCtx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	if b.stopPump != nil {
		b.mu.Unlock()
		cancel()
		return fmt.Errorf("bridge: already attached")
	}
	b.stopPump = cancel
	b.mu.Unlock()

	go b.produce(pumpCtx)
	go b.consume(pumpCtx)
	return nil
}

// Detach tears down the pipeline and, if negotiated, the peer connection.
func (b *Bridge) Detach() error {
	b.mu.Lock()
	stop := b.stopPump
	b.stopPump = nil
	pc := b.pc
	b.pc, b.dc = nil, nil
	b.mu.Unlock()

	if stop != nil {
		stop()
	}
	atomic.AddUint64(&b.token, 1) // discard any in-flight negotiation
	if pc != nil {
		if err := pc.Close(); err != nil {
			return fmt.Errorf("bridge: failed to close peer connection: %w", err)
		}
	}
	b.publish(StateOff, "detached")
	return nil
}

// produce pulls blocks from the engine and enqueues fixed-duration frames.
func (b *Bridge) produce(ctx context.Context) {
	channels := b.engCfg.Channels
	if channels <= 0 {
		channels = 2
	}
	var leftover []float32
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		block, err := b.eng.PullAudioBlock()
		if err != nil {
			if errors.Is(err, engine.ErrNotRunning) {
				return
			}
			log.Printf("[BRIDGE] session %s: pull audio block failed: %v", b.sessionID, err)
			time.Sleep(5 * time.Millisecond)
			continue
		}

		stereo := normalizeToStereo(block, channels)
		stereo = resampleStereo(stereo, b.engCfg.SampleRate, b.cfg.TargetSampleHz)

		combined := append(leftover, stereo...)
		frames, rest := sliceFrames(combined, b.cfg.TargetSampleHz, b.cfg.FrameMillis)
		leftover = rest
		for _, f := range frames {
			b.queue.Enqueue(f)
		}
	}
}

// consume paces dequeued frames to the peer at exactly frame-duration
// intervals, per the §8 "timestamp exceeds the prior frame's by exactly the
// frame duration" property. When the queue sits below queue_target it skips
// the pacing wait instead of sleeping, catching up to the low-water mark
// immediately rather than over several real-time frame periods — the
// "flush the backlog on connect" behavior of spec.md §4.8.
func (b *Bridge) consume(ctx context.Context) {
	frameDuration := time.Duration(b.cfg.FrameMillis) * time.Millisecond
	var seq uint64
	next := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, ok := b.queue.Dequeue()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}

		b.sendFrame(seq*uint64(b.cfg.FrameMillis), frame)
		seq++

		if b.cfg.FlushOnConnect && b.queue.Len() < b.cfg.QueueTarget {
			next = time.Now()
			continue
		}

		next = next.Add(frameDuration)
		if d := time.Until(next); d > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(d):
			}
		} else {
			next = time.Now()
		}
	}
}

// sendFrame wire-encodes a stereo frame as an 8-byte little-endian
// millisecond timestamp followed by little-endian float32 samples.
func (b *Bridge) sendFrame(timestampMillis uint64, frame []float32) {
	b.mu.Lock()
	dc := b.dc
	b.mu.Unlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return
	}

	buf := make([]byte, 8+len(frame)*4)
	binary.LittleEndian.PutUint64(buf[:8], timestampMillis)
	for i, s := range frame {
		binary.LittleEndian.PutUint32(buf[8+i*4:12+i*4], math.Float32bits(s))
	}
	if err := dc.Send(buf); err != nil {
		log.Printf("[BRIDGE] session %s: data channel send failed: %v", b.sessionID, err)
	}
}
