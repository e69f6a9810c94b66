package client

import (
	"github.com/pion/webrtc/v4"
)

// AudioSource is the local capture device. Acquiring it can fail (missing
// device, denied permission); in that case no join is ever sent and the
// error surfaces to the caller.
type AudioSource interface {
	// Track is the outbound audio attached to every peer connection.
	Track() webrtc.TrackLocal
	// SetEnabled gates the outgoing audio. Disabling is mute: the track
	// stays attached, it just goes silent. No signaling is involved.
	SetEnabled(enabled bool)
	Close()
}

// AcquireAudio obtains the local capture. Called lazily on first join.
type AcquireAudio func() (AudioSource, error)

// AudioSink renders one remote participant's audio.
type AudioSink interface {
	// Play starts rendering the remote track.
	Play(track *webrtc.TrackRemote)
	// SetEnabled gates playback; disabling all sinks is deafen.
	SetEnabled(enabled bool)
	Close()
}

// NewAudioSink creates the render side for one remote connection id.
type NewAudioSink func(peerID string) AudioSink
