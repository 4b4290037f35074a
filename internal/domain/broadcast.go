package domain

import (
	"errors"
	"strings"
)

// Broadcast defaults used whenever a new broadcast is started.
const (
	BroadcastLayoutBestFit = "bestFit"
	BroadcastResolution    = "1280x720"
)

// Provider broadcast statuses.
const (
	BroadcastStatusStarted = "started"
	BroadcastStatusStopped = "stopped"
)

// ErrInvalidIngestURI is returned when an ingest URI cannot be split into a
// server URL and a stream name.
var ErrInvalidIngestURI = errors.New("invalid ingest uri")

// BroadcastDestination describes where a session is mirrored to. It is
// computed per reconciliation and never persisted.
type BroadcastDestination struct {
	SessionID  string
	ServerURL  string
	StreamName string
	Resolution string
	Layout     string
}

// DestinationFromIngestURI splits a live-channel ingest URI on its last path
// segment: everything before the final '/' is the server URL, the rest is
// the stream name.
//
//	rtmp://live.example.com/app/key  ->  ("rtmp://live.example.com/app", "key")
func DestinationFromIngestURI(sessionID, uri string) (BroadcastDestination, error) {
	uri = strings.TrimSpace(uri)
	i := strings.LastIndex(uri, "/")
	if uri == "" || i <= 0 || i == len(uri)-1 {
		return BroadcastDestination{}, ErrInvalidIngestURI
	}
	server := uri[:i]
	if strings.HasSuffix(server, ":/") || strings.HasSuffix(server, "/") {
		// "rtmp://key" has no path segment to split on.
		return BroadcastDestination{}, ErrInvalidIngestURI
	}
	return BroadcastDestination{
		SessionID:  sessionID,
		ServerURL:  server,
		StreamName: uri[i+1:],
		Resolution: BroadcastResolution,
		Layout:     BroadcastLayoutBestFit,
	}, nil
}

// RTMPTarget is one RTMP output of a provider broadcast.
type RTMPTarget struct {
	ID         string `json:"id,omitempty"`
	ServerURL  string `json:"serverUrl"`
	StreamName string `json:"streamName"`
	Status     string `json:"status,omitempty"`
}

// Broadcast is a provider broadcast as returned by listBroadcasts.
type Broadcast struct {
	ID            string `json:"id"`
	SessionID     string `json:"sessionId"`
	Status        string `json:"status"`
	BroadcastURLs struct {
		RTMP []RTMPTarget `json:"rtmp"`
	} `json:"broadcastUrls"`
}

// Started reports whether the provider considers the broadcast live.
func (b Broadcast) Started() bool { return b.Status == BroadcastStatusStarted }

// Targets reports whether any RTMP output of b points at dst.
func (b Broadcast) Targets(dst BroadcastDestination) bool {
	for _, t := range b.BroadcastURLs.RTMP {
		if t.ServerURL == dst.ServerURL && t.StreamName == dst.StreamName {
			return true
		}
	}
	return false
}
