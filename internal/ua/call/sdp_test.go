package call

import (
	"strings"
	"testing"

	"github.com/pion/sdp/v3"
)

func TestBuildOffer(t *testing.T) {
	body, err := BuildOffer("alice", "192.168.1.10", 40000)
	if err != nil {
		t.Fatalf("BuildOffer failed: %v", err)
	}

	var desc sdp.SessionDescription
	if err := desc.Unmarshal(body); err != nil {
		t.Fatalf("offer does not parse back: %v", err)
	}

	if len(desc.MediaDescriptions) != 1 {
		t.Fatalf("media sections = %d, want 1", len(desc.MediaDescriptions))
	}
	media := desc.MediaDescriptions[0]
	if media.MediaName.Media != "audio" {
		t.Errorf("media = %q, want audio", media.MediaName.Media)
	}
	if media.MediaName.Port.Value != 40000 {
		t.Errorf("port = %d, want 40000", media.MediaName.Port.Value)
	}
	if got := strings.Join(media.MediaName.Formats, " "); got != "0 8 101" {
		t.Errorf("formats = %q, want 0 8 101", got)
	}

	if desc.ConnectionInformation == nil || desc.ConnectionInformation.Address.Address != "192.168.1.10" {
		t.Error("connection address missing or wrong")
	}

	text := string(body)
	for _, want := range []string{
		"a=rtpmap:0 PCMU/8000",
		"a=rtpmap:8 PCMA/8000",
		"a=rtpmap:101 telephone-event/8000",
		"a=fmtp:101 0-15",
		"a=ptime:20",
		"a=sendrecv",
	} {
		if !strings.Contains(text, want+"\r\n") {
			t.Errorf("offer missing %q with CRLF:\n%s", want, text)
		}
	}
}

func TestBuildOfferVersionStable(t *testing.T) {
	body, err := BuildOffer("alice", "10.0.0.1", 40000)
	if err != nil {
		t.Fatalf("BuildOffer failed: %v", err)
	}
	var desc sdp.SessionDescription
	if err := desc.Unmarshal(body); err != nil {
		t.Fatalf("offer does not parse back: %v", err)
	}
	if desc.Origin.SessionVersion != 1 {
		t.Errorf("session version = %d, want 1", desc.Origin.SessionVersion)
	}
	if desc.Origin.SessionID == 0 {
		t.Error("session id must be set")
	}
}
