package call

import (
	"time"

	"github.com/pion/sdp/v3"
)

// offerFormats is the fixed codec set advertised in every offer:
// PCMU, PCMA, and telephone-event for out-of-band DTMF.
var offerFormats = []string{"0", "8", "101"}

var rtpmapMap = map[string]string{
	"0":   "PCMU/8000",
	"8":   "PCMA/8000",
	"101": "telephone-event/8000",
}

// BuildOffer creates the static SDP offer placed in outbound INVITEs.
// The advertised endpoint is where the remote party should send media;
// this process never opens it itself.
func BuildOffer(username, addr string, port int) ([]byte, error) {
	sessionDesc := &sdp.SessionDescription{
		Origin: sdp.Origin{
			Username:       username,
			SessionID:      uint64(time.Now().Unix()),
			SessionVersion: 1,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: addr,
		},
		SessionName: "Dialout Call",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address: &sdp.Address{
				Address: addr,
			},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{
				Timing: sdp.Timing{
					StartTime: 0,
					StopTime:  0,
				},
			},
		},
		MediaDescriptions: []*sdp.MediaDescription{
			{
				MediaName: sdp.MediaName{
					Media:   "audio",
					Port:    sdp.RangedPort{Value: port},
					Protos:  []string{"RTP", "AVP"},
					Formats: offerFormats,
				},
				Attributes: offerAttributes(),
			},
		},
	}

	return sessionDesc.Marshal()
}

// offerAttributes returns rtpmap and fmtp attributes for the offer codecs
func offerAttributes() []sdp.Attribute {
	attrs := []sdp.Attribute{}

	for _, format := range offerFormats {
		if rtpmap, ok := rtpmapMap[format]; ok {
			attrs = append(attrs, sdp.Attribute{
				Key:   "rtpmap",
				Value: format + " " + rtpmap,
			})
		}
	}

	attrs = append(attrs, sdp.Attribute{
		Key:   "fmtp",
		Value: "101 0-15",
	})

	// 20ms frames, standard for VoIP
	attrs = append(attrs, sdp.Attribute{
		Key:   "ptime",
		Value: "20",
	})

	attrs = append(attrs, sdp.Attribute{
		Key: "sendrecv",
	})

	return attrs
}
