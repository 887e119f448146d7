package relay

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

// signalAttrs peeks into a signaling payload for logging. The payload is
// relayed untouched whether or not it parses.
func signalAttrs(s Signal) []any {
	attrs := []any{"kind", string(s.kind), "bytes", len(s.Payload)}

	switch s.kind {
	case KindOffer, KindAnswer:
		// browsers send either the bare description or {"offer": {...}}
		var sd webrtc.SessionDescription
		if json.Unmarshal(s.Payload, &sd) != nil || sd.SDP == "" {
			var wrapped map[string]json.RawMessage
			if json.Unmarshal(s.Payload, &wrapped) == nil {
				_ = json.Unmarshal(wrapped[string(s.kind)], &sd)
			}
		}
		if sd.SDP != "" {
			attrs = append(attrs, "sdpType", sd.Type.String())
		}
	case KindICECandidate:
		var c webrtc.ICECandidateInit
		if json.Unmarshal(s.Payload, &c) != nil || c.Candidate == "" {
			var wrapped struct {
				Candidate webrtc.ICECandidateInit `json:"candidate"`
			}
			if json.Unmarshal(s.Payload, &wrapped) == nil {
				c = wrapped.Candidate
			}
		}
		if c.SDPMid != nil {
			attrs = append(attrs, "sdpMid", *c.SDPMid)
		}
		attrs = append(attrs, "hasCandidate", c.Candidate != "")
	}
	return attrs
}
