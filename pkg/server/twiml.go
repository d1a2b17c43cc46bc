package server

import (
	"errors"
	"html/template"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/business"
)

const streamTwiMLTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<Response>
    <Connect>
        <Stream url="{{.StreamURL}}">
            {{- range $key, $value := .Parameters}}
            <Parameter name="{{$key}}" value="{{$value}}" />
            {{- end}}
        </Stream>
    </Connect>
</Response>`

const rejectTwiMLTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<Response>
    <Say>{{.Message}}</Say>
    <Hangup/>
</Response>`

var (
	streamTmpl = template.Must(template.New("stream").Parse(streamTwiMLTemplate))
	rejectTmpl = template.Must(template.New("reject").Parse(rejectTwiMLTemplate))
)

// handleIncomingCall is the provider's voice webhook. It resolves the called
// business, applies the per-business rate limit, and answers with TwiML
// connecting the call to the media WebSocket. The custom parameters are the
// only channel for passing call identity into the stream, and the provider
// supports flat string pairs only.
func (s *MediaServer) handleIncomingCall(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	callSid := r.FormValue("CallSid")
	from := r.FormValue("From")
	to := r.FormValue("To")
	log.Printf("[Server] Incoming call: CallSid=%s From=%s To=%s", callSid, from, to)

	biz, err := s.deps.Resolver.ResolveByNumber(r.Context(), to)
	if err != nil {
		if !errors.Is(err, business.ErrNotFound) {
			log.Printf("[Server] Business resolution failed for %s: %v", to, err)
		}
		s.writeReject(w, "We're sorry, this number is not in service. Goodbye.")
		return
	}

	if s.deps.Limiter != nil && !s.deps.Limiter.Allow(biz.ID) {
		log.Printf("[Server] Rate limit hit for business %s", biz.ID)
		s.writeReject(w, "All of our lines are busy right now. Please call back in a moment.")
		return
	}

	callID := uuid.New().String()
	data := struct {
		// template.URL keeps html/template from rejecting the wss scheme.
		StreamURL  template.URL
		Parameters map[string]string
	}{
		StreamURL: template.URL("wss://" + s.config.PublicHost + s.config.WebSocketPath),
		Parameters: map[string]string{
			"businessId":    biz.ID,
			"businessName":  biz.Name,
			"callId":        callID,
			"callerNumber":  from,
			"twilioCallSid": callSid,
		},
	}

	w.Header().Set("Content-Type", "text/xml")
	if err := streamTmpl.Execute(w, data); err != nil {
		log.Printf("[Server] TwiML render failed: %v", err)
	}
}

func (s *MediaServer) writeReject(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "text/xml")
	if err := rejectTmpl.Execute(w, struct{ Message string }{message}); err != nil {
		log.Printf("[Server] TwiML render failed: %v", err)
	}
}
