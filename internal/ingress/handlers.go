package ingress

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/avvvet/card-relay/internal/comm"
	log "github.com/sirupsen/logrus"
)

const (
	CodeSuccess = "code=0000"
	CodeFailure = "code=1111"

	// MaxBodyBytes is far above anything a reader sends.
	MaxBodyBytes = 100 << 20
)

// Emitter delivers an event to whoever is subscribed.
type Emitter interface {
	Emit(event string, payload any) error
}

type Handler struct {
	emitter Emitter
	maxBody int64
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

func NewHandler(e Emitter) *Handler {
	return &Handler{emitter: e, maxBody: MaxBodyBytes}
}

// HandleCardRead answers the reader with code=0000 once the token has been
// handed to the emitter, and code=1111 for anything it cannot parse.
func (h *Handler) HandleCardRead(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.CreateResponse(w, Response{
				Message: "request body too large",
				Code:    http.StatusRequestEntityTooLarge,
				Error:   err.Error(),
			})
			return
		}
		h.CreateResponse(w, Response{
			Message: "unable to read request body",
			Code:    http.StatusBadRequest,
			Error:   err.Error(),
		})
		return
	}

	log.Warn(string(body))

	token, err := ParseCardToken(body)
	if err != nil {
		log.Debugf("card read rejected: %v", err)
		writeCode(w, CodeFailure)
		return
	}

	if err := h.emitter.Emit(comm.EventCardData, comm.CardData{CardData: token}); err != nil {
		// the reader has nothing to retry; subscribers simply miss this read
		log.Errorf("Failed to emit %s: %v", comm.EventCardData, err)
	}

	writeCode(w, CodeSuccess)
}

func writeCode(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, code); err != nil {
		log.Errorf("Failed to write reply %s: %v", code, err)
	}
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)
	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}
