package portal

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-exam-client/internal/config"
	"github.com/stemsi/exstem-exam-client/internal/examsession"
)

// NewSubmitter returns the submission transport named by cfg.SubmitTransport.
// The REST client is returned for config.TransportREST and anything unknown.
func NewSubmitter(cfg *config.Config, token string, log zerolog.Logger) examsession.Submitter {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if cfg.SubmitTransport == config.TransportWS {
		return NewWSSubmitter(cfg.PortalURL, token, timeout, log)
	}
	return NewClient(cfg.PortalURL, token, timeout, log)
}
