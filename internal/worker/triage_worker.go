package worker

import (
	"github.com/triagehub/ticket-tracker/internal/service"
)

// StartTriageWorker registers the triage event handlers.
func StartTriageWorker(triageService *service.TriageService) {
	if triageService == nil {
		return
	}
	triageService.RegisterHandlers()
}
