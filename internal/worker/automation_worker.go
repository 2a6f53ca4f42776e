package worker

import (
	"github.com/spec-kit/servicedesk/internal/events"
	"github.com/spec-kit/servicedesk/internal/service"
)

// StartAutomationWorker registers rule-engine handlers on the dispatcher.
func StartAutomationWorker(automationService *service.AutomationService, dispatcher events.Dispatcher) {
	if automationService == nil || dispatcher == nil {
		return
	}
	automationService.RegisterHandlers(dispatcher)
}
