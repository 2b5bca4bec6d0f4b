// Package notify sends a desktop notification when a pipeline run
// reaches a terminal state. Delivery is best-effort: a failed
// notification is logged and never fails the run.
package notify

import (
	"fmt"

	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"
)

// RunFinished notifies the user that a pipeline run ended with the
// given status ("succeeded", "failed", or "interrupted").
func RunFinished(status, company string, logger zerolog.Logger) {
	title := "JobQuest"
	var message string
	switch status {
	case "succeeded":
		message = fmt.Sprintf("Application for %s is ready.", company)
	case "interrupted":
		message = fmt.Sprintf("Run for %s was interrupted. Partial results saved.", company)
	default:
		message = fmt.Sprintf("Run for %s failed. Partial results saved.", company)
	}
	if company == "" {
		message = "Pipeline run " + status + "."
	}

	if err := beeep.Notify(title, message, ""); err != nil {
		logger.Warn().Err(err).Msg("desktop notification failed")
	}
}
