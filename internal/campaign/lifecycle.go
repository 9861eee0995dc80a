package campaign

import (
	"fmt"

	"github.com/qmuntal/stateless"

	"github.com/foxzi/mailpost/internal/models"
)

// Triggers that move a campaign between statuses. edit and delete never
// change the status, they only assert it allows the operation.
const (
	triggerSchedule = "schedule"
	triggerCancel   = "cancel"
	triggerSend     = "send"
	triggerComplete = "complete"
	triggerEdit     = "edit"
	triggerDelete   = "delete"
)

// newLifecycle builds the state machine for a campaign in status s.
//
//	draft -> scheduled -> sending -> sent
//	draft -> sending
//	scheduled -> cancelled
func newLifecycle(s models.CampaignStatus) *stateless.StateMachine {
	sm := stateless.NewStateMachine(s)

	sm.Configure(models.CampaignDraft).
		Permit(triggerSchedule, models.CampaignScheduled).
		Permit(triggerSend, models.CampaignSending).
		PermitReentry(triggerEdit).
		PermitReentry(triggerDelete)

	sm.Configure(models.CampaignScheduled).
		Permit(triggerCancel, models.CampaignCancelled).
		Permit(triggerSend, models.CampaignSending).
		PermitReentry(triggerDelete)

	sm.Configure(models.CampaignSending).
		Permit(triggerComplete, models.CampaignSent)

	sm.Configure(models.CampaignSent)

	sm.Configure(models.CampaignCancelled).
		PermitReentry(triggerDelete)

	return sm
}

// fire applies trigger to the campaign's status and returns the new status.
// A trigger the current status doesn't permit yields ErrInvalidState.
func fire(c *models.Campaign, trigger string) (models.CampaignStatus, error) {
	sm := newLifecycle(c.Status)
	if err := sm.Fire(trigger); err != nil {
		return c.Status, fmt.Errorf("%w: cannot %s a campaign with status %s", ErrInvalidState, trigger, c.Status)
	}
	return sm.MustState().(models.CampaignStatus), nil
}
