package campaign

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/foxzi/mailpost/internal/models"
)

func TestLifecycle(t *testing.T) {
	tests := []struct {
		from    models.CampaignStatus
		trigger string
		want    models.CampaignStatus
		ok      bool
	}{
		{models.CampaignDraft, triggerSchedule, models.CampaignScheduled, true},
		{models.CampaignDraft, triggerSend, models.CampaignSending, true},
		{models.CampaignDraft, triggerEdit, models.CampaignDraft, true},
		{models.CampaignDraft, triggerDelete, models.CampaignDraft, true},
		{models.CampaignDraft, triggerCancel, models.CampaignDraft, false},
		{models.CampaignDraft, triggerComplete, models.CampaignDraft, false},

		{models.CampaignScheduled, triggerCancel, models.CampaignCancelled, true},
		{models.CampaignScheduled, triggerSend, models.CampaignSending, true},
		{models.CampaignScheduled, triggerDelete, models.CampaignScheduled, true},
		{models.CampaignScheduled, triggerSchedule, models.CampaignScheduled, false},
		{models.CampaignScheduled, triggerEdit, models.CampaignScheduled, false},

		{models.CampaignSending, triggerComplete, models.CampaignSent, true},
		{models.CampaignSending, triggerSend, models.CampaignSending, false},
		{models.CampaignSending, triggerDelete, models.CampaignSending, false},
		{models.CampaignSending, triggerEdit, models.CampaignSending, false},

		{models.CampaignSent, triggerSend, models.CampaignSent, false},
		{models.CampaignSent, triggerDelete, models.CampaignSent, false},
		{models.CampaignSent, triggerSchedule, models.CampaignSent, false},

		{models.CampaignCancelled, triggerDelete, models.CampaignCancelled, true},
		{models.CampaignCancelled, triggerSend, models.CampaignCancelled, false},
		{models.CampaignCancelled, triggerSchedule, models.CampaignCancelled, false},
		{models.CampaignCancelled, triggerEdit, models.CampaignCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+tt.trigger, func(t *testing.T) {
			got, err := fire(&models.Campaign{Status: tt.from}, tt.trigger)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidState)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
