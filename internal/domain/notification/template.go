package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// PickupReminderSubject is the subject line for unresolved drop-off
// notifications.
const PickupReminderSubject = "Pickup Notification"

// pickupReminderHTML is the body sent to guardians when a child's last
// custody event of the day is a drop-off.
var pickupReminderHTML = template.Must(template.New("pickup_reminder").Parse(`<!DOCTYPE html>
<html>
  <body style="font-family: Arial, sans-serif; color: #333;">
    <h2>{{.FacilityName}}</h2>
    <p>Dear parent or guardian,</p>
    <p>
      Our records show that <strong>{{.StudentName}}</strong> was dropped off
      on {{.Date}} and has not yet been picked up.
    </p>
    <p>
      If you have already collected your child, please disregard this message
      and contact the facility so we can correct our records.
    </p>
    <p>Kind regards,<br>{{.FacilityName}}</p>
  </body>
</html>`))

// PickupReminderData feeds the pickup reminder template.
type PickupReminderData struct {
	FacilityName string
	StudentName  string
	Date         string
}

// RenderPickupReminder builds the notification for one unresolved student.
func RenderPickupReminder(recipients []string, facilityName, studentName string, day time.Time) (Notification, error) {
	data := PickupReminderData{
		FacilityName: facilityName,
		StudentName:  studentName,
		Date:         day.Format("2 January 2006"),
	}

	var buf bytes.Buffer
	if err := pickupReminderHTML.Execute(&buf, data); err != nil {
		return Notification{}, fmt.Errorf("render pickup reminder: %w", err)
	}

	return Notification{
		Recipients: recipients,
		Subject:    PickupReminderSubject,
		HTMLBody:   buf.String(),
		TextBody: fmt.Sprintf(
			"%s: our records show that %s was dropped off on %s and has not yet been picked up.",
			data.FacilityName, data.StudentName, data.Date,
		),
		Priority:  PriorityHigh,
		CreatedAt: time.Now().UTC(),
	}, nil
}
