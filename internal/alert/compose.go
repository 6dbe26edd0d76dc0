package alert

import (
	"encoding/json"
	"fmt"

	"safepulse/internal/models"
)

func mapsLink(lat, lng float64) string {
	return fmt.Sprintf("https://www.google.com/maps?q=%f,%f", lat, lng)
}

// composeInitial builds the first notification for one recipient. Authorities
// get a structured JSON payload; personal contacts a human-readable SOS text.
func composeInitial(a *models.Alert, ct models.TrustedContact) Message {
	if ct.Channel == models.ChannelAuthority {
		payload, _ := json.Marshal(map[string]interface{}{
			"alert_id":  a.ID.String(),
			"user_id":   a.UserID,
			"reason":    a.Reason,
			"note":      a.Note,
			"latitude":  a.Location.Latitude,
			"longitude": a.Location.Longitude,
			"timestamp": a.Location.Timestamp,
		})
		return Message{
			Subject: "emergency_dispatch",
			Body:    string(payload),
		}
	}

	body := fmt.Sprintf("EMERGENCY SOS! Location: %s",
		mapsLink(a.Location.Latitude, a.Location.Longitude))
	if a.Note != "" {
		body += fmt.Sprintf("\nMessage: %s", a.Note)
	}
	body += "\nPlease respond immediately or contact authorities."
	return Message{
		Subject: "Emergency SOS",
		Body:    body,
	}
}

// composeFollowUp builds the location-update message sent to recipients who
// already received the initial notification.
func composeFollowUp(a *models.Alert, ct models.TrustedContact, upd models.LocationUpdate) Message {
	if ct.Channel == models.ChannelAuthority {
		payload, _ := json.Marshal(map[string]interface{}{
			"alert_id":  a.ID.String(),
			"user_id":   a.UserID,
			"update":    "location",
			"latitude":  upd.Latitude,
			"longitude": upd.Longitude,
			"timestamp": upd.Timestamp,
		})
		return Message{
			Subject: "location_update",
			Body:    string(payload),
		}
	}

	return Message{
		Subject: "Emergency SOS update",
		Body: fmt.Sprintf("Updated location: %s (as of %s)",
			mapsLink(upd.Latitude, upd.Longitude),
			upd.Timestamp.Format("15:04:05 MST")),
	}
}
